package session

import (
	"log/slog"
	"sync"

	"github.com/vango-go/voicewire/pkg/audio"
	"github.com/vango-go/voicewire/pkg/metrics"
	"github.com/vango-go/voicewire/pkg/protocol"
)

// Router parses inbound frames into typed messages and fans them out per
// category, isolating every other component from the raw wire format.
// Malformed frames are counted and dropped; unknown types are logged and
// dropped; neither ever terminates the session.
type Router struct {
	logger *slog.Logger
	m      *metrics.Metrics

	mu     sync.Mutex
	closed bool

	transcripts  chan protocol.ServerTranscript
	audioChunks  chan audio.Chunk
	stats        chan protocol.ServerSessionStats
	serverErrors chan string

	audioSeq int64
}

// NewRouter creates a router. logger may be nil; m may be nil.
func NewRouter(logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:       logger.With(slog.String("component", "router")),
		m:            m,
		transcripts:  make(chan protocol.ServerTranscript, 32),
		audioChunks:  make(chan audio.Chunk, 64),
		stats:        make(chan protocol.ServerSessionStats, 8),
		serverErrors: make(chan string, 8),
	}
}

// Transcripts yields interim and final transcript events.
func (r *Router) Transcripts() <-chan protocol.ServerTranscript { return r.transcripts }

// Audio yields decoded inbound audio chunks in arrival order, ready for the
// playback scheduler.
func (r *Router) Audio() <-chan audio.Chunk { return r.audioChunks }

// Stats yields session_stats updates.
func (r *Router) Stats() <-chan protocol.ServerSessionStats { return r.stats }

// ServerErrors yields normalized server-reported error strings.
func (r *Router) ServerErrors() <-chan string { return r.serverErrors }

// ParseFrame decodes one JSON control frame. It returns (nil, false) for
// frames that were dropped (malformed or unknown type).
func (r *Router) ParseFrame(data []byte) (any, bool) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		if _, unknown := err.(*protocol.UnknownTypeError); unknown {
			r.m.IncUnknownFrame()
			r.logger.Debug("dropping unknown frame", slog.String("error", err.Error()))
		} else {
			r.m.IncParseError()
			r.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return msg, true
}

// Route fans a typed message out to its subscriber channel. Slow consumers
// lose messages rather than stalling the read loop.
func (r *Router) Route(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch m := msg.(type) {
	case protocol.ServerTranscript:
		r.m.IncFrameIn("transcript")
		r.deliverTranscript(m)
	case protocol.ServerAudioChunk:
		r.m.IncFrameIn("audio")
		samples, err := audio.DecodeBase64(m.DataB64)
		if err != nil {
			r.m.IncParseError()
			r.logger.Warn("dropping audio chunk with bad payload", slog.String("error", err.Error()))
			return
		}
		r.m.AddAudioBytes("in", len(samples)*2)
		r.deliverAudio(samples)
	case protocol.ServerSessionStats:
		r.m.IncFrameIn("stats")
		select {
		case r.stats <- m:
		default:
		}
	case protocol.ServerError:
		r.m.IncFrameIn("error")
		select {
		case r.serverErrors <- m.Normalize():
		default:
		}
	default:
		r.m.IncFrameIn("control")
	}
}

// RouteBinary handles a raw PCM16LE binary audio frame.
func (r *Router) RouteBinary(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.m.IncFrameIn("audio")
	r.m.AddAudioBytes("in", len(data))
	r.deliverAudio(audio.BytesToPCM16(data))
}

func (r *Router) deliverTranscript(m protocol.ServerTranscript) {
	select {
	case r.transcripts <- m:
	default:
		r.logger.Warn("transcript buffer full, dropping")
	}
}

func (r *Router) deliverAudio(samples []int16) {
	r.audioSeq++
	chunk := audio.Chunk{Samples: samples, Seq: r.audioSeq}
	select {
	case r.audioChunks <- chunk:
	default:
		r.logger.Warn("audio buffer full, dropping chunk", slog.Int64("seq", chunk.Seq))
	}
}

// Close closes all subscriber channels. Idempotent.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.transcripts)
	close(r.audioChunks)
	close(r.stats)
	close(r.serverErrors)
}
