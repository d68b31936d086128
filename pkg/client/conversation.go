package client

import (
	"log/slog"
	"sync"

	"github.com/vango-go/voicewire/pkg/audio"
	"github.com/vango-go/voicewire/pkg/capture"
	"github.com/vango-go/voicewire/pkg/meter"
	"github.com/vango-go/voicewire/pkg/playback"
	"github.com/vango-go/voicewire/pkg/protocol"
	"github.com/vango-go/voicewire/pkg/session"
)

// Quality is the derived connection quality exposed to presentation layers.
type Quality string

const (
	QualityGood     Quality = "good"
	QualityDegraded Quality = "degraded"
	QualityPoor     Quality = "poor"
)

// qualityForAttempt maps reconnect progress to a displayable quality: early
// attempts are a blip, later ones a real problem.
func qualityForAttempt(attempt int) Quality {
	if attempt <= 2 {
		return QualityDegraded
	}
	return QualityPoor
}

// Event is an outward conversation event for presentation-layer consumption.
type Event interface {
	clientEventType() string
}

// TranscriptEvent carries an interim or final transcript.
type TranscriptEvent struct {
	Text       string
	Confidence float64
	Emotion    string
	IsFinal    bool
}

func (e TranscriptEvent) clientEventType() string { return "transcript" }

// AudioLevelEvent carries the smoothed microphone level, one per meter tick.
type AudioLevelEvent struct {
	Level float64
}

func (e AudioLevelEvent) clientEventType() string { return "audio_level" }

// QualityEvent fires when the derived connection quality changes.
type QualityEvent struct {
	Quality Quality
}

func (e QualityEvent) clientEventType() string { return "connection_quality" }

// StatsEvent carries a server session_stats update.
type StatsEvent struct {
	Stats protocol.ServerSessionStats
}

func (e StatsEvent) clientEventType() string { return "session_stats" }

// SpeechEvent reports VAD speech segmentation from the capture pipeline.
type SpeechEvent struct {
	Speaking   bool
	DurationMS int64
}

func (e SpeechEvent) clientEventType() string { return "speech" }

// ServerErrorEvent carries a normalized server-reported error for display.
// It does not imply the session closed.
type ServerErrorEvent struct {
	Message string
}

func (e ServerErrorEvent) clientEventType() string { return "server_error" }

// DeviceErrorEvent reports a fatal capture device failure. The conversation
// is already stopping when it fires.
type DeviceErrorEvent struct {
	Err error
}

func (e DeviceErrorEvent) clientEventType() string { return "device_error" }

// EndedEvent is the last event: the conversation is over, deliberately or
// after exhausting reconnect attempts.
type EndedEvent struct {
	Err error
}

func (e EndedEvent) clientEventType() string { return "ended" }

// Conversation is one live duplex voice exchange. All components are owned by
// it and torn down together by Stop.
type Conversation struct {
	logger *slog.Logger
	conn   *session.Conn
	source *capture.Source
	sched  *playback.Scheduler
	meter  *meter.Meter

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	quality   Quality
	lastStats protocol.ServerSessionStats
	endErr    error
}

// Events yields conversation events until Stop. Slow consumers miss events
// rather than stalling the pipeline.
func (cv *Conversation) Events() <-chan Event {
	return cv.events
}

// SessionID returns the server-assigned session id.
func (cv *Conversation) SessionID() string {
	return cv.conn.SessionID()
}

// Quality returns the current derived connection quality.
func (cv *Conversation) Quality() Quality {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.quality
}

// LastStats returns the most recent session_stats payload.
func (cv *Conversation) LastStats() protocol.ServerSessionStats {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.lastStats
}

// Level returns the current smoothed microphone level.
func (cv *Conversation) Level() float64 {
	return cv.meter.Level()
}

// ExportWAV returns the recorded session audio as a WAV file. Requires
// capture.Config.Record.
func (cv *Conversation) ExportWAV() ([]byte, error) {
	return cv.source.ExportWAV()
}

// Stop ends the conversation: recording stops, the session disconnects, and
// pending playback is discarded. Idempotent.
func (cv *Conversation) Stop() {
	cv.mu.Lock()
	if cv.closed {
		cv.mu.Unlock()
		return
	}
	cv.closed = true
	endErr := cv.endErr
	cv.mu.Unlock()

	cv.conn.Send(protocol.ClientStopRecording{})
	cv.source.Stop()
	cv.conn.Disconnect()
	cv.sched.Clear()
	_ = cv.sched.Close()
	cv.meter.Stop()

	close(cv.done)
	cv.wg.Wait()

	cv.emit(EndedEvent{Err: endErr})
	close(cv.events)
	cv.logger.Info("conversation ended")
}

// endWith records a terminal cause and stops asynchronously so pump
// goroutines can call it without deadlocking on their own teardown.
func (cv *Conversation) endWith(err error) {
	cv.mu.Lock()
	if cv.endErr == nil {
		cv.endErr = err
	}
	cv.mu.Unlock()
	go cv.Stop()
}

func (cv *Conversation) startPumps() {
	pumps := []func(){
		cv.pumpCapture,
		cv.pumpCaptureEvents,
		cv.pumpInboundAudio,
		cv.pumpTranscripts,
		cv.pumpStats,
		cv.pumpServerErrors,
		cv.pumpSessionEvents,
		cv.pumpLevels,
	}
	cv.wg.Add(len(pumps))
	for _, pump := range pumps {
		go func() {
			defer cv.wg.Done()
			pump()
		}()
	}
}

func (cv *Conversation) pumpCapture() {
	for chunk := range cv.source.Chunks() {
		cv.meter.SetRaw(audio.RMS(chunk.Samples))
		cv.conn.SendAudio(chunk)
	}
}

func (cv *Conversation) pumpCaptureEvents() {
	for ev := range cv.source.Events() {
		switch e := ev.(type) {
		case capture.SpeechStartEvent:
			// Barge-in: the user talking over assistant audio interrupts it.
			if cv.sched.Pending() > 0 {
				cv.sched.Clear()
			}
			cv.emit(SpeechEvent{Speaking: true})
		case capture.SpeechEndEvent:
			cv.emit(SpeechEvent{Speaking: false, DurationMS: e.DurationMS})
		case capture.DeviceErrorEvent:
			cv.emit(DeviceErrorEvent{Err: e.Err})
			cv.endWith(e.Err)
		case capture.StoppedEvent:
			// Final event on this channel; teardown is already under way.
		}
	}
}

func (cv *Conversation) pumpInboundAudio() {
	for chunk := range cv.conn.Router().Audio() {
		cv.sched.Enqueue(chunk)
	}
}

func (cv *Conversation) pumpTranscripts() {
	for tr := range cv.conn.Router().Transcripts() {
		cv.emit(TranscriptEvent{
			Text:       tr.Text,
			Confidence: tr.Confidence,
			Emotion:    tr.Emotion,
			IsFinal:    tr.IsFinal,
		})
	}
}

func (cv *Conversation) pumpStats() {
	for st := range cv.conn.Router().Stats() {
		cv.mu.Lock()
		cv.lastStats = st
		cv.mu.Unlock()
		cv.emit(StatsEvent{Stats: st})
	}
}

func (cv *Conversation) pumpServerErrors() {
	for msg := range cv.conn.Router().ServerErrors() {
		cv.emit(ServerErrorEvent{Message: msg})
	}
}

func (cv *Conversation) pumpSessionEvents() {
	for ev := range cv.conn.Events() {
		switch e := ev.(type) {
		case session.StateChangeEvent:
			if e.To == session.StateActive {
				cv.setQuality(QualityGood)
			}
		case session.ReconnectingEvent:
			cv.setQuality(qualityForAttempt(e.Attempt))
		case session.ReconnectExhaustedEvent:
			cv.setQuality(QualityPoor)
			cv.endWith(session.ErrReconnectExhausted)
		}
	}
}

func (cv *Conversation) pumpLevels() {
	for {
		select {
		case <-cv.done:
			return
		case level := <-cv.meter.Levels():
			cv.emit(AudioLevelEvent{Level: level})
		}
	}
}

func (cv *Conversation) setQuality(q Quality) {
	cv.mu.Lock()
	changed := cv.quality != q
	cv.quality = q
	cv.mu.Unlock()
	if changed {
		cv.emit(QualityEvent{Quality: q})
	}
}

func (cv *Conversation) emit(ev Event) {
	select {
	case cv.events <- ev:
	default:
		cv.logger.Warn("event buffer full, dropping", slog.String("event", ev.clientEventType()))
	}
}
