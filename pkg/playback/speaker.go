package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vango-go/voicewire/pkg/audio"
)

// deviceBufferSize keeps the device queue short so barge-in cuts audio
// quickly without starving the player.
const deviceBufferSize = 100 * time.Millisecond

// Speaker plays PCM16 through the default output device via oto. It
// implements Sink with a pull-model player: oto reads from the internal
// buffer as the hardware drains.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

// speakerContextOptions builds the oto context options for the output
// device, defaulting to mono 16 kHz.
func speakerContextOptions(sampleRateHz, channels int) *oto.NewContextOptions {
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &oto.NewContextOptions{
		SampleRate:   sampleRateHz,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   deviceBufferSize,
	}
}

// NewSpeaker opens the output device at the given rate and channel count.
// The device buffer is kept near 100 ms for low latency.
func NewSpeaker(sampleRateHz, channels int) (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(speakerContextOptions(sampleRateHz, channels))
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &Speaker{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write queues samples for playback, creating the player on first write and
// resuming it after a Flush. One player serves the speaker's whole lifetime
// so only a single oto goroutine ever pulls from Read.
func (s *Speaker) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}
	data := audio.PCM16ToBytes(samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)
	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(s)
	}
	if !s.playing {
		s.playing = true
		s.player.Play()
	}
	s.cond.Signal()
}

// Read implements io.Reader for oto's pull model. It blocks until data is
// available or the speaker closes, then hands oto whatever is buffered.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards buffered audio and pauses the player so anything queued in
// the device buffer stops immediately. Used for barge-in; the next Write
// resumes playback.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	wasPlaying := s.playing
	s.playing = false
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil && wasPlaying {
		player.Pause()
	}
}

// Close stops playback and releases the player. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}
