// Package playback schedules received audio chunks for gapless, ordered
// output, absorbing network jitter, and feeds them to a speaker sink.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/voicewire/pkg/audio"
)

// Sink receives PCM ready for immediate output.
type Sink interface {
	// Write plays the samples as soon as possible.
	Write(samples []int16)
	// Flush discards any audio the sink has buffered but not yet played.
	Flush()
	// Close releases the output device.
	Close() error
}

// Item is a chunk plus the start time the scheduler computed for it.
type Item struct {
	Chunk   audio.Chunk
	StartAt time.Time
}

// Config controls the scheduler.
type Config struct {
	SampleRateHz int
	Channels     int
}

// DefaultConfig returns mono 16 kHz playback.
func DefaultConfig() Config {
	return Config{SampleRateHz: 16000, Channels: 1}
}

// Scheduler paces chunks onto the sink so playback is strictly sequential
// and non-overlapping: each chunk starts at max(now, nextPlayTime) and
// advances nextPlayTime by its duration. Chunks are never reordered; the
// protocol delivers them in play order.
type Scheduler struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	mu           sync.Mutex
	live         bool
	nextPlayTime time.Time
	timers       map[int64]*time.Timer
	nextID       int64
}

// NewScheduler creates a running scheduler over the given sink.
func NewScheduler(cfg Config, sink Sink, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		sink:      sink,
		logger:    logger.With(slog.String("component", "playback")),
		now:       time.Now,
		afterFunc: time.AfterFunc,
		live:      true,
		timers:    make(map[int64]*time.Timer),
	}
}

// Enqueue schedules one received chunk and returns the computed item. The
// returned start time is non-decreasing across calls and never earlier than
// the previous chunk's start plus its duration.
func (s *Scheduler) Enqueue(chunk audio.Chunk) Item {
	dur := time.Duration(chunk.DurationMS(s.cfg.SampleRateHz)) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	start := now
	if s.nextPlayTime.After(start) {
		start = s.nextPlayTime
	}
	s.nextPlayTime = start.Add(dur)

	item := Item{Chunk: chunk, StartAt: start}
	if !s.live {
		return item
	}

	id := s.nextID
	s.nextID++
	s.timers[id] = s.afterFunc(start.Sub(now), func() {
		s.fire(id, chunk)
	})
	return item
}

func (s *Scheduler) fire(id int64, chunk audio.Chunk) {
	s.mu.Lock()
	if _, ok := s.timers[id]; !ok || !s.live {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	sink := s.sink
	s.mu.Unlock()

	sink.Write(chunk.Samples)
}

// Pending reports how many chunks are scheduled but not yet played.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Clear discards all pending scheduled chunks, flushes the sink, and resets
// the timeline. Used on session end and barge-in. Idempotent.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.nextPlayTime = time.Time{}
	sink := s.sink
	live := s.live
	s.mu.Unlock()

	if live {
		sink.Flush()
	}
}

// Close stops the scheduler and the sink. Idempotent; no chunk fires after
// Close returns.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return nil
	}
	s.live = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	sink := s.sink
	s.mu.Unlock()

	return sink.Close()
}
