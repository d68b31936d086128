package playback

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/voicewire/pkg/audio"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

type fakeSink struct {
	mu      sync.Mutex
	writes  [][]int16
	flushes int
	closes  int
}

func (s *fakeSink) Write(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, samples)
}

func (s *fakeSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// newTestScheduler returns a scheduler on a fake clock whose timer callbacks
// are collected instead of fired.
func newTestScheduler(clock *fakeClock, sink Sink) (*Scheduler, *[]func()) {
	s := NewScheduler(DefaultConfig(), sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = clock.now
	var fns []func()
	s.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		fns = append(fns, fn)
		return time.NewTimer(time.Hour)
	}
	return s, &fns
}

func chunkOfMS(ms int) audio.Chunk {
	return audio.Chunk{Samples: make([]int16, 16000*ms/1000)}
}

func TestSchedulerStartTimesAreMonotonic(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(100, 0)}
	s, _ := newTestScheduler(clock, &fakeSink{})
	defer s.Close()

	// A burst of chunks arriving at the same instant is paced back to back.
	var prev Item
	for i := 0; i < 5; i++ {
		item := s.Enqueue(chunkOfMS(100))
		if i == 0 {
			if !item.StartAt.Equal(clock.now()) {
				t.Fatalf("first start = %v, want now %v", item.StartAt, clock.now())
			}
		} else {
			wantMin := prev.StartAt.Add(100 * time.Millisecond)
			if item.StartAt.Before(wantMin) {
				t.Fatalf("chunk %d starts at %v, overlaps previous ending %v", i, item.StartAt, wantMin)
			}
			if item.StartAt.Before(prev.StartAt) {
				t.Fatalf("chunk %d start %v precedes chunk %d start %v", i, item.StartAt, i-1, prev.StartAt)
			}
		}
		prev = item
	}
	if got := s.Pending(); got != 5 {
		t.Fatalf("pending = %d, want 5", got)
	}
}

func TestSchedulerNeverSchedulesInThePast(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(100, 0)}
	s, _ := newTestScheduler(clock, &fakeSink{})
	defer s.Close()

	s.Enqueue(chunkOfMS(100))

	// The stream goes idle; the clock moves well past nextPlayTime. The next
	// chunk must play immediately, not queue behind stale catch-up time.
	clock.advance(5 * time.Second)
	item := s.Enqueue(chunkOfMS(100))
	if !item.StartAt.Equal(clock.now()) {
		t.Fatalf("start after idle gap = %v, want now %v", item.StartAt, clock.now())
	}
}

func TestSchedulerFiresChunkToSink(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(100, 0)}
	sink := &fakeSink{}
	s, fns := newTestScheduler(clock, sink)
	defer s.Close()

	s.Enqueue(chunkOfMS(100))
	if len(*fns) != 1 {
		t.Fatalf("scheduled callbacks = %d, want 1", len(*fns))
	}
	(*fns)[0]()

	if sink.writeCount() != 1 {
		t.Fatalf("sink writes = %d, want 1", sink.writeCount())
	}
	if got := s.Pending(); got != 0 {
		t.Fatalf("pending after fire = %d, want 0", got)
	}
}

func TestClearDiscardsPendingAndResetsTimeline(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(100, 0)}
	sink := &fakeSink{}
	s, fns := newTestScheduler(clock, sink)
	defer s.Close()

	s.Enqueue(chunkOfMS(100))
	s.Enqueue(chunkOfMS(100))
	s.Clear()

	if got := s.Pending(); got != 0 {
		t.Fatalf("pending after clear = %d, want 0", got)
	}
	if sink.flushes != 1 {
		t.Fatalf("sink flushes = %d, want 1", sink.flushes)
	}

	// Cancelled callbacks firing late must not reach the sink.
	for _, fn := range *fns {
		fn()
	}
	if sink.writeCount() != 0 {
		t.Fatalf("sink writes after clear = %d, want 0", sink.writeCount())
	}

	// The timeline restarts from the clock, not the old nextPlayTime.
	item := s.Enqueue(chunkOfMS(100))
	if !item.StartAt.Equal(clock.now()) {
		t.Fatalf("start after clear = %v, want now %v", item.StartAt, clock.now())
	}
}

func TestCloseIsIdempotentAndStopsCallbacks(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(100, 0)}
	sink := &fakeSink{}
	s, fns := newTestScheduler(clock, sink)

	s.Enqueue(chunkOfMS(100))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if sink.closes != 1 {
		t.Fatalf("sink closes = %d, want 1", sink.closes)
	}

	for _, fn := range *fns {
		fn()
	}
	if sink.writeCount() != 0 {
		t.Fatalf("sink writes after close = %d, want 0", sink.writeCount())
	}
}
