// Package meter provides a smoothed, normalized audio level for UI feedback,
// decoupled from capture and transmission.
package meter

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls sampling and smoothing.
type Config struct {
	// Smoothing is the exponential smoothing factor applied per sample.
	Smoothing float64
	// Interval is the sampling cadence, normally the display refresh rate.
	Interval time.Duration
}

// DefaultConfig samples at ~60 Hz with 0.8 smoothing.
func DefaultConfig() Config {
	return Config{Smoothing: 0.8, Interval: 16 * time.Millisecond}
}

// Meter taps the capture pipeline via SetRaw and publishes an exponentially
// smoothed 0–1 level on every tick. The producer side is lock-free so the
// capture callback never blocks on the UI.
type Meter struct {
	cfg Config

	rawBits atomic.Uint64

	mu      sync.Mutex
	running bool
	level   float64
	cancel  chan struct{}
	done    chan struct{}
	levels  chan float64
}

// NewMeter creates a stopped meter.
func NewMeter(cfg Config) *Meter {
	def := DefaultConfig()
	if cfg.Smoothing <= 0 || cfg.Smoothing >= 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Meter{
		cfg:    cfg,
		levels: make(chan float64, 8),
	}
}

// SetRaw records the latest raw amplitude (0–1). Safe to call from the
// capture callback at any rate; values outside [0, 1] are clamped.
func (m *Meter) SetRaw(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	m.rawBits.Store(math.Float64bits(level))
}

// Level returns the most recent smoothed value.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Levels yields one smoothed value per tick while the meter runs. Slow
// consumers miss ticks rather than stalling the loop.
func (m *Meter) Levels() <-chan float64 {
	return m.levels
}

// Start begins the sampling loop. Idempotent.
func (m *Meter) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.cancel = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.cancel, m.done)
}

// Stop halts the loop; no further values are published once it returns.
// Idempotent.
func (m *Meter) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	close(cancel)
	<-done
}

func (m *Meter) run(cancel <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Meter) tick() {
	raw := math.Float64frombits(m.rawBits.Load())

	m.mu.Lock()
	m.level = m.cfg.Smoothing*m.level + (1-m.cfg.Smoothing)*raw
	level := m.level
	m.mu.Unlock()

	select {
	case m.levels <- level:
	default:
	}
}
