// Package capture turns a live microphone stream into fixed-duration PCM
// chunks tagged with speech/silence segmentation.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/voicewire/pkg/audio"
)

var (
	// ErrPermissionDenied means the user declined microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no capture device could be acquired.
	ErrDeviceUnavailable = errors.New("no capture device available")
	// ErrAlreadyCapturing means another source currently owns the device.
	ErrAlreadyCapturing = errors.New("capture already active")
)

// One active capture source owns the device at a time.
var deviceActive atomic.Bool

// Config controls the capture pipeline.
type Config struct {
	SampleRateHz int
	Channels     int
	ChunkMS      int
	VAD          VADConfig

	// Record accumulates the full session for WAV export.
	Record bool
}

// DefaultConfig returns mono 16 kHz capture with 100 ms chunks.
func DefaultConfig() Config {
	return Config{
		SampleRateHz: 16000,
		Channels:     1,
		ChunkMS:      100,
		VAD:          DefaultVADConfig(),
	}
}

// StoppedEvent is emitted exactly once when capture stops.
type StoppedEvent struct{}

// DeviceErrorEvent reports a mid-session device failure (for example the
// microphone being unplugged). The pipeline is already stopped when it fires.
type DeviceErrorEvent struct {
	Err error
}

// Source owns one microphone device and emits audio.Chunks at a fixed
// cadence, with VAD events interleaved on the event channel.
type Source struct {
	cfg    Config
	logger *slog.Logger

	chunks chan audio.Chunk
	events chan any

	mu        sync.Mutex
	started   bool
	stopped   bool
	live      bool // false once teardown begins; checked before every emit
	chunker   *audio.Chunker
	vad       *Detector
	recording []int16

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewSource creates an idle capture source. Call Start to acquire the
// microphone.
func NewSource(cfg Config, logger *slog.Logger) *Source {
	def := DefaultConfig()
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.ChunkMS <= 0 {
		cfg.ChunkMS = def.ChunkMS
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "capture")),
		chunks:  make(chan audio.Chunk, 64),
		events:  make(chan any, 64),
		chunker: audio.NewChunker(cfg.SampleRateHz, cfg.ChunkMS, func() int64 { return time.Now().UnixMilli() }),
		vad:     NewDetector(cfg.VAD),
	}
}

// Chunks yields captured fixed-duration chunks. The channel closes when
// capture stops.
func (s *Source) Chunks() <-chan audio.Chunk {
	return s.chunks
}

// Events yields SpeechStartEvent, SpeechEndEvent, DeviceErrorEvent, and a
// final StoppedEvent. The channel closes when capture stops.
func (s *Source) Events() <-chan any {
	return s.events
}

// Start acquires the microphone and begins emitting chunks. It fails with
// ErrAlreadyCapturing if another source holds the device, ErrDeviceUnavailable
// if no device can be initialized, and ErrPermissionDenied if the OS refuses
// capture access.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyCapturing
	}
	if !deviceActive.CompareAndSwap(false, true) {
		return ErrAlreadyCapturing
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		deviceActive.Store(false)
		return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(s.cfg.Channels)
	devCfg.SampleRate = uint32(s.cfg.SampleRateHz)
	devCfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.processInput(input)
		},
		Stop: func() {
			s.onDeviceStopped()
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		deviceActive.Store(false)
		return fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		deviceActive.Store(false)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	s.malgoCtx = malgoCtx
	s.device = device
	s.started = true
	s.live = true
	s.logger.Info("capture started",
		slog.Int("sample_rate_hz", s.cfg.SampleRateHz),
		slog.Int("chunk_ms", s.cfg.ChunkMS))
	return nil
}

// Stop flushes any partial buffer as a final short chunk, releases the
// device, and emits StoppedEvent. Idempotent.
func (s *Source) Stop() {
	s.stop(nil)
}

func (s *Source) stop(cause error) {
	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return
	}
	s.live = false
	s.stopped = true

	if final := s.chunker.Flush(); final != nil {
		if s.cfg.Record {
			s.recording = append(s.recording, final.Samples...)
		}
		select {
		case s.chunks <- *final:
		default:
			s.logger.Warn("chunk buffer full, dropping final chunk")
		}
	}
	if cause != nil {
		select {
		case s.events <- DeviceErrorEvent{Err: cause}:
		default:
		}
	}
	select {
	case s.events <- StoppedEvent{}:
	default:
	}

	device := s.device
	malgoCtx := s.malgoCtx
	s.device = nil
	s.malgoCtx = nil

	close(s.chunks)
	close(s.events)
	s.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if malgoCtx != nil {
		_ = malgoCtx.Uninit()
	}
	if s.started {
		deviceActive.Store(false)
	}
	s.logger.Info("capture stopped")
}

// ExportWAV returns the accumulated session recording as a WAV file. Only
// populated when Config.Record is set.
func (s *Source) ExportWAV() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recording) == 0 {
		return nil, fmt.Errorf("no recorded audio")
	}
	return audio.EncodeWAV(s.recording, s.cfg.SampleRateHz, s.cfg.Channels)
}

// processInput runs on the device's realtime callback thread.
func (s *Source) processInput(input []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return
	}

	samples := audio.BytesToPCM16(input)
	for _, chunk := range s.chunker.Write(samples) {
		if s.cfg.Record {
			s.recording = append(s.recording, chunk.Samples...)
		}
		for _, ev := range s.vad.Process(audio.RMS(chunk.Samples), int64(s.cfg.ChunkMS)) {
			select {
			case s.events <- ev:
			default:
				s.logger.Warn("event buffer full, dropping VAD event")
			}
		}
		select {
		case s.chunks <- chunk:
		default:
			s.logger.Warn("chunk buffer full, dropping chunk", slog.Int64("seq", chunk.Seq))
		}
	}
}

// onDeviceStopped fires from malgo when the device halts. A user-initiated
// Stop has already cleared the live flag; anything else is a device failure.
func (s *Source) onDeviceStopped() {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if !live {
		return
	}
	s.logger.Error("capture device stopped unexpectedly")
	s.stop(fmt.Errorf("capture device stopped unexpectedly"))
}
