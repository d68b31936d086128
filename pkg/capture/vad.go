package capture

// VADConfig tunes the energy-based voice activity detector.
type VADConfig struct {
	// Threshold is the normalized RMS level above which a chunk counts as
	// speech.
	Threshold float64
	// MinSpeechMS is the minimum speech run length for a segment to be
	// reported; shorter bursts are noise.
	MinSpeechMS int64
	// MinSilenceMS is how long the level must stay below Threshold before a
	// segment is closed.
	MinSilenceMS int64
}

// DefaultVADConfig returns the detector defaults.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:    0.02,
		MinSpeechMS:  100,
		MinSilenceMS: 300,
	}
}

// VADState is the detector's view of the current segment.
type VADState struct {
	IsSpeaking     bool
	SpeechStartMS  int64
	SilenceStartMS int64
}

// SpeechStartEvent fires the first time the level crosses the threshold after
// a silence period.
type SpeechStartEvent struct {
	AtMS int64
}

// SpeechEndEvent fires once the level has stayed below the threshold for
// MinSilenceMS, provided the segment lasted at least MinSpeechMS.
type SpeechEndEvent struct {
	StartMS    int64
	EndMS      int64
	DurationMS int64
}

// Detector segments a chunk stream into speech and silence using per-chunk
// RMS energy. It is purely a function of the incoming chunks: detection keeps
// running regardless of transport state. Not safe for concurrent use; driven
// from the single capture callback.
type Detector struct {
	cfg   VADConfig
	state VADState
	posMS int64

	inSilenceRun bool
}

// NewDetector creates a detector with the given config, falling back to
// defaults for zero fields.
func NewDetector(cfg VADConfig) *Detector {
	def := DefaultVADConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinSpeechMS <= 0 {
		cfg.MinSpeechMS = def.MinSpeechMS
	}
	if cfg.MinSilenceMS <= 0 {
		cfg.MinSilenceMS = def.MinSilenceMS
	}
	return &Detector{cfg: cfg}
}

// State returns a copy of the current detector state.
func (d *Detector) State() VADState {
	return d.state
}

// Process advances the detector by one chunk of the given duration and RMS
// level. It returns zero, one, or two events (a burst can open and a silence
// window can close a segment on the same call only across chunks, so in
// practice at most one).
func (d *Detector) Process(rms float64, durationMS int64) []any {
	start := d.posMS
	d.posMS += durationMS

	var events []any
	speech := rms > d.cfg.Threshold

	if speech {
		if !d.state.IsSpeaking {
			d.state = VADState{IsSpeaking: true, SpeechStartMS: start}
			events = append(events, SpeechStartEvent{AtMS: start})
		}
		// Any speech clears a pending silence window.
		d.inSilenceRun = false
		d.state.SilenceStartMS = 0
		return events
	}

	if !d.state.IsSpeaking {
		return events
	}

	if !d.inSilenceRun {
		d.inSilenceRun = true
		d.state.SilenceStartMS = start
	}
	if d.posMS-d.state.SilenceStartMS >= d.cfg.MinSilenceMS {
		segDur := d.state.SilenceStartMS - d.state.SpeechStartMS
		if segDur >= d.cfg.MinSpeechMS {
			events = append(events, SpeechEndEvent{
				StartMS:    d.state.SpeechStartMS,
				EndMS:      d.state.SilenceStartMS,
				DurationMS: segDur,
			})
		}
		// Segment complete (or discarded as noise): reset.
		d.state = VADState{}
		d.inSilenceRun = false
	}
	return events
}
