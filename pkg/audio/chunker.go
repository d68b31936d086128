package audio

// Chunker slices an arbitrary incoming PCM stream into fixed-duration chunks.
// The capture device delivers samples at its own period (typically 20 ms);
// the chunker re-frames them at the transport chunk duration (default 100 ms)
// and stamps each chunk with a monotonic sequence number.
//
// Chunker is not safe for concurrent use; it is driven from the single
// capture callback.
type Chunker struct {
	chunkSamples int
	seq          int64
	pending      []int16

	now func() int64 // capture timestamp in ms
}

// NewChunker creates a chunker emitting chunks of chunkMS milliseconds at the
// given sample rate. nowMS supplies capture timestamps; pass nil for wall
// clock.
func NewChunker(sampleRateHz, chunkMS int, nowMS func() int64) *Chunker {
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	if chunkMS <= 0 {
		chunkMS = 100
	}
	c := &Chunker{
		chunkSamples: sampleRateHz * chunkMS / 1000,
		now:          nowMS,
	}
	if c.chunkSamples <= 0 {
		c.chunkSamples = 1
	}
	return c
}

// Write appends samples and returns any completed fixed-size chunks.
func (c *Chunker) Write(samples []int16) []Chunk {
	c.pending = append(c.pending, samples...)

	var out []Chunk
	for len(c.pending) >= c.chunkSamples {
		chunk := make([]int16, c.chunkSamples)
		copy(chunk, c.pending[:c.chunkSamples])
		c.pending = c.pending[c.chunkSamples:]
		out = append(out, c.emit(chunk))
	}
	return out
}

// Flush returns the partially filled buffer as a final short chunk, or nil
// if nothing is pending. Called once when capture stops.
func (c *Chunker) Flush() *Chunk {
	if len(c.pending) == 0 {
		return nil
	}
	chunk := make([]int16, len(c.pending))
	copy(chunk, c.pending)
	c.pending = c.pending[:0]
	final := c.emit(chunk)
	return &final
}

// Pending reports how many samples are buffered short of a full chunk.
func (c *Chunker) Pending() int {
	return len(c.pending)
}

func (c *Chunker) emit(samples []int16) Chunk {
	c.seq++
	var ts int64
	if c.now != nil {
		ts = c.now()
	}
	return Chunk{Samples: samples, Seq: c.seq, CapturedAtMS: ts}
}
