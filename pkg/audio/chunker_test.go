package audio

import "testing"

func TestChunkerEmitsFixedChunks(t *testing.T) {
	var nowMS int64 = 1000
	c := NewChunker(16000, 100, func() int64 { return nowMS })

	// A 20 ms device period is 320 samples; five periods fill one chunk.
	period := make([]int16, 320)
	for i := 0; i < 4; i++ {
		if got := c.Write(period); len(got) != 0 {
			t.Fatalf("chunk emitted after %d periods", i+1)
		}
	}
	if got := c.Pending(); got != 1280 {
		t.Fatalf("pending = %d, want 1280", got)
	}

	chunks := c.Write(period)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if len(chunks[0].Samples) != 1600 {
		t.Fatalf("chunk samples = %d, want 1600", len(chunks[0].Samples))
	}
	if chunks[0].Seq != 1 {
		t.Fatalf("seq = %d, want 1", chunks[0].Seq)
	}
	if chunks[0].CapturedAtMS != 1000 {
		t.Fatalf("captured at = %d, want 1000", chunks[0].CapturedAtMS)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending after emit = %d, want 0", c.Pending())
	}
}

func TestChunkerEmitsMultipleChunksFromOneWrite(t *testing.T) {
	c := NewChunker(16000, 100, nil)

	chunks := c.Write(make([]int16, 3700))
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Seq != 1 || chunks[1].Seq != 2 {
		t.Fatalf("seqs = %d, %d, want 1, 2", chunks[0].Seq, chunks[1].Seq)
	}
	if c.Pending() != 500 {
		t.Fatalf("pending = %d, want 500", c.Pending())
	}
}

func TestChunkerFlushEmitsPartialChunk(t *testing.T) {
	c := NewChunker(16000, 100, nil)

	if final := c.Flush(); final != nil {
		t.Fatal("flush of empty chunker returned a chunk")
	}

	c.Write(make([]int16, 700))
	final := c.Flush()
	if final == nil {
		t.Fatal("flush returned nil with pending samples")
	}
	if len(final.Samples) != 700 {
		t.Fatalf("final chunk samples = %d, want 700", len(final.Samples))
	}
	if final.Seq != 1 {
		t.Fatalf("final seq = %d, want 1", final.Seq)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending after flush = %d, want 0", c.Pending())
	}
}
