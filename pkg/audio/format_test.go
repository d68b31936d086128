package audio

import (
	"math"
	"testing"
)

func TestFloatToPCM16Mapping(t *testing.T) {
	cases := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{0.5, 16384}, // round(0.5 * 32767) = 16384
		{-0.5, -16384},
		{2, 32767},   // clamped
		{-2, -32768}, // clamped
	}
	for _, tc := range cases {
		got := FloatToPCM16([]float64{tc.in})
		if got[0] != tc.want {
			t.Errorf("FloatToPCM16(%v) = %d, want %d", tc.in, got[0], tc.want)
		}
	}
}

func TestFloatRoundTripWithinOneLSB(t *testing.T) {
	in := []float64{1, -1, 0}
	for i := 0; i < 200; i++ {
		in = append(in, 0.5*math.Sin(float64(i)*0.1))
	}

	out := PCM16ToFloat(FloatToPCM16(in))
	for i := range in {
		if diff := math.Abs(out[i] - in[i]); diff > 1.0/32768 {
			t.Fatalf("sample %d: round-trip error %v exceeds 1 LSB", i, diff)
		}
	}
}

func TestPCM16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	out := BytesToPCM16(PCM16ToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestBytesToPCM16DropsOddTrailingByte(t *testing.T) {
	out := BytesToPCM16([]byte{0x01, 0x00, 0xff})
	if len(out) != 1 || out[0] != 1 {
		t.Fatalf("got %v, want [1]", out)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	in := []int16{100, -200, 300, -32768}
	out, err := DecodeBase64(EncodeBase64(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}

	if _, err := DecodeBase64("!!!"); err == nil {
		t.Fatal("decoding invalid base64 succeeded")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]int16{0, 0, 0}); got != 0 {
		t.Fatalf("RMS(silence) = %v, want 0", got)
	}

	// A constant full-scale negative signal has RMS 1.
	full := []int16{-32768, -32768, -32768, -32768}
	if got := RMS(full); math.Abs(got-1) > 1e-9 {
		t.Fatalf("RMS(full scale) = %v, want 1", got)
	}

	quiet := []int16{100, -100, 100, -100}
	loud := []int16{10000, -10000, 10000, -10000}
	if RMS(quiet) >= RMS(loud) {
		t.Fatal("quiet signal has RMS >= loud signal")
	}
}

func TestChunkDurationMS(t *testing.T) {
	c := Chunk{Samples: make([]int16, 1600)}
	if got := c.DurationMS(16000); got != 100 {
		t.Fatalf("duration = %d, want 100", got)
	}
	if got := c.DurationMS(0); got != 0 {
		t.Fatalf("duration at zero rate = %d, want 0", got)
	}
}
