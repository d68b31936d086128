package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	in := []float64{1, -1, 0}
	for i := 0; i < 480; i++ {
		in = append(in, 0.5*math.Sin(float64(i)*0.05))
	}

	wav, err := EncodeWAV(FloatToPCM16(in), 16000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	samples, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if channels != 1 {
		t.Fatalf("channels = %d, want 1", channels)
	}
	if len(samples) != len(in) {
		t.Fatalf("samples = %d, want %d", len(samples), len(in))
	}

	out := PCM16ToFloat(samples)
	for i := range in {
		if diff := math.Abs(out[i] - in[i]); diff > 1.0/32768 {
			t.Fatalf("sample %d: round-trip error %v exceeds 1 LSB", i, diff)
		}
	}
}

func TestWAVHeaderLayout(t *testing.T) {
	wav, err := EncodeWAV([]int16{1, 2, 3, 4}, 44100, 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(wav) != 44+8 {
		t.Fatalf("file size = %d, want 52", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Fatalf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 2 {
		t.Fatalf("channels = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 44100 {
		t.Fatalf("sample rate = %d, want 44100", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 44100*2*2 {
		t.Fatalf("byte rate = %d, want %d", got, 44100*2*2)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("bit depth = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 8 {
		t.Fatalf("data length = %d, want 8", got)
	}
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Fatal("encoding empty audio succeeded")
	}
	if _, err := EncodeWAV([]int16{1}, 0, 1); err == nil {
		t.Fatal("encoding with zero sample rate succeeded")
	}
	if _, err := EncodeWAV([]int16{1}, 16000, 0); err == nil {
		t.Fatal("encoding with zero channels succeeded")
	}
}

func TestDecodeWAVRejectsBadInput(t *testing.T) {
	if _, _, _, err := DecodeWAV([]byte("short")); err == nil {
		t.Fatal("decoding truncated data succeeded")
	}

	wav, _ := EncodeWAV([]int16{1, 2}, 16000, 1)
	bad := append([]byte(nil), wav...)
	copy(bad[0:4], "JUNK")
	if _, _, _, err := DecodeWAV(bad); err == nil {
		t.Fatal("decoding non-RIFF data succeeded")
	}

	bad = append([]byte(nil), wav...)
	binary.LittleEndian.PutUint16(bad[20:22], 3) // IEEE float
	if _, _, _, err := DecodeWAV(bad); err == nil {
		t.Fatal("decoding non-PCM format succeeded")
	}
}
