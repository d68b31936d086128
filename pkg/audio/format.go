// Package audio provides PCM format helpers shared by the capture and
// playback paths: PCM16↔float conversion, base64 transcoding, WAV
// containerization, and fixed-duration chunking.
package audio

import (
	"encoding/base64"
	"math"
)

// Chunk is an immutable fixed-duration slice of PCM16 audio. It is produced
// once by the capture source and consumed exactly once, either by the session
// for transmission or by the playback scheduler for output.
type Chunk struct {
	Samples      []int16
	Seq          int64
	CapturedAtMS int64
}

// DurationMS returns the chunk length in milliseconds at the given rate.
func (c Chunk) DurationMS(sampleRateHz int) int64 {
	if sampleRateHz <= 0 {
		return 0
	}
	return int64(len(c.Samples)) * 1000 / int64(sampleRateHz)
}

// PCM16ToBytes serializes samples as little-endian 16-bit PCM.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToPCM16 parses little-endian 16-bit PCM. A trailing odd byte is
// dropped.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return out
}

// FloatToPCM16 converts normalized float samples to 16-bit integers, clamping
// to [-1, 1]. Negative values scale by 32768 and positive by 32767 so the
// full int16 range is reachable.
func FloatToPCM16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(math.Round(s * 32768))
		} else {
			out[i] = int16(math.Round(s * 32767))
		}
	}
	return out
}

// PCM16ToFloat converts 16-bit samples to normalized floats in [-1, 1).
func PCM16ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// EncodeBase64 encodes PCM16 samples as base64 little-endian bytes, the
// payload shape of JSON audio_chunk frames.
func EncodeBase64(samples []int16) string {
	return base64.StdEncoding.EncodeToString(PCM16ToBytes(samples))
}

// DecodeBase64 decodes a base64 payload back to PCM16 samples.
func DecodeBase64(data string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return BytesToPCM16(raw), nil
}

// RMS returns the root-mean-square amplitude of the samples, normalized to
// [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
