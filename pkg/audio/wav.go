package audio

import (
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps PCM16 samples in a standard 44-byte RIFF/WAVE header
// (PCM format 1, 16-bit depth). Samples are interleaved when channels > 1.
func EncodeWAV(samples []int16, sampleRateHz, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRateHz <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0, got %d", sampleRateHz)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be > 0, got %d", channels)
	}

	dataLen := len(samples) * 2
	byteRate := sampleRateHz * channels * 2
	blockAlign := channels * 2

	out := make([]byte, wavHeaderSize+dataLen)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRateHz))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(s))
	}
	return out, nil
}

// DecodeWAV parses a PCM16 WAV file produced by EncodeWAV (or any standard
// 44-byte-header PCM WAV) and returns the samples, sample rate, and channel
// count.
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("not a RIFF/WAVE file")
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("missing fmt chunk")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, 0, fmt.Errorf("unsupported audio format %d, want PCM", format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return nil, 0, 0, fmt.Errorf("unsupported bit depth %d, want 16", bits)
	}
	if string(data[36:40]) != "data" {
		return nil, 0, 0, fmt.Errorf("missing data chunk")
	}

	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataLen > len(data)-wavHeaderSize {
		dataLen = len(data) - wavHeaderSize
	}

	samples := make([]int16, dataLen/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[wavHeaderSize+i*2:]))
	}
	return samples, sampleRate, channels, nil
}
