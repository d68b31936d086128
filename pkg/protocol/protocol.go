// Package protocol defines the voicewire wire envelope: JSON control frames
// exchanged over the session websocket, plus the binary PCM frame rules.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	AudioTransportBinary     = "binary"
	AudioTransportBase64JSON = "base64_json"

	// Binary audio frames are raw PCM16 little-endian, mono.
	BinarySampleRateHz = 16000
	BinaryChannels     = 1
	BinaryChunkMS      = 100
	BinaryChunkSamples = BinarySampleRateHz * BinaryChunkMS / 1000
	BinaryChunkBytes   = BinaryChunkSamples * 2
)

// DecodeError reports a malformed or unsupported frame. It is recoverable:
// the session drops the frame, counts it, and keeps reading.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// UnknownTypeError marks a frame whose type is not part of the protocol.
// Unknown types are logged and dropped, never fatal.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// SessionConfig is the start_session payload.
type SessionConfig struct {
	SampleRateHz     int    `json:"sample_rate_hz"`
	Channels         int    `json:"channels"`
	Language         string `json:"language,omitempty"`
	Voice            string `json:"voice,omitempty"`
	EnhancementLevel string `json:"enhancement_level,omitempty"`
	AudioTransport   string `json:"audio_transport,omitempty"`
}

// DefaultSessionConfig returns the default mono 16 kHz session shape.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRateHz:   BinarySampleRateHz,
		Channels:       BinaryChannels,
		Language:       "en",
		AudioTransport: AudioTransportBase64JSON,
	}
}

// Client → server frames.

type ClientStartSession struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version,omitempty"`
	Config          SessionConfig `json:"config"`
}

type ClientAudioChunk struct {
	Type        string `json:"type"`
	Seq         int64  `json:"seq,omitempty"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
	DataB64     string `json:"data"`
}

type ClientStopRecording struct {
	Type string `json:"type"`
}

type ClientKeepalive struct {
	Type string `json:"type"`
}

// Server → client frames.

type ServerSessionStarted struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type ServerTranscript struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Emotion    string  `json:"emotion,omitempty"`
	IsFinal    bool    `json:"-"`
}

type ServerAudioChunk struct {
	Type    string `json:"type"`
	ChunkID string `json:"chunk_id,omitempty"`
	Format  string `json:"format,omitempty"`
	DataB64 string `json:"data"`
}

type ServerSessionStats struct {
	Type            string  `json:"type"`
	AudioSecondsIn  float64 `json:"audio_seconds_in,omitempty"`
	AudioSecondsOut float64 `json:"audio_seconds_out,omitempty"`
	TranscriptCount int     `json:"transcript_count,omitempty"`
}

type ServerKeepalive struct {
	Type string `json:"type"`
}

// ServerError carries a server-reported error. The error field is either a
// bare string or a structured {code, message} object; Normalize flattens both.
type ServerError struct {
	Type  string          `json:"type"`
	Error json.RawMessage `json:"error"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Normalize returns a single display string for either error form.
func (e ServerError) Normalize() string {
	if len(e.Error) == 0 {
		return "server error"
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "server error"
		}
		return s
	}
	var obj structuredError
	if err := json.Unmarshal(e.Error, &obj); err == nil {
		msg := strings.TrimSpace(obj.Message)
		code := strings.TrimSpace(obj.Code)
		switch {
		case msg != "" && code != "":
			return fmt.Sprintf("%s: %s", code, msg)
		case msg != "":
			return msg
		case code != "":
			return code
		}
	}
	return strings.TrimSpace(string(e.Error))
}

// EncodeClientMessage marshals a client frame, stamping the type field from
// the concrete message shape so callers never set it by hand.
func EncodeClientMessage(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case ClientStartSession:
		m.Type = "start_session"
		if strings.TrimSpace(m.ProtocolVersion) == "" {
			m.ProtocolVersion = ProtocolVersion1
		}
		return json.Marshal(m)
	case ClientAudioChunk:
		m.Type = "audio_chunk"
		if strings.TrimSpace(m.DataB64) == "" {
			return nil, badFrame("audio_chunk.data is required", "data")
		}
		return json.Marshal(m)
	case ClientStopRecording:
		m.Type = "stop_recording"
		return json.Marshal(m)
	case ClientKeepalive:
		m.Type = "keepalive"
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("unsupported client message type %T", msg)
	}
}

// DecodeServerMessage parses one inbound JSON frame into a typed message.
// A malformed envelope yields *DecodeError; a recognized envelope with an
// unrecognized type yields *UnknownTypeError.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case "session_started":
		var msg ServerSessionStarted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid session_started", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badFrame("session_started.session_id is required", "session_id")
		}
		return msg, nil
	case "transcript_interim", "transcript_final":
		var msg ServerTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid transcript frame", "")
		}
		msg.IsFinal = typ == "transcript_final"
		return msg, nil
	case "audio_chunk":
		var msg ServerAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio_chunk", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badFrame("audio_chunk.data is required", "data")
		}
		if strings.TrimSpace(msg.Format) == "" {
			msg.Format = "pcm_s16le"
		}
		return msg, nil
	case "session_stats":
		var msg ServerSessionStats
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid session_stats", "")
		}
		return msg, nil
	case "keepalive":
		var msg ServerKeepalive
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid keepalive", "")
		}
		return msg, nil
	case "error":
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		return msg, nil
	default:
		return nil, &UnknownTypeError{Type: typ}
	}
}
