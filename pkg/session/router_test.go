package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/vango-go/voicewire/pkg/audio"
	"github.com/vango-go/voicewire/pkg/protocol"
)

func testChunk(n int) audio.Chunk {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i*100 - 200)
	}
	return audio.Chunk{Samples: samples}
}

func newTestRouter() *Router {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestParseFrameDropsMalformedAndUnknown(t *testing.T) {
	r := newTestRouter()

	if _, ok := r.ParseFrame([]byte(`{not json`)); ok {
		t.Fatal("malformed frame parsed, want drop")
	}
	if _, ok := r.ParseFrame([]byte(`{"type":"hologram"}`)); ok {
		t.Fatal("unknown frame type parsed, want drop")
	}
	if msg, ok := r.ParseFrame([]byte(`{"type":"keepalive"}`)); !ok {
		t.Fatal("keepalive dropped, want parsed")
	} else if _, isKA := msg.(protocol.ServerKeepalive); !isKA {
		t.Fatalf("parsed type = %T, want ServerKeepalive", msg)
	}
}

func TestRouteTranscripts(t *testing.T) {
	r := newTestRouter()

	msg, ok := r.ParseFrame([]byte(`{"type":"transcript_final","text":"hello there","confidence":0.93}`))
	if !ok {
		t.Fatal("transcript frame dropped")
	}
	r.Route(msg)

	select {
	case tr := <-r.Transcripts():
		if tr.Text != "hello there" {
			t.Fatalf("text = %q, want %q", tr.Text, "hello there")
		}
		if !tr.IsFinal {
			t.Fatal("transcript_final routed as interim")
		}
	default:
		t.Fatal("no transcript delivered")
	}
}

func TestRouteAudioDecodesBase64(t *testing.T) {
	r := newTestRouter()
	want := []int16{-300, 0, 300, 32767}

	r.Route(protocol.ServerAudioChunk{DataB64: audio.EncodeBase64(want)})

	select {
	case chunk := <-r.Audio():
		if len(chunk.Samples) != len(want) {
			t.Fatalf("samples = %d, want %d", len(chunk.Samples), len(want))
		}
		for i := range want {
			if chunk.Samples[i] != want[i] {
				t.Fatalf("sample %d = %d, want %d", i, chunk.Samples[i], want[i])
			}
		}
		if chunk.Seq != 1 {
			t.Fatalf("seq = %d, want 1", chunk.Seq)
		}
	default:
		t.Fatal("no audio delivered")
	}

	// A corrupt payload is dropped without disturbing the sequence.
	r.Route(protocol.ServerAudioChunk{DataB64: "!!not-base64!!"})
	r.Route(protocol.ServerAudioChunk{DataB64: audio.EncodeBase64(want)})
	chunk := <-r.Audio()
	if chunk.Seq != 2 {
		t.Fatalf("seq after dropped chunk = %d, want 2", chunk.Seq)
	}
}

func TestRouteBinaryAudio(t *testing.T) {
	r := newTestRouter()
	want := []int16{1, -1, 1000, -1000}

	r.RouteBinary(audio.PCM16ToBytes(want))

	chunk := <-r.Audio()
	for i := range want {
		if chunk.Samples[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, chunk.Samples[i], want[i])
		}
	}
}

func TestRouteServerErrorsNormalized(t *testing.T) {
	r := newTestRouter()

	msg, ok := r.ParseFrame([]byte(`{"type":"error","error":"plain failure"}`))
	if !ok {
		t.Fatal("string error frame dropped")
	}
	r.Route(msg)
	if got := <-r.ServerErrors(); got != "plain failure" {
		t.Fatalf("normalized = %q, want %q", got, "plain failure")
	}

	msg, ok = r.ParseFrame([]byte(`{"type":"error","error":{"code":"rate_limited","message":"slow down"}}`))
	if !ok {
		t.Fatal("structured error frame dropped")
	}
	r.Route(msg)
	if got := <-r.ServerErrors(); got != "rate_limited: slow down" {
		t.Fatalf("normalized = %q, want %q", got, "rate_limited: slow down")
	}
}

func TestRouterCloseIsIdempotent(t *testing.T) {
	r := newTestRouter()
	r.Close()
	r.Close()

	// Routing after close must not panic on the closed channels.
	r.Route(protocol.ServerTranscript{Text: "late"})
	r.RouteBinary([]byte{0, 0})

	if _, open := <-r.Transcripts(); open {
		t.Fatal("transcripts channel still open after close")
	}
}
