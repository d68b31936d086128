package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionEndpointDerivedFromBaseURL(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
		want string
	}{
		{
			name: "https base",
			opts: []Option{WithBaseURL("https://api.voicewire.dev")},
			want: "wss://api.voicewire.dev/v1/live",
		},
		{
			name: "http base with trailing slash",
			opts: []Option{WithBaseURL("http://localhost:8080/")},
			want: "ws://localhost:8080/v1/live",
		},
		{
			name: "explicit session url wins",
			opts: []Option{
				WithBaseURL("https://api.voicewire.dev"),
				WithSessionURL("wss://live.voicewire.dev/stream"),
			},
			want: "wss://live.voicewire.dev/stream",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(tc.opts...)
			if got := c.sessionEndpoint(); got != tc.want {
				t.Fatalf("sessionEndpoint() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestQualityForAttempt(t *testing.T) {
	cases := []struct {
		attempt int
		want    Quality
	}{
		{1, QualityDegraded},
		{2, QualityDegraded},
		{3, QualityPoor},
		{5, QualityPoor},
	}
	for _, tc := range cases {
		if got := qualityForAttempt(tc.attempt); got != tc.want {
			t.Fatalf("qualityForAttempt(%d) = %q, want %q", tc.attempt, got, tc.want)
		}
	}
}

func TestGetVoicePreferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/v1/voice/preferences" {
			t.Errorf("path = %s, want /v1/voice/preferences", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"voice":"aria","language":"en","enhancement_level":"enhanced"}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithToken("tok-123"))
	prefs, err := c.GetVoicePreferences(context.Background())
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if prefs.Voice != "aria" || prefs.Language != "en" || prefs.EnhancementLevel != "enhanced" {
		t.Fatalf("preferences = %+v", prefs)
	}
}

func TestPutVoicePreferences(t *testing.T) {
	var got VoicePreferences
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithToken("tok-123"))
	err := c.PutVoicePreferences(context.Background(), VoicePreferences{
		Voice:         "aria",
		PlaybackSpeed: 1.25,
	})
	if err != nil {
		t.Fatalf("put preferences: %v", err)
	}
	if got.Voice != "aria" || got.PlaybackSpeed != 1.25 {
		t.Fatalf("server received %+v", got)
	}
}

func TestPreferencesErrorNormalization(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"string error", `{"error":"nope"}`, "nope"},
		{"structured error", `{"error":{"code":"invalid_token","message":"expired"}}`, "invalid_token: expired"},
		{"opaque body", `service unavailable`, "service unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := New(WithBaseURL(srv.URL))
			_, err := c.GetVoicePreferences(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error type = %T, want *APIError", err)
			}
			if apiErr.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", apiErr.StatusCode)
			}
			if apiErr.Message != tc.want {
				t.Fatalf("message = %q, want %q", apiErr.Message, tc.want)
			}
		})
	}
}
