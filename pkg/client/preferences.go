package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vango-go/voicewire/pkg/protocol"
)

// VoicePreferences is the persisted per-user voice configuration, fetched at
// startup and written back when the user changes settings.
type VoicePreferences struct {
	Voice            string  `json:"voice,omitempty"`
	Language         string  `json:"language,omitempty"`
	EnhancementLevel string  `json:"enhancement_level,omitempty"`
	PlaybackSpeed    float64 `json:"playback_speed,omitempty"`
}

// APIError is a non-2xx REST response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

const preferencesPath = "/v1/voice/preferences"

// GetVoicePreferences fetches the stored voice preferences.
func (c *Client) GetVoicePreferences(ctx context.Context) (*VoicePreferences, error) {
	req, err := c.newRequest(ctx, http.MethodGet, preferencesPath, nil)
	if err != nil {
		return nil, err
	}
	var prefs VoicePreferences
	if err := c.do(req, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// PutVoicePreferences persists the voice preferences.
func (c *Client) PutVoicePreferences(ctx context.Context, prefs VoicePreferences) error {
	body, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, preferencesPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: normalizeErrorBody(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// normalizeErrorBody flattens REST error bodies, which use the same
// string-or-structured error field as the wire protocol.
func normalizeErrorBody(data []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Error) > 0 {
		return protocol.ServerError{Error: body.Error}.Normalize()
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "empty response"
	}
	return string(bytes.TrimSpace(data))
}
