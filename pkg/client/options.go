package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/voicewire/pkg/capture"
	"github.com/vango-go/voicewire/pkg/meter"
	"github.com/vango-go/voicewire/pkg/metrics"
	"github.com/vango-go/voicewire/pkg/playback"
	"github.com/vango-go/voicewire/pkg/protocol"
	"github.com/vango-go/voicewire/pkg/session"
)

// Option is a function that configures a Client.
type Option func(*Client)

// WithBaseURL sets the REST base URL. The live session endpoint is derived
// from it unless WithSessionURL overrides it.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithSessionURL sets the websocket session endpoint explicitly.
func WithSessionURL(url string) Option {
	return func(c *Client) {
		c.sessionURL = url
	}
}

// WithToken sets a fixed bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.tokens = StaticToken(token)
	}
}

// WithTokenProvider sets the auth token source consulted at connect time.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) {
		c.tokens = p
	}
}

// WithHTTPClient sets a custom HTTP client for the REST surface.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for the client and everything it constructs.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics attaches a metrics registry. Without it nothing is recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSessionConfig sets the session shape sent in start_session.
func WithSessionConfig(cfg protocol.SessionConfig) Option {
	return func(c *Client) {
		c.sessionCfg = cfg
	}
}

// WithCaptureConfig sets the microphone capture configuration.
func WithCaptureConfig(cfg capture.Config) Option {
	return func(c *Client) {
		c.captureCfg = cfg
	}
}

// WithPlaybackConfig sets the playback scheduler configuration.
func WithPlaybackConfig(cfg playback.Config) Option {
	return func(c *Client) {
		c.playbackCfg = cfg
	}
}

// WithPlaybackSink overrides the speaker output, mainly for tests.
func WithPlaybackSink(sink playback.Sink) Option {
	return func(c *Client) {
		c.sink = sink
	}
}

// WithMeterConfig sets the level meter configuration.
func WithMeterConfig(cfg meter.Config) Option {
	return func(c *Client) {
		c.meterCfg = cfg
	}
}

// WithReconnectPolicy sets the backoff base delay and attempt budget.
func WithReconnectPolicy(base time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.maxAttempts = maxAttempts
	}
}

// WithHandshakeTimeout bounds the wait for session_started.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithDialer overrides the websocket dialer, mainly for tests.
func WithDialer(d session.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}
