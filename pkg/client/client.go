// Package client is the top-level entry point: it wires microphone capture,
// the streaming session, playback, and the level meter into one caller-owned
// conversation, and exposes the voice-preferences REST surface.
package client

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/voicewire/pkg/capture"
	"github.com/vango-go/voicewire/pkg/meter"
	"github.com/vango-go/voicewire/pkg/metrics"
	"github.com/vango-go/voicewire/pkg/playback"
	"github.com/vango-go/voicewire/pkg/protocol"
	"github.com/vango-go/voicewire/pkg/session"
)

// TokenProvider supplies the bearer token injected at connect time.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider for a fixed token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client is the main entry point. Construct once with New, then start
// conversations from it.
type Client struct {
	baseURL    string
	sessionURL string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	sessionCfg  protocol.SessionConfig
	captureCfg  capture.Config
	playbackCfg playback.Config
	meterCfg    meter.Config
	sink        playback.Sink

	backoffBase      time.Duration
	maxAttempts      int
	handshakeTimeout time.Duration
	dialer           session.Dialer
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		tokens:      StaticToken(""),
		httpClient:  newDefaultHTTPClient(),
		logger:      slog.Default(),
		sessionCfg:  protocol.DefaultSessionConfig(),
		captureCfg:  capture.DefaultConfig(),
		playbackCfg: playback.DefaultConfig(),
		meterCfg:    meter.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newDefaultHTTPClient configures transport-level timeouts while leaving the
// overall request lifetime to per-request context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// sessionEndpoint resolves the websocket URL, deriving it from the REST base
// when not set explicitly.
func (c *Client) sessionEndpoint() string {
	if c.sessionURL != "" {
		return c.sessionURL
	}
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/v1/live"
}

// StartConversation connects the session, acquires the microphone, and starts
// the full duplex pipeline. The returned Conversation is caller-owned; Stop
// tears everything down.
func (c *Client) StartConversation(ctx context.Context) (*Conversation, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	conn := session.NewConn(session.Config{
		URL:                  c.sessionEndpoint(),
		Token:                token,
		Session:              c.sessionCfg,
		HandshakeTimeout:     c.handshakeTimeout,
		BackoffBase:          c.backoffBase,
		MaxReconnectAttempts: c.maxAttempts,
		Dialer:               c.dialer,
	}, c.logger, c.metrics)

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	sink := c.sink
	if sink == nil {
		sink, err = playback.NewSpeaker(c.playbackCfg.SampleRateHz, c.playbackCfg.Channels)
		if err != nil {
			conn.Disconnect()
			return nil, err
		}
	}

	source := capture.NewSource(c.captureCfg, c.logger)
	if err := source.Start(); err != nil {
		conn.Disconnect()
		_ = sink.Close()
		return nil, err
	}

	cv := &Conversation{
		logger:  c.logger.With(slog.String("component", "conversation")),
		conn:    conn,
		source:  source,
		sched:   playback.NewScheduler(c.playbackCfg, sink, c.logger),
		meter:   meter.NewMeter(c.meterCfg),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		quality: QualityGood,
	}
	cv.meter.Start()
	cv.startPumps()
	return cv, nil
}
