// Package session owns the duplex transport lifecycle: handshake, outbound
// queueing, bounded reconnection, and typed fan-out of inbound frames.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voicewire/pkg/audio"
	"github.com/vango-go/voicewire/pkg/metrics"
	"github.com/vango-go/voicewire/pkg/protocol"
)

// State is the session connection state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// SendStatus reports what happened to a submitted message. Queuing is a
// success path, not an error: the message is transmitted in order once the
// transport re-opens.
type SendStatus string

const (
	SendSent    SendStatus = "sent"
	SendQueued  SendStatus = "queued"
	SendDropped SendStatus = "dropped"
)

// Outbound is one pending protocol message. Sequence numbers are monotonic
// and never reused.
type Outbound struct {
	Seq        int64
	EnqueuedAt time.Time
	Binary     bool
	Payload    []byte
	kind       string
}

// Event is a session lifecycle event.
type Event interface {
	sessionEventType() string
}

// StateChangeEvent fires on every state transition.
type StateChangeEvent struct {
	From State
	To   State
}

func (e StateChangeEvent) sessionEventType() string { return "state_change" }

// ReconnectingEvent fires before each backoff wait.
type ReconnectingEvent struct {
	Attempt int
	Delay   time.Duration
}

func (e ReconnectingEvent) sessionEventType() string { return "reconnecting" }

// ReconnectExhaustedEvent is terminal: the attempt budget is spent and the
// session is closed.
type ReconnectExhaustedEvent struct {
	Attempts int
}

func (e ReconnectExhaustedEvent) sessionEventType() string { return "reconnect_exhausted" }

// Config configures a session connection.
type Config struct {
	URL   string
	Token string

	Session protocol.SessionConfig

	// HandshakeTimeout bounds the wait for session_started. Default 10s.
	HandshakeTimeout time.Duration
	// BackoffBase is the first reconnect delay; attempt n waits
	// base * 2^(n-1). Default 1s.
	BackoffBase time.Duration
	// MaxReconnectAttempts bounds recovery before the session closes for
	// good. Default 5.
	MaxReconnectAttempts int

	// Dialer overrides the websocket dialer.
	Dialer Dialer
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.Session.SampleRateHz == 0 {
		c.Session = protocol.DefaultSessionConfig()
	}
}

// Conn owns one streaming session. It is caller-constructed and
// caller-owned: construct, Connect, use, Disconnect.
type Conn struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger
	m      *metrics.Metrics
	router *Router

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	events chan Event

	mu           sync.Mutex
	state        State
	sessionID    string
	transport    Transport
	gen          int // transport generation; stale read-loop errors are ignored
	queue        []Outbound
	nextSeq      int64
	closed       bool
	reconnecting bool
	closedCh     chan struct{}
}

// NewConn creates an idle connection. logger and m may be nil.
func NewConn(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Conn {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "session"))
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = WebSocketDialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	return &Conn{
		cfg:      cfg,
		dialer:   dialer,
		logger:   logger,
		m:        m,
		router:   NewRouter(logger, m),
		now:      time.Now,
		after:    time.After,
		events:   make(chan Event, 32),
		state:    StateIdle,
		closedCh: make(chan struct{}),
	}
}

// Router returns the typed inbound fan-out.
func (c *Conn) Router() *Router { return c.router }

// Events yields state changes and reconnection progress.
func (c *Conn) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned session id, empty before the first
// handshake completes.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// QueueDepth reports messages waiting for the transport.
func (c *Conn) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Connect opens the transport, performs the start_session handshake, and
// flushes anything queued beforehand. A failure here is fatal and surfaced
// synchronously; the backoff policy only covers drops of an established
// session.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ConnectError{Err: ErrSessionClosed}
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return &ConnectError{Err: fmt.Errorf("connect from state %q", c.state)}
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.establish(ctx); err != nil {
		c.teardown()
		return &ConnectError{Err: err}
	}
	c.activate()
	return nil
}

// Disconnect closes the session deliberately: the reconnect timer is
// cancelled and the outbound queue discarded. Idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.closedCh)
	t := c.transport
	c.transport = nil
	c.queue = nil
	c.m.SetQueueDepth(0)
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	c.router.Close()
	close(c.events)
	c.logger.Info("session disconnected")
}

// teardown closes without a prior established session (failed first connect,
// exhausted reconnects).
func (c *Conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.closedCh)
	t := c.transport
	c.transport = nil
	c.queue = nil
	c.m.SetQueueDepth(0)
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	c.router.Close()
	close(c.events)
}

// Send submits a JSON control message. If the session is Active it is
// transmitted immediately; otherwise it is queued and transmitted, in order,
// when the transport re-opens. Send never fails for transport reasons.
func (c *Conn) Send(msg any) SendStatus {
	payload, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		c.logger.Error("dropping unencodable message", slog.String("error", err.Error()))
		return SendDropped
	}
	return c.submit(Outbound{Payload: payload, kind: "control"})
}

// SendAudio submits one captured chunk, as a binary PCM frame when the
// session negotiated binary transport, else as a base64 JSON frame.
func (c *Conn) SendAudio(chunk audio.Chunk) SendStatus {
	if c.cfg.Session.AudioTransport == protocol.AudioTransportBinary {
		return c.submit(Outbound{
			Binary:  true,
			Payload: audio.PCM16ToBytes(chunk.Samples),
			kind:    "audio",
		})
	}
	payload, err := protocol.EncodeClientMessage(protocol.ClientAudioChunk{
		Seq:         chunk.Seq,
		TimestampMS: chunk.CapturedAtMS,
		DataB64:     audio.EncodeBase64(chunk.Samples),
	})
	if err != nil {
		c.logger.Error("dropping unencodable audio chunk", slog.String("error", err.Error()))
		return SendDropped
	}
	return c.submit(Outbound{Payload: payload, kind: "audio"})
}

func (c *Conn) submit(out Outbound) SendStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SendDropped
	}
	c.nextSeq++
	out.Seq = c.nextSeq
	out.EnqueuedAt = c.now()

	if c.state == StateActive && c.transport != nil {
		if err := c.writeLocked(out); err == nil {
			return SendSent
		}
		// Transient write failure: keep the frame, the reconnect flush
		// retransmits it in order.
		c.logger.Warn("send failed mid-transition, queueing", slog.Int64("seq", out.Seq))
	}
	c.queue = append(c.queue, out)
	c.m.SetQueueDepth(len(c.queue))
	return SendQueued
}

func (c *Conn) writeLocked(out Outbound) error {
	mt := websocket.TextMessage
	if out.Binary {
		mt = websocket.BinaryMessage
	}
	if err := c.transport.WriteMessage(mt, out.Payload); err != nil {
		return err
	}
	c.m.IncFrameOut(out.kind)
	if out.kind == "audio" {
		c.m.AddAudioBytes("out", len(out.Payload))
	}
	return nil
}

// establish dials and runs the start_session handshake. The attempt only
// counts as successful once session_started arrives.
func (c *Conn) establish(ctx context.Context) error {
	t, err := c.dialer.Dial(ctx, c.cfg.URL, c.cfg.Token)
	if err != nil {
		return err
	}

	start, err := protocol.EncodeClientMessage(protocol.ClientStartSession{Config: c.cfg.Session})
	if err != nil {
		_ = t.Close()
		return err
	}
	if err := t.WriteMessage(websocket.TextMessage, start); err != nil {
		_ = t.Close()
		return fmt.Errorf("send start_session: %w", err)
	}

	sessionID, err := c.awaitSessionStarted(ctx, t)
	if err != nil {
		_ = t.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close()
		return ErrSessionClosed
	}
	c.transport = t
	c.sessionID = sessionID
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.m.IncSession()
	c.logger.Info("session established", slog.String("session_id", sessionID))
	go c.readLoop(t, gen)
	return nil
}

type readResult struct {
	messageType int
	data        []byte
	err         error
}

func (c *Conn) awaitSessionStarted(ctx context.Context, t Transport) (string, error) {
	deadline := c.after(c.cfg.HandshakeTimeout)
	for {
		resCh := make(chan readResult, 1)
		go func() {
			mt, data, err := t.ReadMessage()
			resCh <- readResult{mt, data, err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-c.closedCh:
			return "", ErrSessionClosed
		case <-deadline:
			return "", ErrHandshakeTimeout
		case res := <-resCh:
			if res.err != nil {
				return "", fmt.Errorf("handshake read: %w", res.err)
			}
			if res.messageType != websocket.TextMessage {
				continue
			}
			msg, err := protocol.DecodeServerMessage(res.data)
			if err != nil {
				c.m.IncParseError()
				continue
			}
			switch m := msg.(type) {
			case protocol.ServerSessionStarted:
				return m.SessionID, nil
			case protocol.ServerError:
				return "", fmt.Errorf("server rejected session: %s", m.Normalize())
			default:
				// Pre-handshake keepalives and the like.
			}
		}
	}
}

// activate flushes the queue strictly in enqueue order, then marks the
// session Active. Sends arriving during the flush keep queueing behind it,
// preserving FIFO.
func (c *Conn) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.transport == nil {
		return
	}
	for len(c.queue) > 0 {
		out := c.queue[0]
		if err := c.writeLocked(out); err != nil {
			// Transport died during flush; the read loop will notice and
			// start a fresh recovery cycle with the queue intact.
			c.logger.Warn("flush interrupted", slog.Int64("seq", out.Seq), slog.String("error", err.Error()))
			c.m.SetQueueDepth(len(c.queue))
			return
		}
		c.queue = c.queue[1:]
	}
	c.m.SetQueueDepth(0)
	c.setStateLocked(StateActive)
}

func (c *Conn) readLoop(t Transport, gen int) {
	for {
		mt, data, err := t.ReadMessage()
		if err != nil {
			c.handleReadError(t, gen, err)
			return
		}
		switch mt {
		case websocket.TextMessage:
			msg, ok := c.router.ParseFrame(data)
			if !ok {
				continue
			}
			if _, isKA := msg.(protocol.ServerKeepalive); isKA {
				c.Send(protocol.ClientKeepalive{})
				continue
			}
			c.router.Route(msg)
		case websocket.BinaryMessage:
			c.router.RouteBinary(data)
		}
	}
}

func (c *Conn) handleReadError(t Transport, gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.transport = nil

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		// Deliberate server-side end: no recovery.
		c.mu.Unlock()
		c.logger.Info("server closed session")
		c.teardown()
		return
	}

	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	c.logger.Warn("transport dropped, recovering", slog.String("error", err.Error()))
	go c.reconnectLoop()
}

// reconnectLoop retries the full connect handshake with exponential backoff.
// The attempt counter resets only via a successful handshake (this loop
// exiting), never merely because the socket opened.
func (c *Conn) reconnectLoop() {
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		delay := c.cfg.BackoffBase << uint(attempt-1)
		c.emit(ReconnectingEvent{Attempt: attempt, Delay: delay})
		c.m.IncReconnectAttempt()
		c.logger.Info("scheduling reconnect",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		select {
		case <-c.closedCh:
			return
		case <-c.after(delay):
		}

		if err := c.establish(context.Background()); err != nil {
			if err == ErrSessionClosed {
				return
			}
			c.logger.Warn("reconnect attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}
		// Clear the guard before flushing: if the fresh transport dies during
		// the flush, its read loop must be able to start the next recovery
		// cycle.
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
		c.activate()
		c.logger.Info("reconnected", slog.Int("attempt", attempt))
		return
	}

	c.m.IncReconnectExhausted()
	c.logger.Error("reconnect attempts exhausted",
		slog.Int("attempts", c.cfg.MaxReconnectAttempts))
	c.emit(ReconnectExhaustedEvent{Attempts: c.cfg.MaxReconnectAttempts})
	c.teardown()
}

func (c *Conn) setStateLocked(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	select {
	case c.events <- StateChangeEvent{From: from, To: to}:
	default:
	}
}

func (c *Conn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
