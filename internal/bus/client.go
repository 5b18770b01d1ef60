package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client defaults.
const (
	DefaultCallTimeout       = 500 * time.Millisecond
	DefaultReconnectInterval = 2 * time.Second

	maxFrameSize = 4 << 20
)

// Caller issues a blocking call on the bus. Satisfied by *Client.
type Caller interface {
	Call(ctx context.Context, m Method, reply any, args ...any) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL               string
	CallTimeout       time.Duration
	ReconnectInterval time.Duration
	Logger            *slog.Logger
}

// ClientStats is a snapshot of the client's counters.
type ClientStats struct {
	Calls      int64
	Timeouts   int64
	Errors     int64
	Signals    int64
	Reconnects int64
}

// Client maintains the connection to the bus, correlates replies with
// pending calls and queues signals and presence changes on Events().
//
// Call is safe for concurrent use. Run owns the connection and must be
// running for calls to succeed.
type Client struct {
	url         string
	callTimeout time.Duration
	logger      *slog.Logger
	limiter     *rate.Limiter

	// dialFunc opens the transport. Tests override it.
	dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan *Frame

	queue  *eventQueue
	events chan Event

	calls      atomic.Int64
	timeouts   atomic.Int64
	errors     atomic.Int64
	signals    atomic.Int64
	reconnects atomic.Int64
}

// NewClient creates a Client. Zero durations fall back to the defaults.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	reconnect := cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = DefaultReconnectInterval
	}

	return &Client{
		url:         cfg.URL,
		callTimeout: callTimeout,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Every(reconnect), 1),
		dialFunc:    dialWebSocket,
		pending:     make(map[string]chan *Frame),
		queue:       newEventQueue(),
		events:      make(chan Event),
	}
}

func dialWebSocket(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Events returns the channel of signals, presence changes and connection
// state changes. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// CallTimeout returns the fixed reply timeout applied to every call.
func (c *Client) CallTimeout() time.Duration {
	return c.callTimeout
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Calls:      c.calls.Load(),
		Timeouts:   c.timeouts.Load(),
		Errors:     c.errors.Load(),
		Signals:    c.signals.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// Run connects to the bus and reads frames until ctx is canceled,
// reconnecting when the connection drops. Reconnect attempts are paced by
// the configured interval. Run returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	pumped := make(chan struct{})

	go func() {
		defer close(pumped)
		c.queue.pump(ctx, c.events)
	}()

	defer func() {
		c.queue.close()
		<-pumped
		close(c.events)
	}()

	connected := false

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}

		conn, err := c.dialFunc(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			c.logger.Warn("bus connection failed",
				slog.String("url", c.url),
				slog.String("error", err.Error()),
			)

			continue
		}

		conn.SetReadLimit(maxFrameSize)
		c.setConn(conn)

		kind := EventConnected
		if connected {
			kind = EventReconnected
			c.reconnects.Add(1)
		}

		connected = true

		c.logger.Info("bus connected",
			slog.String("url", c.url),
			slog.String("event", kind.String()),
		)

		c.emit(Event{Kind: kind})

		readErr := c.readLoop(ctx, conn)
		c.dropConn(conn)

		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("bus connection lost",
			slog.String("url", c.url),
			slog.String("error", readErr.Error()),
		)

		c.emit(Event{Kind: EventDisconnected})
	}
}

// Call invokes m with args and waits at most the call timeout for the
// reply. A non-nil reply is filled from the reply's positional arguments.
func (c *Client) Call(ctx context.Context, m Method, reply any, args ...any) error {
	c.calls.Add(1)

	body, err := EncodeArgs(args...)
	if err != nil {
		return err
	}

	serial := uuid.NewString()

	data, err := EncodeFrame(&Frame{
		Type:      FrameCall,
		Serial:    serial,
		Service:   m.Service,
		Object:    m.Object,
		Interface: m.Interface,
		Member:    m.Member,
		Body:      body,
	})
	if err != nil {
		return err
	}

	replyCh := make(chan *Frame, 1)

	conn := c.register(serial, replyCh)
	if conn == nil {
		c.errors.Add(1)
		callResults.WithLabelValues(resultClosed).Inc()

		return fmt.Errorf("bus: %s: %w", m, ErrClosed)
	}
	defer c.unregister(serial)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := conn.Write(callCtx, websocket.MessageBinary, data); err != nil {
		c.errors.Add(1)
		callResults.WithLabelValues(resultClosed).Inc()

		return fmt.Errorf("bus: %s: writing call: %w: %w", m, ErrClosed, err)
	}

	select {
	case f, ok := <-replyCh:
		if !ok {
			c.errors.Add(1)
			callResults.WithLabelValues(resultClosed).Inc()

			return fmt.Errorf("bus: %s: %w", m, ErrClosed)
		}

		return c.handleReply(m, f, reply)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("bus: %s canceled: %w", m, ctx.Err())
		}

		c.timeouts.Add(1)
		callResults.WithLabelValues(resultTimeout).Inc()

		return fmt.Errorf("%w: %s after %s", ErrTimeout, m, c.callTimeout)
	}
}

func (c *Client) handleReply(m Method, f *Frame, reply any) error {
	if f.Type == FrameError {
		c.errors.Add(1)
		callResults.WithLabelValues(resultRemote).Inc()

		return &CallError{Method: m, Name: f.ErrorName, Message: f.Error}
	}

	callResults.WithLabelValues(resultOK).Inc()

	if reply == nil {
		return nil
	}

	if len(f.Body) == 0 {
		return fmt.Errorf("bus: %s: %w", m, ErrNoReply)
	}

	if err := DecodeArgs(f.Body, reply); err != nil {
		return fmt.Errorf("bus: %s reply: %w", m, err)
	}

	return nil
}

// register records a pending call and returns the live connection, or nil
// when not connected.
func (c *Client) register(serial string, ch chan *Frame) *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.pending[serial] = ch

	return c.conn
}

func (c *Client) unregister(serial string) {
	c.mu.Lock()
	delete(c.pending, serial)
	c.mu.Unlock()
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// dropConn closes conn and fails every pending call with ErrClosed.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *Frame)
	c.conn = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// deliver hands a reply or error frame to the waiting caller. Replies for
// calls that already timed out are dropped.
func (c *Client) deliver(f *Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.Serial]
	delete(c.pending, f.Serial)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping reply for abandoned call",
			slog.String("serial", f.Serial),
			slog.String("type", string(f.Type)),
		)

		return
	}

	ch <- f
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if typ != websocket.MessageBinary {
			c.logger.Warn("ignoring non-binary bus message")

			continue
		}

		f, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("ignoring undecodable bus frame",
				slog.String("error", err.Error()),
			)

			continue
		}

		switch f.Type {
		case FrameReply, FrameError:
			c.deliver(f)
		case FrameSignal:
			c.signals.Add(1)
			signalsReceived.WithLabelValues(f.Interface).Inc()

			c.emit(Event{Kind: EventSignal, Signal: signalFromFrame(f)})
		case FrameOwner:
			c.emit(Event{Kind: EventOwner, Service: f.Service, Present: f.Present})
		default:
			c.logger.Warn("ignoring unexpected bus frame",
				slog.String("type", string(f.Type)),
			)
		}
	}
}

// emit queues ev for the event loop. It never blocks, so the reader keeps
// delivering replies while the loop is busy in a call.
func (c *Client) emit(ev Event) {
	c.queue.push(ev)
}
