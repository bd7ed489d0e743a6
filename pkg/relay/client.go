package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/getburrow/burrow/pkg/logging"
)

// Client is a relay client that maintains the persistent outbound WebSocket
// connection and dispatches relayed requests to a RequestHandler.
type Client struct {
	cfg     *Config
	handler RequestHandler
	log     *slog.Logger

	// Connection state, guarded by mu.
	mu          sync.RWMutex
	conn        *websocket.Conn
	publicURL   string
	sessionID   string
	tunnel      string
	connectedAt time.Time

	metrics Collector

	// State.
	connected        atomic.Bool
	reconnects       atomic.Int32
	disconnectCalled atomic.Bool
	warnOnce         sync.Once
	stopped          chan struct{}
	closeOnce        sync.Once
}

// NewClient creates a new relay client.
func NewClient(cfg *Config, handler RequestHandler) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	return &Client{
		cfg:     cfg,
		handler: handler,
		stopped: make(chan struct{}),
		log:     logging.Nop(),
	}, nil
}

// Connect establishes a connection to the relay server.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return errors.New("already connected")
	}

	c.warnOnce.Do(c.warnTokenExpiry)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.Token)
	if c.cfg.Tunnel != "" {
		headers.Set("X-Tunnel-Name", c.cfg.Tunnel)
	}
	headers.Set("X-Client-Version", c.cfg.ClientVersion)

	dialOpts := &websocket.DialOptions{HTTPHeader: headers}
	if c.cfg.TLSInsecure {
		dialOpts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	conn, resp, err := websocket.Dial(ctx, c.cfg.RelayURL, dialOpts)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	// The first message on a fresh connection announces the assignment.
	_, data, err := conn.Read(ctx)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "failed to read connected message")
		return fmt.Errorf("failed to read connected message: %w", err)
	}

	connMsg, err := DecodeConnectedMessage(data)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "invalid connected message")
		return fmt.Errorf("invalid connected message: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.publicURL = connMsg.PublicURL
	c.sessionID = connMsg.SessionID
	c.tunnel = connMsg.Tunnel
	c.connectedAt = time.Now()
	c.mu.Unlock()

	c.disconnectCalled.Store(false)
	c.connected.Store(true)

	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(connMsg.PublicURL)
	}

	go c.readPump(ctx)
	go c.pingLoop(ctx)

	return nil
}

// Close permanently shuts the client down. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopped)
		c.connected.Store(false)

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
			c.conn = nil
		}
		c.mu.Unlock()

		if c.cfg.OnDisconnect != nil && c.disconnectCalled.CompareAndSwap(false, true) {
			c.cfg.OnDisconnect(nil)
		}
	})
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// PublicURL returns the public URL for this tunnel.
func (c *Client) PublicURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publicURL
}

// SessionID returns the relay session ID.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Tunnel returns the assigned routing name.
func (c *Client) Tunnel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tunnel
}

// Stats returns a snapshot of connection statistics.
func (c *Client) Stats() *Stats {
	c.mu.RLock()
	connectedAt := c.connectedAt
	c.mu.RUnlock()

	stats := c.metrics.Snapshot()
	stats.ConnectedAt = connectedAt
	stats.Reconnects = int(c.reconnects.Load())
	stats.IsConnected = c.connected.Load()
	return &stats
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.connected.Store(false)
		if c.cfg.OnDisconnect != nil && c.disconnectCalled.CompareAndSwap(false, true) {
			c.cfg.OnDisconnect(errors.New("connection closed"))
		}

		select {
		case <-c.stopped:
		default:
			if c.cfg.AutoReconnect {
				go c.reconnectLoop(ctx)
			}
		}
	}()

	for {
		select {
		case <-c.stopped:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		c.metrics.AddBytesIn(int64(len(data)))

		msg, err := DecodeMessage(data)
		if err != nil {
			continue
		}

		go c.handleMessage(ctx, msg)
	}
}

// handleMessage processes an incoming message.
func (c *Client) handleMessage(ctx context.Context, msg *Message) {
	switch msg.Type {
	case MessageTypeRequest:
		c.handleRequest(ctx, msg)
	case MessageTypePing:
		c.sendPong(ctx, msg.ID)
	case MessageTypePong:
		// Keepalive answer, nothing to do.
	case MessageTypeError:
		c.log.Error("relay error", "error", msg.Error)
	case MessageTypeDisconnect:
		c.Close()
	}
}

// handleRequest dispatches one relayed request to the handler and writes the
// response back. Each request runs in its own goroutine; the handler bounds
// nothing, so concurrency is limited only by the relay.
func (c *Client) handleRequest(ctx context.Context, msg *Message) {
	startTime := time.Now()

	if c.cfg.OnRequest != nil {
		c.cfg.OnRequest(msg.Method, msg.Path)
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req := msg.Request()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var out *Message
	if err := c.cfg.Auth.Check(req); err != nil {
		out = NewErrorMessage(req.ID, "unauthorized", err.Error())
	} else {
		resp := c.handler.HandleRequest(ctx, req)
		out = NewResponseMessage(req.ID, resp)
	}

	if err := c.sendMessage(ctx, out); err != nil {
		c.log.Error("failed to send response", "id", req.ID, "error", err)
	}

	c.metrics.RequestServed(time.Since(startTime))
}

// pingLoop sends keepalive pings at the configured interval.
func (c *Client) pingLoop(ctx context.Context) {
	if c.cfg.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopped:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				return
			}
			if err := c.sendMessage(ctx, NewPingMessage(uuid.NewString())); err != nil {
				return
			}
		}
	}
}

// sendPong sends a pong message.
func (c *Client) sendPong(ctx context.Context, pingID string) {
	_ = c.sendMessage(ctx, NewPongMessage(pingID))
}

// sendMessage sends a message to the relay.
func (c *Client) sendMessage(ctx context.Context, msg *Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	c.metrics.AddBytesOut(int64(len(data)))

	return conn.Write(ctx, websocket.MessageText, data)
}

// reconnectLoop attempts to reconnect after an unexpected disconnect,
// backing off exponentially with a little jitter so a relay restart does
// not see every client return in the same instant.
func (c *Client) reconnectLoop(ctx context.Context) {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-c.stopped:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay + time.Duration(rand.Int63n(int64(delay/4)+1))):
		}

		if err := c.Connect(ctx); err != nil {
			c.log.Debug("reconnect attempt failed", "delay", delay, "error", err)
			delay *= 2
			if delay > c.cfg.MaxReconnectDelay {
				delay = c.cfg.MaxReconnectDelay
			}
			continue
		}

		c.reconnects.Add(1)
		return
	}
}

// Run connects, unless Connect already did, and blocks until Close or
// context cancellation.
func (c *Client) Run(ctx context.Context) error {
	if !c.connected.Load() {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// SetLogger sets the operational logger for the client.
func (c *Client) SetLogger(log *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if log != nil {
		c.log = log
	} else {
		c.log = logging.Nop()
	}
}

// warnTokenExpiry inspects the token's expiry claim, without verifying the
// signature, purely to warn early. Opaque (non-JWT) tokens are ignored.
func (c *Client) warnTokenExpiry() {
	token, _, err := jwt.NewParser().ParseUnverified(c.cfg.Token, jwt.MapClaims{})
	if err != nil {
		return
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	switch {
	case time.Now().After(exp.Time):
		c.log.Warn("relay token is expired, the relay will likely reject it", "expiredAt", exp.Time)
	case time.Until(exp.Time) < 24*time.Hour:
		c.log.Warn("relay token expires soon", "expiresAt", exp.Time)
	}
}
