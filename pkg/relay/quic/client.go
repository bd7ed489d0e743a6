// Package quic provides the QUIC relay transport. It speaks the wire framing
// over relay-initiated bidirectional streams and dispatches each request to
// the same RequestHandler as the WebSocket transport. Selected when the relay
// URL scheme is quic://.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/getburrow/burrow/pkg/logging"
	"github.com/getburrow/burrow/pkg/relay"
	"github.com/getburrow/burrow/pkg/relay/wire"
)

// DefaultPort is used when the quic:// URL carries no port.
const DefaultPort = "4443"

// alpnProtocol is the ALPN identifier negotiated with the relay.
const alpnProtocol = "burrow-relay"

// defaultDrainTimeout bounds the goaway drain when the relay does not name
// its own timeout.
const defaultDrainTimeout = 10 * time.Second

// Client is a QUIC relay client. One connection carries a client-opened
// control stream (auth handshake, keepalives, goaway) and relay-opened
// bidirectional streams, one per relayed request.
type Client struct {
	cfg     *relay.Config
	addr    string
	handler relay.RequestHandler
	log     *slog.Logger

	conn *quic.Conn

	// Control stream, with writes serialized.
	writeMu sync.Mutex
	control io.ReadWriteCloser

	// Connection identity, guarded by mu.
	mu          sync.RWMutex
	publicURL   string
	sessionID   string
	tunnel      string
	connectedAt time.Time

	metrics relay.Collector

	connected atomic.Bool
	closed    atomic.Bool
	draining  atomic.Bool
	inflight  sync.WaitGroup

	// OnGoaway fires when the relay announces a graceful shutdown, before
	// the drain begins. Optional.
	OnGoaway func(payload wire.GoawayPayload)
}

// NewClient creates a QUIC relay client for the given configuration. The
// relay URL must use the quic:// scheme.
func NewClient(cfg *relay.Config, handler relay.RequestHandler) (*Client, error) {
	if cfg == nil {
		cfg = relay.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	addr, err := relayAddr(cfg.RelayURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		addr:    addr,
		handler: handler,
		log:     logging.Nop(),
	}, nil
}

// relayAddr extracts the dial address from a quic:// relay URL.
func relayAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "quic" {
		return "", fmt.Errorf("relay URL scheme must be quic, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", errors.New("relay URL has no host")
	}

	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Connect dials the relay and performs the auth handshake on the control
// stream. On success the control reader is running and the client is ready
// for Run.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return errors.New("already connected")
	}

	c.log.Info("connecting to relay", "addr", c.addr)

	tlsConfig := &tls.Config{
		NextProtos:         []string{alpnProtocol},
		InsecureSkipVerify: c.cfg.TLSInsecure, //nolint:gosec // configurable for development relays
	}
	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	conn, err := quic.DialAddr(ctx, c.addr, tlsConfig, quicConfig)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "failed to open control stream")
		return fmt.Errorf("open control stream: %w", err)
	}

	okPayload, err := c.authenticate(control)
	if err != nil {
		_ = conn.CloseWithError(2, "auth failed")
		return err
	}

	c.conn = conn
	c.control = control

	c.mu.Lock()
	c.sessionID = okPayload.SessionID
	c.tunnel = okPayload.Tunnel
	c.publicURL = okPayload.PublicURL
	c.connectedAt = time.Now()
	c.mu.Unlock()

	c.connected.Store(true)

	go c.readControlStream()

	c.log.Info("connected to relay",
		"session", okPayload.SessionID,
		"tunnel", okPayload.Tunnel,
		"publicUrl", okPayload.PublicURL,
	)

	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(okPayload.PublicURL)
	}

	return nil
}

// authenticate runs the auth exchange on a fresh control stream.
func (c *Client) authenticate(control io.ReadWriter) (*wire.AuthOKPayload, error) {
	authMsg, err := wire.NewControlMessage(wire.ControlTypeAuth, &wire.AuthPayload{
		Token:         c.cfg.Token,
		Tunnel:        c.cfg.Tunnel,
		ClientVersion: c.cfg.ClientVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("encode auth: %w", err)
	}
	if err := writeControl(control, authMsg); err != nil {
		return nil, fmt.Errorf("send auth: %w", err)
	}

	respHeader, err := wire.DecodeHeader(control)
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	respMsg, err := wire.DecodeControlMessage(respHeader.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}

	switch respMsg.Type {
	case wire.ControlTypeAuthOK:
		var payload wire.AuthOKPayload
		if err := respMsg.DecodePayload(&payload); err != nil {
			return nil, fmt.Errorf("decode auth ok: %w", err)
		}
		return &payload, nil
	case wire.ControlTypeAuthError:
		var payload wire.AuthErrorPayload
		if err := respMsg.DecodePayload(&payload); err != nil {
			return nil, fmt.Errorf("auth failed: %w", err)
		}
		return nil, fmt.Errorf("auth failed: %s: %s", payload.Code, payload.Message)
	default:
		return nil, fmt.Errorf("unexpected auth response: %s", respMsg.Type)
	}
}

// writeControl frames one control message onto w.
func writeControl(w io.Writer, msg *wire.ControlMessage) error {
	data, err := wire.EncodeControlMessage(msg)
	if err != nil {
		return err
	}
	return wire.EncodeHeader(w, &wire.StreamHeader{
		Version:  wire.Version,
		Type:     wire.StreamTypeControl,
		Metadata: data,
	})
}

// Run accepts relay-initiated streams until the connection ends, connecting
// first if Connect has not been called. Each stream carries one request and
// is served in its own goroutine.
func (c *Client) Run(ctx context.Context) error {
	if !c.connected.Load() {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	for {
		stream, err := c.conn.AcceptStream(ctx)
		if err != nil {
			if c.closed.Load() || c.draining.Load() {
				return nil
			}
			if ctx.Err() != nil {
				c.Close()
				return ctx.Err()
			}
			c.log.Error("accept stream failed", "error", err)
			c.handleDisconnect(err)
			return err
		}

		go c.handleStream(ctx, stream)
	}
}

// handleStream serves one relayed request, tracking it for the goaway drain.
func (c *Client) handleStream(ctx context.Context, stream *quic.Stream) {
	c.inflight.Add(1)
	defer c.inflight.Done()
	defer func() { _ = stream.Close() }()

	c.serveStream(ctx, stream)
}

// serveStream decodes a request from rw, dispatches it, and writes the
// response back. The stream is half-duplex: request frames in full, then
// response frames in full.
func (c *Client) serveStream(ctx context.Context, rw io.ReadWriter) {
	header, err := wire.DecodeHeader(rw)
	if err != nil {
		c.log.Error("decode stream header failed", "error", err)
		return
	}
	if header.Type != wire.StreamTypeHTTP {
		c.log.Warn("unexpected stream type", "type", header.Type.String())
		return
	}

	meta, err := wire.DecodeHTTPMetadata(header.Metadata)
	if err != nil {
		c.log.Error("decode request metadata failed", "error", err)
		return
	}

	body, err := wire.ReadBody(rw)
	if err != nil {
		c.log.Error("read request body failed", "error", err)
		return
	}

	c.metrics.AddBytesIn(int64(len(header.Metadata) + len(body)))

	if c.cfg.OnRequest != nil {
		c.cfg.OnRequest(meta.Method, meta.Path)
	}

	start := time.Now()

	req := meta.Request(body)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	var resp *relay.Response
	if err := c.cfg.Auth.Check(req); err != nil {
		resp = &relay.Response{
			Status:      http.StatusUnauthorized,
			Headers:     []relay.HeaderPair{{Name: "Content-Type", Value: "text/plain; charset=utf-8"}},
			Body:        []byte(err.Error()),
			ContentType: "text/plain; charset=utf-8",
		}
	} else {
		resp = c.handler.HandleRequest(ctx, req)
	}

	if err := c.writeResponse(rw, req.ID, resp); err != nil {
		c.log.Error("write response failed", "id", req.ID, "error", err)
		return
	}

	c.metrics.RequestServed(time.Since(start))
}

// writeResponse frames an engine response back onto the stream.
func (c *Client) writeResponse(w io.Writer, id string, resp *relay.Response) error {
	metaBytes, err := wire.EncodeHTTPMetadata(wire.ResponseMetadata(id, resp))
	if err != nil {
		return fmt.Errorf("encode response metadata: %w", err)
	}
	if err := wire.EncodeHeader(w, &wire.StreamHeader{
		Version:  wire.Version,
		Type:     wire.StreamTypeHTTP,
		Metadata: metaBytes,
	}); err != nil {
		return err
	}
	if err := wire.WriteBody(w, resp.Body); err != nil {
		return err
	}

	c.metrics.AddBytesOut(int64(len(metaBytes) + len(resp.Body)))
	return nil
}

// readControlStream consumes relay control messages for the connection's
// lifetime: keepalive pings, goaway, disconnect.
func (c *Client) readControlStream() {
	for {
		if c.closed.Load() {
			return
		}

		header, err := wire.DecodeHeader(c.control)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Debug("control stream closed", "error", err)
			c.handleDisconnect(err)
			return
		}

		if header.Type != wire.StreamTypeControl {
			c.log.Warn("unexpected type on control stream", "type", header.Type.String())
			continue
		}

		msg, err := wire.DecodeControlMessage(header.Metadata)
		if err != nil {
			c.log.Warn("undecodable control message", "error", err)
			continue
		}

		if done := c.handleControlMessage(msg); done {
			return
		}
	}
}

// handleControlMessage dispatches one control message. Returns true when the
// control loop should stop.
func (c *Client) handleControlMessage(msg *wire.ControlMessage) bool {
	switch msg.Type {
	case wire.ControlTypePing:
		if err := c.sendControl(wire.ControlTypePong, nil); err != nil {
			c.log.Debug("pong failed", "error", err)
		}
	case wire.ControlTypeGoaway:
		c.handleGoaway(msg)
	case wire.ControlTypeDisconnect:
		c.log.Info("relay requested disconnect")
		c.Close()
		return true
	default:
		c.log.Debug("unhandled control message", "type", msg.Type)
	}
	return false
}

// sendControl frames a control message onto the control stream.
func (c *Client) sendControl(msgType string, payload any) error {
	msg, err := wire.NewControlMessage(msgType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.control == nil {
		return errors.New("not connected")
	}
	return writeControl(c.control, msg)
}

// handleGoaway begins a graceful drain: no new streams are accepted, and the
// connection closes once in-flight requests finish or the relay's drain
// timeout passes.
func (c *Client) handleGoaway(msg *wire.ControlMessage) {
	var payload wire.GoawayPayload
	if err := msg.DecodePayload(&payload); err != nil {
		c.log.Warn("undecodable goaway payload", "error", err)
		payload = wire.GoawayPayload{Reason: "unknown"}
	}

	c.log.Info("relay sent goaway",
		"reason", payload.Reason,
		"drainTimeoutMs", payload.DrainTimeoutMs,
	)

	if c.OnGoaway != nil {
		c.OnGoaway(payload)
	}

	if c.draining.Swap(true) {
		return
	}

	timeout := time.Duration(payload.DrainTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}

	go func() {
		done := make(chan struct{})
		go func() {
			c.inflight.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			c.log.Warn("drain timeout reached with requests still in flight")
		}
		c.Close()
	}()
}

// handleDisconnect reports a connection loss exactly once.
func (c *Client) handleDisconnect(err error) {
	if c.connected.Swap(false) {
		c.log.Info("disconnected from relay")
		if c.cfg.OnDisconnect != nil {
			c.cfg.OnDisconnect(err)
		}
	}
}

// Close tears the connection down. Safe to call multiple times.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}

	c.writeMu.Lock()
	if c.control != nil {
		_ = c.control.Close()
	}
	c.writeMu.Unlock()

	if c.conn != nil {
		_ = c.conn.CloseWithError(0, "client closing")
	}

	c.handleDisconnect(nil)
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
func (c *Client) Stats() *relay.Stats {
	c.mu.RLock()
	connectedAt := c.connectedAt
	c.mu.RUnlock()

	stats := c.metrics.Snapshot()
	stats.ConnectedAt = connectedAt
	stats.IsConnected = c.connected.Load()
	return &stats
}

// SetLogger sets the operational logger for the client.
func (c *Client) SetLogger(log *slog.Logger) {
	if log != nil {
		c.log = log
	} else {
		c.log = logging.Nop()
	}
}
