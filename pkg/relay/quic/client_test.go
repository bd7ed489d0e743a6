package quic

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getburrow/burrow/pkg/relay"
	"github.com/getburrow/burrow/pkg/relay/wire"
)

// fakeControl is an in-memory control stream.
type fakeControl struct {
	bytes.Buffer
	closed bool
}

func (f *fakeControl) Close() error {
	f.closed = true
	return nil
}

// newTestClient builds a client that never dials.
func newTestClient(t *testing.T, handler relay.RequestHandler) *Client {
	t.Helper()

	cfg := relay.DefaultConfig().
		WithToken("test-token").
		WithRelayURL("quic://relay.example.com:4443")

	client, err := NewClient(cfg, handler)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

// echoHandler returns a fixed 200 response and counts invocations.
func echoHandler(calls *atomic.Int64) relay.RequestHandler {
	return relay.FuncHandler(func(ctx context.Context, req *relay.Request) *relay.Response {
		if calls != nil {
			calls.Add(1)
		}
		return &relay.Response{
			Status:      200,
			Headers:     []relay.HeaderPair{{Name: "Content-Type", Value: "text/plain"}},
			Body:        []byte("echo:" + req.Path),
			ContentType: "text/plain",
		}
	})
}

// frameRequest writes one framed HTTP request into buf.
func frameRequest(t *testing.T, buf *bytes.Buffer, meta *wire.HTTPMetadata, body []byte) {
	t.Helper()

	metaBytes, err := wire.EncodeHTTPMetadata(meta)
	if err != nil {
		t.Fatalf("EncodeHTTPMetadata() error = %v", err)
	}
	err = wire.EncodeHeader(buf, &wire.StreamHeader{
		Version:  wire.Version,
		Type:     wire.StreamTypeHTTP,
		Metadata: metaBytes,
	})
	if err != nil {
		t.Fatalf("EncodeHeader() error = %v", err)
	}
	if err := wire.WriteBody(buf, body); err != nil {
		t.Fatalf("WriteBody() error = %v", err)
	}
}

// decodeResponse reads one framed HTTP response out of buf.
func decodeResponse(t *testing.T, buf *bytes.Buffer) (*wire.HTTPMetadata, []byte) {
	t.Helper()

	header, err := wire.DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if header.Type != wire.StreamTypeHTTP {
		t.Fatalf("response stream type = %v, want HTTP", header.Type)
	}
	meta, err := wire.DecodeHTTPMetadata(header.Metadata)
	if err != nil {
		t.Fatalf("DecodeHTTPMetadata() error = %v", err)
	}
	body, err := wire.ReadBody(buf)
	if err != nil {
		t.Fatalf("ReadBody() error = %v", err)
	}
	return meta, body
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// =============================================================================
// Relay Address Parsing
// =============================================================================

// TestRelayAddr verifies dial address extraction from relay URLs.
func TestRelayAddr(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "explicit port", url: "quic://relay.example.com:7000", want: "relay.example.com:7000"},
		{name: "default port", url: "quic://relay.example.com", want: "relay.example.com:4443"},
		{name: "ipv6 host", url: "quic://[::1]:9000", want: "[::1]:9000"},
		{name: "wrong scheme", url: "wss://relay.example.com", wantErr: true},
		{name: "no host", url: "quic://", wantErr: true},
		{name: "unparseable", url: "://nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := relayAddr(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("relayAddr(%q) error = nil, want error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("relayAddr(%q) error = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("relayAddr(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Client Construction
// =============================================================================

// TestNewClient_Validation verifies constructor argument checking.
func TestNewClient_Validation(t *testing.T) {
	valid := func() *relay.Config {
		return relay.DefaultConfig().
			WithToken("test-token").
			WithRelayURL("quic://relay.example.com")
	}

	t.Run("nil handler", func(t *testing.T) {
		if _, err := NewClient(valid(), nil); err == nil {
			t.Error("NewClient() with nil handler should return error")
		}
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := valid()
		cfg.Token = ""
		if _, err := NewClient(cfg, echoHandler(nil)); err == nil {
			t.Error("NewClient() without token should return error")
		}
	})

	t.Run("websocket scheme rejected", func(t *testing.T) {
		cfg := valid().WithRelayURL("wss://relay.example.com/tunnel")
		if _, err := NewClient(cfg, echoHandler(nil)); err == nil {
			t.Error("NewClient() with wss URL should return error")
		}
	})

	t.Run("valid", func(t *testing.T) {
		client, err := NewClient(valid(), echoHandler(nil))
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if client.IsConnected() {
			t.Error("new client should not be connected")
		}
		if client.addr != "relay.example.com:4443" {
			t.Errorf("addr = %q, want relay.example.com:4443", client.addr)
		}
	})
}

// TestNewClient_NilConfig verifies that a nil config falls back to defaults,
// which fail validation for lack of a token.
func TestNewClient_NilConfig(t *testing.T) {
	if _, err := NewClient(nil, echoHandler(nil)); err == nil {
		t.Error("NewClient(nil, ...) should return validation error")
	}
}

// =============================================================================
// Stream Serving
// =============================================================================

// TestServeStream_HappyPath verifies a full request/response exchange over an
// in-memory stream.
func TestServeStream_HappyPath(t *testing.T) {
	var calls atomic.Int64
	var gotReq *relay.Request

	handler := relay.FuncHandler(func(ctx context.Context, req *relay.Request) *relay.Response {
		calls.Add(1)
		gotReq = req
		return &relay.Response{
			Status:      201,
			Headers:     []relay.HeaderPair{{Name: "X-Result", Value: "created"}},
			Body:        []byte(`{"id":42}`),
			ContentType: "application/json",
		}
	})
	client := newTestClient(t, handler)

	buf := &bytes.Buffer{}
	frameRequest(t, buf, &wire.HTTPMetadata{
		RequestID: "req-1",
		Method:    "POST",
		Path:      "/api/items",
		Header:    []relay.HeaderPair{{Name: "Content-Type", Value: "application/json"}},
	}, []byte(`{"name":"widget"}`))

	client.serveStream(context.Background(), buf)

	if calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", calls.Load())
	}
	if gotReq.ID != "req-1" {
		t.Errorf("request ID = %q, want req-1", gotReq.ID)
	}
	if gotReq.Method != "POST" || gotReq.Path != "/api/items" {
		t.Errorf("request = %s %s, want POST /api/items", gotReq.Method, gotReq.Path)
	}
	if string(gotReq.Body) != `{"name":"widget"}` {
		t.Errorf("request body = %q", gotReq.Body)
	}

	meta, body := decodeResponse(t, buf)
	if meta.RequestID != "req-1" {
		t.Errorf("response RequestID = %q, want req-1", meta.RequestID)
	}
	if meta.Status != 201 {
		t.Errorf("response Status = %d, want 201", meta.Status)
	}
	if string(body) != `{"id":42}` {
		t.Errorf("response body = %q", body)
	}

	stats := client.Stats()
	if stats.RequestsServed != 1 {
		t.Errorf("RequestsServed = %d, want 1", stats.RequestsServed)
	}
	if stats.BytesIn == 0 || stats.BytesOut == 0 {
		t.Errorf("byte counters not updated: in=%d out=%d", stats.BytesIn, stats.BytesOut)
	}
}

// TestServeStream_GeneratesRequestID verifies that requests arriving without
// an ID get one, and the response echoes it.
func TestServeStream_GeneratesRequestID(t *testing.T) {
	var gotID string
	handler := relay.FuncHandler(func(ctx context.Context, req *relay.Request) *relay.Response {
		gotID = req.ID
		return &relay.Response{Status: 204}
	})
	client := newTestClient(t, handler)

	buf := &bytes.Buffer{}
	frameRequest(t, buf, &wire.HTTPMetadata{Method: "GET", Path: "/"}, nil)

	client.serveStream(context.Background(), buf)

	if gotID == "" {
		t.Fatal("handler should see a generated request ID")
	}
	meta, _ := decodeResponse(t, buf)
	if meta.RequestID != gotID {
		t.Errorf("response RequestID = %q, want %q", meta.RequestID, gotID)
	}
}

// TestServeStream_AuthRejected verifies that tunnel auth failures answer 401
// without invoking the handler.
func TestServeStream_AuthRejected(t *testing.T) {
	var calls atomic.Int64
	cfg := relay.DefaultConfig().
		WithToken("test-token").
		WithRelayURL("quic://relay.example.com").
		WithTokenAuth("visitor-secret")

	client, err := NewClient(cfg, echoHandler(&calls))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	buf := &bytes.Buffer{}
	frameRequest(t, buf, &wire.HTTPMetadata{
		RequestID: "req-2",
		Method:    "GET",
		Path:      "/private",
	}, nil)

	client.serveStream(context.Background(), buf)

	if calls.Load() != 0 {
		t.Errorf("handler calls = %d, want 0", calls.Load())
	}
	meta, body := decodeResponse(t, buf)
	if meta.Status != 401 {
		t.Errorf("response Status = %d, want 401", meta.Status)
	}
	if len(body) == 0 {
		t.Error("401 response should carry a reason")
	}
}

// TestServeStream_AuthAccepted verifies that a correct visitor token reaches
// the handler.
func TestServeStream_AuthAccepted(t *testing.T) {
	var calls atomic.Int64
	cfg := relay.DefaultConfig().
		WithToken("test-token").
		WithRelayURL("quic://relay.example.com").
		WithTokenAuth("visitor-secret")

	client, err := NewClient(cfg, echoHandler(&calls))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	buf := &bytes.Buffer{}
	frameRequest(t, buf, &wire.HTTPMetadata{
		RequestID: "req-3",
		Method:    "GET",
		Path:      "/private",
		Header:    []relay.HeaderPair{{Name: "X-Auth-Token", Value: "visitor-secret"}},
	}, nil)

	client.serveStream(context.Background(), buf)

	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	meta, _ := decodeResponse(t, buf)
	if meta.Status != 200 {
		t.Errorf("response Status = %d, want 200", meta.Status)
	}
}

// TestServeStream_WrongStreamType verifies that non-HTTP streams are dropped
// without a response.
func TestServeStream_WrongStreamType(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, echoHandler(&calls))

	buf := &bytes.Buffer{}
	msg, err := wire.NewControlMessage(wire.ControlTypePing, nil)
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}
	if err := writeControl(buf, msg); err != nil {
		t.Fatalf("writeControl() error = %v", err)
	}

	client.serveStream(context.Background(), buf)

	if calls.Load() != 0 {
		t.Errorf("handler calls = %d, want 0", calls.Load())
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes written for non-HTTP stream, want none", buf.Len())
	}
}

// TestServeStream_OnRequestCallback verifies request notification.
func TestServeStream_OnRequestCallback(t *testing.T) {
	var gotMethod, gotPath string
	cfg := relay.DefaultConfig().
		WithToken("test-token").
		WithRelayURL("quic://relay.example.com")
	cfg.OnRequest = func(method, path string) {
		gotMethod, gotPath = method, path
	}

	client, err := NewClient(cfg, echoHandler(nil))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	buf := &bytes.Buffer{}
	frameRequest(t, buf, &wire.HTTPMetadata{Method: "DELETE", Path: "/api/items/9"}, nil)
	client.serveStream(context.Background(), buf)

	if gotMethod != "DELETE" || gotPath != "/api/items/9" {
		t.Errorf("OnRequest got %s %s, want DELETE /api/items/9", gotMethod, gotPath)
	}
}

// =============================================================================
// Control Messages
// =============================================================================

// TestHandleControlMessage_PingAnswersPong verifies the keepalive exchange.
func TestHandleControlMessage_PingAnswersPong(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	control := &fakeControl{}
	client.control = control

	ping, err := wire.NewControlMessage(wire.ControlTypePing, nil)
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}

	if done := client.handleControlMessage(ping); done {
		t.Error("ping should not stop the control loop")
	}

	header, err := wire.DecodeHeader(control)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if header.Type != wire.StreamTypeControl {
		t.Errorf("reply stream type = %v, want control", header.Type)
	}
	reply, err := wire.DecodeControlMessage(header.Metadata)
	if err != nil {
		t.Fatalf("DecodeControlMessage() error = %v", err)
	}
	if reply.Type != wire.ControlTypePong {
		t.Errorf("reply type = %q, want %q", reply.Type, wire.ControlTypePong)
	}
}

// TestHandleControlMessage_Disconnect verifies that a relay disconnect closes
// the client and stops the control loop.
func TestHandleControlMessage_Disconnect(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	control := &fakeControl{}
	client.control = control
	client.connected.Store(true)

	msg, err := wire.NewControlMessage(wire.ControlTypeDisconnect, nil)
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}

	if done := client.handleControlMessage(msg); !done {
		t.Error("disconnect should stop the control loop")
	}
	if !client.closed.Load() {
		t.Error("client should be closed after disconnect")
	}
	if !control.closed {
		t.Error("control stream should be closed")
	}
	if client.IsConnected() {
		t.Error("client should not report connected after disconnect")
	}
}

// TestHandleControlMessage_UnknownIgnored verifies that unknown control types
// are skipped without side effects.
func TestHandleControlMessage_UnknownIgnored(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	control := &fakeControl{}
	client.control = control

	msg := &wire.ControlMessage{Type: "telemetry"}
	if done := client.handleControlMessage(msg); done {
		t.Error("unknown message should not stop the control loop")
	}
	if control.Len() != 0 {
		t.Errorf("%d bytes written for unknown message, want none", control.Len())
	}
	if client.closed.Load() {
		t.Error("unknown message should not close the client")
	}
}

// TestHandleGoaway_DrainsAndCloses verifies graceful shutdown with no
// requests in flight.
func TestHandleGoaway_DrainsAndCloses(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	client.control = &fakeControl{}
	client.connected.Store(true)

	var gotPayload wire.GoawayPayload
	client.OnGoaway = func(payload wire.GoawayPayload) {
		gotPayload = payload
	}

	var disconnects atomic.Int64
	client.cfg.OnDisconnect = func(err error) {
		disconnects.Add(1)
	}

	msg, err := wire.NewControlMessage(wire.ControlTypeGoaway, &wire.GoawayPayload{
		Reason:         "maintenance",
		DrainTimeoutMs: 5000,
	})
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}

	if done := client.handleControlMessage(msg); done {
		t.Error("goaway should let the control loop keep running until close")
	}
	if !client.draining.Load() {
		t.Error("client should be draining after goaway")
	}
	if gotPayload.Reason != "maintenance" {
		t.Errorf("OnGoaway reason = %q, want maintenance", gotPayload.Reason)
	}

	waitFor(t, 2*time.Second, func() bool { return client.closed.Load() })

	if disconnects.Load() != 1 {
		t.Errorf("OnDisconnect calls = %d, want 1", disconnects.Load())
	}
}

// TestHandleGoaway_TimeoutWithInflight verifies that the drain gives up after
// the relay's timeout even when a request never finishes.
func TestHandleGoaway_TimeoutWithInflight(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	client.control = &fakeControl{}
	client.connected.Store(true)

	client.inflight.Add(1)
	defer client.inflight.Done()

	msg, err := wire.NewControlMessage(wire.ControlTypeGoaway, &wire.GoawayPayload{
		Reason:         "restart",
		DrainTimeoutMs: 50,
	})
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}
	client.handleControlMessage(msg)

	waitFor(t, 2*time.Second, func() bool { return client.closed.Load() })
}

// =============================================================================
// Lifecycle
// =============================================================================

// TestClient_Close_Idempotent verifies Close can be called repeatedly.
func TestClient_Close_Idempotent(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	control := &fakeControl{}
	client.control = control

	client.Close()
	client.Close()
	client.Close()

	if !client.closed.Load() {
		t.Error("client should be closed")
	}
	if !control.closed {
		t.Error("control stream should be closed")
	}
}

// TestClient_HandleDisconnect_Once verifies the disconnect callback fires
// exactly once per connection.
func TestClient_HandleDisconnect_Once(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))
	client.connected.Store(true)

	var calls atomic.Int64
	var gotErr error
	client.cfg.OnDisconnect = func(err error) {
		calls.Add(1)
		gotErr = err
	}

	wantErr := errors.New("stream reset")
	client.handleDisconnect(wantErr)
	client.handleDisconnect(errors.New("second"))

	if calls.Load() != 1 {
		t.Errorf("OnDisconnect calls = %d, want 1", calls.Load())
	}
	if !errors.Is(gotErr, wantErr) {
		t.Errorf("OnDisconnect err = %v, want %v", gotErr, wantErr)
	}
}

// TestClient_Accessors verifies identity getters after a handshake.
func TestClient_Accessors(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))

	client.mu.Lock()
	client.publicURL = "https://fuzzy-marmot-42.burrow.dev"
	client.sessionID = "sess-abc"
	client.tunnel = "fuzzy-marmot-42"
	client.mu.Unlock()

	if got := client.PublicURL(); got != "https://fuzzy-marmot-42.burrow.dev" {
		t.Errorf("PublicURL() = %q", got)
	}
	if got := client.SessionID(); got != "sess-abc" {
		t.Errorf("SessionID() = %q", got)
	}
	if got := client.Tunnel(); got != "fuzzy-marmot-42" {
		t.Errorf("Tunnel() = %q", got)
	}
}

// TestClient_Stats_InitialValues verifies the zero-state snapshot.
func TestClient_Stats_InitialValues(t *testing.T) {
	client := newTestClient(t, echoHandler(nil))

	stats := client.Stats()
	if stats.RequestsServed != 0 {
		t.Errorf("RequestsServed = %d, want 0", stats.RequestsServed)
	}
	if stats.IsConnected {
		t.Error("IsConnected should be false before Connect")
	}
	if !stats.ConnectedAt.IsZero() {
		t.Error("ConnectedAt should be zero before Connect")
	}
	if stats.Reconnects != 0 {
		t.Errorf("Reconnects = %d, want 0", stats.Reconnects)
	}
}

// TestAuthenticate_ResponseHandling verifies the client side of the auth
// exchange against scripted relay responses.
func TestAuthenticate_ResponseHandling(t *testing.T) {
	tests := []struct {
		name     string
		respType string
		payload  any
		wantErr  string
	}{
		{
			name:     "auth ok",
			respType: wire.ControlTypeAuthOK,
			payload: &wire.AuthOKPayload{
				SessionID: "sess-1",
				Tunnel:    "tun-1",
				PublicURL: "https://tun-1.burrow.dev",
			},
		},
		{
			name:     "auth error",
			respType: wire.ControlTypeAuthError,
			payload:  &wire.AuthErrorPayload{Code: "invalid_token", Message: "token not recognized"},
			wantErr:  "invalid_token",
		},
		{
			name:     "unexpected type",
			respType: wire.ControlTypePong,
			wantErr:  "unexpected auth response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, echoHandler(nil))

			// Seed the scripted relay reply; the client's own auth write is
			// discarded by skipWrites so reads see only the reply.
			control := &bytes.Buffer{}
			reply, err := wire.NewControlMessage(tt.respType, tt.payload)
			if err != nil {
				t.Fatalf("NewControlMessage() error = %v", err)
			}
			if err := writeControl(control, reply); err != nil {
				t.Fatalf("writeControl() error = %v", err)
			}

			got, err := client.authenticate(&skipWrites{control})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("authenticate() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate() error = %v", err)
			}
			if got.SessionID != "sess-1" || got.Tunnel != "tun-1" {
				t.Errorf("authenticate() = %+v", got)
			}
		})
	}
}

// skipWrites discards writes so scripted replies are not interleaved with the
// client's own output.
type skipWrites struct {
	r io.Reader
}

func (s *skipWrites) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *skipWrites) Write(p []byte) (int, error) { return len(p), nil }
