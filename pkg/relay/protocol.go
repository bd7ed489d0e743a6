package relay

import (
	"encoding/json"
)

// Message types for the relay protocol.
const (
	MessageTypeRequest    = "request"
	MessageTypeResponse   = "response"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"
	MessageTypeConnected  = "connected"
	MessageTypeDisconnect = "disconnect"
)

// Message is the JSON envelope exchanged with the relay over the WebSocket
// transport. Headers are ordered pairs; a header that carried several values
// appears once per value.
type Message struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`                    // request correlation ID
	Method      string       `json:"method,omitempty"`      // HTTP method (requests)
	Path        string       `json:"path,omitempty"`        // path-and-query as received
	Headers     []HeaderPair `json:"headers,omitempty"`     // ordered header pairs
	Body        []byte       `json:"body,omitempty"`        // request/response body
	Status      int          `json:"status,omitempty"`      // response status code
	ContentType string       `json:"contentType,omitempty"` // response content type
	Error       string       `json:"error,omitempty"`       // error message
}

// ConnectedMessage is received from the relay after successful connection.
type ConnectedMessage struct {
	Type      string `json:"type"`       // always "connected"
	SessionID string `json:"session_id"` // session identifier
	PublicURL string `json:"public_url"` // public URL for this tunnel
	Tunnel    string `json:"tunnel"`     // assigned routing name
}

// Request converts a request message into the engine's request form.
func (m *Message) Request() *Request {
	return &Request{
		ID:      m.ID,
		Method:  m.Method,
		Path:    m.Path,
		Headers: m.Headers,
		Body:    m.Body,
	}
}

// NewResponseMessage wraps an engine response for the wire.
func NewResponseMessage(id string, resp *Response) *Message {
	return &Message{
		Type:        MessageTypeResponse,
		ID:          id,
		Status:      resp.Status,
		Headers:     resp.Headers,
		Body:        resp.Body,
		ContentType: resp.ContentType,
	}
}

// NewErrorMessage creates a new error message.
func NewErrorMessage(id, code, message string) *Message {
	return &Message{
		Type:  MessageTypeError,
		ID:    id,
		Error: code + ": " + message,
	}
}

// NewPingMessage creates a keepalive ping.
func NewPingMessage(id string) *Message {
	return &Message{
		Type: MessageTypePing,
		ID:   id,
	}
}

// NewPongMessage creates a pong message in response to a ping.
func NewPongMessage(pingID string) *Message {
	return &Message{
		Type: MessageTypePong,
		ID:   pingID,
	}
}

// Encode serializes a message to JSON bytes.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage deserializes a JSON message.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeConnectedMessage deserializes a connected message.
func DecodeConnectedMessage(data []byte) (*ConnectedMessage, error) {
	var msg ConnectedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
