package wire

import (
	"encoding/json"
	"fmt"
)

// Control message types, exchanged on the control stream.
const (
	ControlTypeAuth       = "auth"
	ControlTypeAuthOK     = "auth_ok"
	ControlTypeAuthError  = "auth_error"
	ControlTypePing       = "ping"
	ControlTypePong       = "pong"
	ControlTypeDisconnect = "disconnect"
	ControlTypeGoaway     = "goaway"
)

// ControlMessage is the envelope for control stream traffic. Payload is the
// raw JSON of the type-specific payload, decoded by the receiver once the
// type is known.
type ControlMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewControlMessage wraps a typed payload. A nil payload produces a bare
// envelope, used by ping and pong.
func NewControlMessage(msgType string, payload any) (*ControlMessage, error) {
	msg := &ControlMessage{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// DecodePayload unmarshals the message payload into v.
func (m *ControlMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// EncodeControlMessage encodes a control message to JSON bytes.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeControlMessage decodes a control message from JSON bytes.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AuthPayload opens the session: the client presents its token and the
// tunnel routing name it wants.
type AuthPayload struct {
	Token         string `json:"token"`
	Tunnel        string `json:"tunnel,omitempty"`
	ClientVersion string `json:"clientVersion,omitempty"`
}

// AuthOKPayload is the relay's answer to a successful auth.
type AuthOKPayload struct {
	SessionID string `json:"session_id"`
	Tunnel    string `json:"tunnel"`
	PublicURL string `json:"public_url"`
}

// AuthErrorPayload is the relay's answer to a failed auth.
type AuthErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GoawayPayload announces a graceful relay shutdown. The client stops
// accepting new streams and drains in-flight requests within the timeout.
type GoawayPayload struct {
	Reason string `json:"reason"`
	// DrainTimeoutMs is how long the relay waits for in-flight requests
	// before force-closing, in milliseconds.
	DrainTimeoutMs int64  `json:"drain_timeout_ms"`
	Message        string `json:"message,omitempty"`
}
