package wire

import (
	"encoding/json"

	"github.com/getburrow/burrow/pkg/relay"
)

// HTTPMetadata is the JSON metadata opening an HTTP stream. A request sets
// RequestID, Method, Path, and Header; the response on the same stream sets
// RequestID, Status, ContentType, and Header. Headers are ordered pairs so
// duplicates and ordering survive the framing just as they do on the
// WebSocket transport.
type HTTPMetadata struct {
	RequestID string             `json:"requestId"`
	Method    string             `json:"method,omitempty"`
	Path      string             `json:"path,omitempty"`
	Header    []relay.HeaderPair `json:"header,omitempty"`

	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// EncodeHTTPMetadata encodes HTTP metadata to JSON bytes.
func EncodeHTTPMetadata(m *HTTPMetadata) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeHTTPMetadata decodes HTTP metadata from JSON bytes.
func DecodeHTTPMetadata(data []byte) (*HTTPMetadata, error) {
	var m HTTPMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Request converts inbound request metadata plus an assembled body into the
// engine's request form.
func (m *HTTPMetadata) Request(body []byte) *relay.Request {
	return &relay.Request{
		ID:      m.RequestID,
		Method:  m.Method,
		Path:    m.Path,
		Headers: m.Header,
		Body:    body,
	}
}

// ResponseMetadata builds the response metadata for an engine response.
func ResponseMetadata(id string, resp *relay.Response) *HTTPMetadata {
	return &HTTPMetadata{
		RequestID:   id,
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Header:      resp.Headers,
	}
}
