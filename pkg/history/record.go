package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/getburrow/burrow/pkg/relay"
)

// Status and duration sentinels. A record carries StatusActive and
// DurationActive from creation until it is finalized; a finalized record
// carries the numeric HTTP status as text, or StatusError when forwarding
// failed.
const (
	StatusActive   = "Active"
	StatusError    = "Error"
	DurationActive = "Active"
)

// Record captures one request processed through the tunnel. It is created
// in Active state when the request arrives and mutated in place exactly
// once, to its terminal state, when processing ends. Records handed out by
// the Ledger are read-only for callers.
type Record struct {
	// ID is a unique identifier for the record.
	ID string `json:"id"`

	// Method is the uppercased inbound HTTP method.
	Method string `json:"method"`

	// URL is the path-and-query relative to the exposed root, with the
	// tunnel's routing segment stripped.
	URL string `json:"url"`

	// ReceivedAt is when the request arrived.
	ReceivedAt time.Time `json:"receivedAt"`

	// RequestHeaders are the inbound headers as ordered pairs.
	RequestHeaders []relay.HeaderPair `json:"requestHeaders,omitempty"`

	// RequestBody is the inbound body text, empty if absent.
	RequestBody string `json:"requestBody,omitempty"`

	// ResponseHeaders are the outbound headers as ordered pairs.
	ResponseHeaders []relay.HeaderPair `json:"responseHeaders,omitempty"`

	// ResponseBody is the outbound body text, empty if absent.
	ResponseBody string `json:"responseBody,omitempty"`

	// Status is "Active" in flight, the HTTP status as text ("200") once
	// complete, or "Error" on failure.
	Status string `json:"status"`

	// Duration is "Active" in flight, then the formatted elapsed time.
	Duration string `json:"duration"`

	// Failed is set when forwarding failed.
	Failed bool `json:"failed"`
}

// NewRecord builds an Active record for a freshly arrived request. When id
// is empty a new one is generated.
func NewRecord(id, method, url string, headers []relay.HeaderPair, body string) *Record {
	if id == "" {
		id = uuid.NewString()
	}
	return &Record{
		ID:             id,
		Method:         method,
		URL:            url,
		ReceivedAt:     time.Now(),
		RequestHeaders: headers,
		RequestBody:    body,
		Status:         StatusActive,
		Duration:       DurationActive,
	}
}

// Active reports whether the record has not reached a terminal state yet.
func (r *Record) Active() bool {
	return r.Status == StatusActive
}

// Outcome carries the terminal state applied to a record by Finalize.
type Outcome struct {
	// Status is the terminal status text: an HTTP status ("200") or the
	// StatusError sentinel.
	Status string

	// Duration is the elapsed processing time.
	Duration time.Duration

	// ResponseHeaders and ResponseBody mirror what was sent to the relay.
	ResponseHeaders []relay.HeaderPair
	ResponseBody    string

	// Failed marks the record as a forwarding failure.
	Failed bool
}

// formatDuration renders an elapsed time for display. Negative values
// (clock adjustments mid-request) clamp to zero so durations never run
// backwards.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Microsecond).String()
}
