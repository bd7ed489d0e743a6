package forward

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Forwarder issues the outbound HTTP call against the local backend. It is
// the single blocking network operation in the pipeline. The underlying
// client's connection pool is shared across all in-flight requests.
type Forwarder struct {
	client *http.Client
}

// NewForwarder wraps client for backend calls. A nil client gets
// DefaultClient.
func NewForwarder(client *http.Client) *Forwarder {
	if client == nil {
		client = DefaultClient()
	}
	return &Forwarder{client: client}
}

// DefaultClient returns the client the engine uses when none is supplied:
// pooled default transport, no client-level timeout (a hung backend call
// is bounded only by the relay transport's own deadline), and redirects
// passed through to the caller instead of followed.
func DefaultClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Forward sends req and returns the response only once its body has been
// read completely into memory; the returned Body is an in-memory reader,
// so response middlewares can inspect it freely. Failures are
// classified, not handled: transport-level errors wrap
// ErrBackendUnreachable, an unreadable response body wraps
// ErrBackendProtocol, and both propagate to the orchestrator. The call is
// attempted exactly once.
func (f *Forwarder) Forward(req *http.Request) (*http.Response, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", ErrBackendProtocol, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp, nil
}
