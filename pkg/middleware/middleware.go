package middleware

import (
	"context"
	"fmt"
	"net/http"
)

// Middleware transforms requests on their way to the backend and responses
// on their way back. Implementations may mutate the given value or return a
// replacement; either way they must return a well-formed, non-nil value.
// Both methods may block to do their own I/O. A middleware shared by
// concurrent requests synchronizes its own state; the engine adds no
// isolation.
type Middleware interface {
	TransformRequest(ctx context.Context, req *http.Request) (*http.Request, error)
	TransformResponse(ctx context.Context, resp *http.Response) (*http.Response, error)
}

// Chain is an ordered list of middlewares. The order is caller-supplied and
// significant: requests and responses both walk the chain front to back
// (response hooks are deliberately not reversed), each result feeding the
// next unit. A unit cannot skip the rest of the chain; its only way out is
// an error, which aborts the walk and propagates to the caller.
type Chain []Middleware

// ApplyRequest runs every unit's TransformRequest in chain order.
func (c Chain) ApplyRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	for i, m := range c {
		next, err := m.TransformRequest(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("middleware %d (%s): transform request: %w", i, Name(m), err)
		}
		if next == nil {
			return nil, fmt.Errorf("middleware %d (%s): transform request returned nil", i, Name(m))
		}
		req = next
	}
	return req, nil
}

// ApplyResponse runs every unit's TransformResponse in chain order.
func (c Chain) ApplyResponse(ctx context.Context, resp *http.Response) (*http.Response, error) {
	for i, m := range c {
		next, err := m.TransformResponse(ctx, resp)
		if err != nil {
			return nil, fmt.Errorf("middleware %d (%s): transform response: %w", i, Name(m), err)
		}
		if next == nil {
			return nil, fmt.Errorf("middleware %d (%s): transform response returned nil", i, Name(m))
		}
		resp = next
	}
	return resp, nil
}

// Name returns a middleware's self-reported name when it has one, falling
// back to its Go type. Used to annotate chain failures.
func Name(m Middleware) string {
	if n, ok := m.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", m)
}
