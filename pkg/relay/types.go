package relay

import "context"

// HeaderPair is a single header name/value entry. Headers travel through the
// engine as an ordered sequence of pairs rather than a map so that duplicate
// names and insertion order survive the round trip to the relay.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request is a fully parsed inbound request as delivered by a relay
// transport. Path carries the path-and-query exactly as the relay received
// it, including the leading tunnel routing segment. Body is fully buffered.
type Request struct {
	ID      string
	Method  string
	Path    string
	Headers []HeaderPair
	Body    []byte
}

// Response is what a RequestHandler produces for one Request. ContentType is
// empty when the body is absent or the backend declared none.
type Response struct {
	Status      int
	Headers     []HeaderPair
	Body        []byte
	ContentType string
}

// RequestHandler handles incoming requests from the relay. Implementations
// must return a non-nil response for every request.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *Request) *Response
}

// FuncHandler adapts a function to the RequestHandler interface.
type FuncHandler func(ctx context.Context, req *Request) *Response

// HandleRequest implements RequestHandler.
func (f FuncHandler) HandleRequest(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}
