package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ExtractHeader copies a value out of a JSON request body into a request
// header, so later middlewares and the backend can key on it without
// re-parsing the body. Non-JSON bodies and paths with no match pass
// through untouched; the body is always restored for downstream readers.
type ExtractHeader struct {
	path   string
	header string
	expr   jp.Expr
}

// NewExtractHeader compiles the JSONPath and returns the middleware.
func NewExtractHeader(path, header string) (*ExtractHeader, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("extract %q: parse path: %w", header, err)
	}
	return &ExtractHeader{path: path, header: header, expr: x}, nil
}

// Name implements the optional naming hook used in chain diagnostics.
func (e *ExtractHeader) Name() string {
	return "extract:" + e.header
}

// TransformRequest implements Middleware.
func (e *ExtractHeader) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	if req.Body == nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("extract %q: read body: %w", e.header, err)
	}

	var doc any
	if err := oj.Unmarshal(data, &doc); err != nil {
		return req, nil
	}

	if results := e.expr.Get(doc); len(results) > 0 {
		req.Header.Set(e.header, fmt.Sprint(results[0]))
	}
	return req, nil
}

// TransformResponse implements Middleware.
func (e *ExtractHeader) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	return resp, nil
}

var _ Middleware = (*ExtractHeader)(nil)
