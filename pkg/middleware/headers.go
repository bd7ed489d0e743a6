package middleware

import (
	"context"
	"net/http"
)

// RequestHeaders sets fixed headers on every outbound request. Existing
// values for the same name are replaced. Responses pass through untouched.
type RequestHeaders map[string]string

// TransformRequest implements Middleware.
func (h RequestHeaders) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	for name, value := range h {
		req.Header.Set(name, value)
	}
	return req, nil
}

// TransformResponse implements Middleware.
func (h RequestHeaders) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	return resp, nil
}

// ResponseHeaders sets fixed headers on every response. Requests pass
// through untouched.
type ResponseHeaders map[string]string

// TransformRequest implements Middleware.
func (h ResponseHeaders) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	return req, nil
}

// TransformResponse implements Middleware.
func (h ResponseHeaders) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	for name, value := range h {
		resp.Header.Set(name, value)
	}
	return resp, nil
}

// StripHeaders removes the named headers from both requests and responses.
// Useful for keeping cookies or internal headers from crossing the tunnel.
type StripHeaders []string

// TransformRequest implements Middleware.
func (s StripHeaders) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	for _, name := range s {
		req.Header.Del(name)
	}
	return req, nil
}

// TransformResponse implements Middleware.
func (s StripHeaders) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	for _, name := range s {
		resp.Header.Del(name)
	}
	return resp, nil
}

var (
	_ Middleware = RequestHeaders{}
	_ Middleware = ResponseHeaders{}
	_ Middleware = StripHeaders{}
)
