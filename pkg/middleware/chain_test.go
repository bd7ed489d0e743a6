package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendHeader adds its value to a shared header on both directions, making
// execution order observable.
type appendHeader struct {
	name  string
	value string
}

func (a appendHeader) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	req.Header.Add(a.name, a.value)
	return req, nil
}

func (a appendHeader) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	resp.Header.Add(a.name, a.value)
	return resp, nil
}

type failing struct {
	err error
}

func (f failing) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	return nil, f.err
}

func (f failing) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	return nil, f.err
}

type nilReturning struct{}

func (nilReturning) TransformRequest(context.Context, *http.Request) (*http.Request, error) {
	return nil, nil
}

func (nilReturning) TransformResponse(context.Context, *http.Response) (*http.Response, error) {
	return nil, nil
}

func TestChainRequestOrder(t *testing.T) {
	chain := Chain{
		appendHeader{"X-Trace", "a"},
		appendHeader{"X-Trace", "b"},
	}

	req := httptest.NewRequest("GET", "http://localhost/", nil)
	out, err := chain.ApplyRequest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, out.Header.Values("X-Trace"),
		"units must run in registration order")
}

func TestChainResponseOrderNotReversed(t *testing.T) {
	chain := Chain{
		appendHeader{"X-Trace", "a"},
		appendHeader{"X-Trace", "b"},
	}

	resp := &http.Response{Header: http.Header{}}
	out, err := chain.ApplyResponse(context.Background(), resp)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, out.Header.Values("X-Trace"),
		"response hooks run in the same order as request hooks, not reversed")
}

func TestChainFeedsReplacementForward(t *testing.T) {
	replacer := replaceRequest{}
	chain := Chain{replacer, appendHeader{"X-After", "yes"}}

	req := httptest.NewRequest("GET", "http://localhost/original", nil)
	out, err := chain.ApplyRequest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/replaced", out.URL.Path, "later units must see the replacement")
	assert.Equal(t, "yes", out.Header.Get("X-After"))
}

type replaceRequest struct{}

func (replaceRequest) TransformRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	clone.URL.Path = "/replaced"
	return clone, nil
}

func (replaceRequest) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	return resp, nil
}

func TestChainErrorAbortsAndAnnotates(t *testing.T) {
	boom := errors.New("boom")
	chain := Chain{
		appendHeader{"X-Trace", "a"},
		failing{err: boom},
		appendHeader{"X-Trace", "never"},
	}

	req := httptest.NewRequest("GET", "http://localhost/", nil)
	_, err := chain.ApplyRequest(context.Background(), req)
	require.Error(t, err)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "middleware 1", "error must name the failing unit's position")
	assert.Equal(t, []string{"a"}, req.Header.Values("X-Trace"),
		"units after the failure must not run")
}

func TestChainRejectsNilResult(t *testing.T) {
	chain := Chain{nilReturning{}}

	req := httptest.NewRequest("GET", "http://localhost/", nil)
	_, err := chain.ApplyRequest(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned nil")

	resp := &http.Response{Header: http.Header{}}
	_, err = chain.ApplyResponse(context.Background(), resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned nil")
}

func TestEmptyChainPassesThrough(t *testing.T) {
	var chain Chain

	req := httptest.NewRequest("GET", "http://localhost/", nil)
	out, err := chain.ApplyRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, req, out)

	resp := &http.Response{Header: http.Header{}}
	outResp, err := chain.ApplyResponse(context.Background(), resp)
	require.NoError(t, err)
	assert.Same(t, resp, outResp)
}

func TestNameFallsBackToType(t *testing.T) {
	assert.Equal(t, "middleware.appendHeader", Name(appendHeader{}))

	rule, err := NewRule(RuleConfig{Name: "inject"})
	require.NoError(t, err)
	assert.Equal(t, "rule:inject", Name(rule))
}
