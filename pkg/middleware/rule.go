package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RuleConfig describes a conditional header rule: a path pattern and an
// optional boolean condition that gate a set of header edits. Rules come
// from the rules section of the config file.
type RuleConfig struct {
	// Name identifies the rule in logs and errors.
	Name string `json:"name" yaml:"name"`

	// Path is a glob matched against the outbound request path, with **
	// crossing segment boundaries ("/api/**"). Empty matches every path.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// When is an expression over {method, path, host, query, header(name)}
	// that must evaluate to true for the rule to apply. Empty means always.
	When string `json:"when,omitempty" yaml:"when,omitempty"`

	SetRequestHeaders     map[string]string `json:"setRequestHeaders,omitempty" yaml:"setRequestHeaders,omitempty"`
	RemoveRequestHeaders  []string          `json:"removeRequestHeaders,omitempty" yaml:"removeRequestHeaders,omitempty"`
	SetResponseHeaders    map[string]string `json:"setResponseHeaders,omitempty" yaml:"setResponseHeaders,omitempty"`
	RemoveResponseHeaders []string          `json:"removeResponseHeaders,omitempty" yaml:"removeResponseHeaders,omitempty"`
}

// Rule applies header edits to requests and responses whose originating
// request matches the configured path pattern and condition. The condition
// compiles once at construction; a rule that fails to compile never makes
// it into a chain.
type Rule struct {
	cfg     RuleConfig
	program *vm.Program
}

// NewRule compiles a rule from its configuration.
func NewRule(cfg RuleConfig) (*Rule, error) {
	if cfg.Path != "" && !doublestar.ValidatePattern(cfg.Path) {
		return nil, fmt.Errorf("rule %q: invalid path pattern %q", cfg.Name, cfg.Path)
	}

	r := &Rule{cfg: cfg}
	if cfg.When != "" {
		program, err := expr.Compile(cfg.When, expr.Env(exprEnv(&http.Request{URL: nil})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %q: compile condition: %w", cfg.Name, err)
		}
		r.program = program
	}
	return r, nil
}

// Name implements the optional naming hook used in chain diagnostics.
func (r *Rule) Name() string {
	if r.cfg.Name != "" {
		return "rule:" + r.cfg.Name
	}
	return "rule"
}

// TransformRequest implements Middleware.
func (r *Rule) TransformRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	ok, err := r.matches(req)
	if err != nil {
		return nil, err
	}
	if ok {
		for name, value := range r.cfg.SetRequestHeaders {
			req.Header.Set(name, value)
		}
		for _, name := range r.cfg.RemoveRequestHeaders {
			req.Header.Del(name)
		}
	}
	return req, nil
}

// TransformResponse implements Middleware. The match is evaluated against
// the response's originating request; a response without one (never the
// case inside the engine) matches unconditionally.
func (r *Rule) TransformResponse(_ context.Context, resp *http.Response) (*http.Response, error) {
	ok := true
	if resp.Request != nil {
		var err error
		ok, err = r.matches(resp.Request)
		if err != nil {
			return nil, err
		}
	}
	if ok {
		for name, value := range r.cfg.SetResponseHeaders {
			resp.Header.Set(name, value)
		}
		for _, name := range r.cfg.RemoveResponseHeaders {
			resp.Header.Del(name)
		}
	}
	return resp, nil
}

// matches evaluates the path pattern and condition against a request.
func (r *Rule) matches(req *http.Request) (bool, error) {
	if r.cfg.Path != "" {
		ok, err := doublestar.Match(r.cfg.Path, req.URL.Path)
		if err != nil || !ok {
			return false, err
		}
	}

	if r.program == nil {
		return true, nil
	}

	out, err := expr.Run(r.program, exprEnv(req))
	if err != nil {
		return false, fmt.Errorf("rule %q: eval condition: %w", r.cfg.Name, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// BuildChain compiles rule configurations into a chain, preserving their
// order. A single bad rule fails the whole build so configuration errors
// surface at startup, not mid-request.
func BuildChain(cfgs []RuleConfig) (Chain, error) {
	chain := make(Chain, 0, len(cfgs))
	for _, cfg := range cfgs {
		rule, err := NewRule(cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rule)
	}
	return chain, nil
}

// exprEnv builds the expression environment for a request. Called with a
// bare request at compile time so identifier types are checked up front.
func exprEnv(req *http.Request) map[string]any {
	var path, query string
	if req.URL != nil {
		path = req.URL.Path
		query = req.URL.RawQuery
	}
	return map[string]any{
		"method": req.Method,
		"path":   path,
		"host":   req.Host,
		"query":  query,
		"header": func(name string) string { return req.Header.Get(name) },
	}
}

var _ Middleware = (*Rule)(nil)
