package forward

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getburrow/burrow/pkg/history"
	"github.com/getburrow/burrow/pkg/logging"
	"github.com/getburrow/burrow/pkg/middleware"
	"github.com/getburrow/burrow/pkg/relay"
)

// Config assembles an Engine. BackendURL is the only required field.
type Config struct {
	// BackendURL is the base URL of the locally running service, for
	// example "http://localhost:8080".
	BackendURL string

	// Client is the shared HTTP client for backend calls. Defaults to
	// DefaultClient.
	Client *http.Client

	// Chain is the ordered middleware pipeline. May be empty.
	Chain middleware.Chain

	// Ledger records every request processed. Defaults to a fresh ledger
	// with no observer.
	Ledger *history.Ledger

	// Logger is the operational logger. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Engine is the forwarding orchestrator: the per-request control-flow
// owner and the error boundary for the whole request lifecycle. It
// satisfies relay.RequestHandler and always returns a non-nil response;
// every failure, panics included, is converted into an HTTP 500 with the
// failure's diagnostic text as the body.
type Engine struct {
	translator *Translator
	forwarder  *Forwarder
	chain      middleware.Chain
	ledger     *history.Ledger
	log        *slog.Logger
}

// New builds an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	translator, err := NewTranslator(cfg.BackendURL)
	if err != nil {
		return nil, err
	}

	ledger := cfg.Ledger
	if ledger == nil {
		ledger = history.NewLedger(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Engine{
		translator: translator,
		forwarder:  NewForwarder(cfg.Client),
		chain:      cfg.Chain,
		ledger:     ledger,
		log:        log,
	}, nil
}

// Ledger returns the engine's request ledger.
func (e *Engine) Ledger() *history.Ledger {
	return e.ledger
}

// HandleRequest forwards one relayed request to the local backend. The
// steps run strictly in order: publish an Active record, translate the
// request, run the request-side chain, forward, run the response-side
// chain, translate the response, finalize the record. Concurrent requests
// interleave freely; only the ledger's own lock serializes them, and never
// across the backend call.
func (e *Engine) HandleRequest(ctx context.Context, req *relay.Request) (out *relay.Response) {
	start := time.Now()
	stage := StageReceived

	rec := history.NewRecord(req.ID, strings.ToUpper(req.Method), StripRoutingSegment(req.Path), req.Headers, string(req.Body))
	e.ledger.Record(rec)

	// A panicking middleware must not take the transport down; it fails
	// this one request like any other error would.
	defer func() {
		if r := recover(); r != nil {
			out = e.fail(rec, start, &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	stage = StageTranslating
	httpReq, _, err := e.translator.Translate(ctx, req)
	if err != nil {
		return e.fail(rec, start, &StageError{Stage: stage, Err: err})
	}
	httpReq, err = e.chain.ApplyRequest(ctx, httpReq)
	if err != nil {
		return e.fail(rec, start, &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrMiddleware, err)})
	}

	stage = StageForwarding
	httpResp, err := e.forwarder.Forward(httpReq)
	if err != nil {
		return e.fail(rec, start, &StageError{Stage: stage, Err: err})
	}

	stage = StageTransforming
	httpResp, err = e.chain.ApplyResponse(ctx, httpResp)
	if err != nil {
		return e.fail(rec, start, &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrMiddleware, err)})
	}
	resp, err := TranslateResponse(httpResp)
	if err != nil {
		return e.fail(rec, start, &StageError{Stage: stage, Err: err})
	}

	elapsed := time.Since(start)
	e.ledger.Finalize(rec, history.Outcome{
		Status:          strconv.Itoa(resp.Status),
		Duration:        elapsed,
		ResponseHeaders: resp.Headers,
		ResponseBody:    string(resp.Body),
	})

	e.log.Debug("request forwarded",
		"id", rec.ID,
		"method", rec.Method,
		"url", rec.URL,
		"status", resp.Status,
		"duration", elapsed,
	)
	return resp
}

// fail converts a stage failure into the HTTP 500 sent to the relay and
// finalizes the record as failed. The response body carries the full
// diagnostic text; nothing propagates past here.
func (e *Engine) fail(rec *history.Record, start time.Time, serr *StageError) *relay.Response {
	body := serr.Error()

	e.log.Error("request failed",
		"id", rec.ID,
		"method", rec.Method,
		"url", rec.URL,
		"stage", string(serr.Stage),
		"error", serr.Err,
	)

	const contentType = "text/plain; charset=utf-8"
	resp := &relay.Response{
		Status:      http.StatusInternalServerError,
		Headers:     []relay.HeaderPair{{Name: "Content-Type", Value: contentType}},
		Body:        []byte(body),
		ContentType: contentType,
	}

	e.ledger.Finalize(rec, history.Outcome{
		Status:          history.StatusError,
		Duration:        time.Since(start),
		ResponseHeaders: resp.Headers,
		ResponseBody:    body,
		Failed:          true,
	})
	return resp
}

var _ relay.RequestHandler = (*Engine)(nil)
