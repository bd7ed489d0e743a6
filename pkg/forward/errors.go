package forward

import "errors"

// Sentinel errors for the forwarding pipeline. Every one of them surfaces
// to the relay caller as an HTTP 500 with a diagnostic body; errors.Is
// reaches them through whatever wrapping the stages add.
var (
	// ErrUnsupportedMethod marks an inbound verb outside the fixed
	// whitelist. Raised before any network I/O.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")

	// ErrTranslation marks a malformed inbound URI or an unbuildable
	// outbound request.
	ErrTranslation = errors.New("request translation failed")

	// ErrBackendUnreachable marks a transport-level failure talking to the
	// local backend (connection refused, timeout, DNS).
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrBackendProtocol marks a malformed or unreadable backend response.
	ErrBackendProtocol = errors.New("backend protocol error")

	// ErrMiddleware marks a failure raised by a middleware unit, on either
	// the request or the response side.
	ErrMiddleware = errors.New("middleware failure")
)

// Stage names one step of the per-request state machine. It annotates
// failures so the diagnostic body says where the pipeline broke.
type Stage string

// Pipeline stages, in execution order.
const (
	StageReceived     Stage = "received"
	StageTranslating  Stage = "translating"
	StageForwarding   Stage = "forwarding"
	StageTransforming Stage = "transforming"
)

// StageError wraps a pipeline failure with the stage it occurred in. The
// orchestrator builds exactly one per failed request; its Error text is
// what the relay caller receives as the response body.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	return "forwarding failed at stage " + string(e.Stage) + ": " + e.Err.Error()
}

// Unwrap exposes the underlying failure to errors.Is and errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}
