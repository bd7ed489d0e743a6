// Package forward implements the request-forwarding engine: it rebuilds
// relayed requests into ordinary HTTP requests, runs them through the
// middleware chain, forwards them to the local backend, and translates the
// response back into relay form.
//
// # Pipeline
//
// Engine.HandleRequest owns one request end to end. The steps run strictly
// in order: publish an Active ledger record, translate (Translator), run
// the request-side middleware chain, forward (Forwarder), run the
// response-side chain, translate the response, finalize the record. The
// engine is the error boundary for the whole lifecycle: any failure at
// any step, middleware panics included, becomes an HTTP 500 whose body is
// the failure's diagnostic text, and the record is finalized as failed. No
// request ever ends without a response, and no record is left permanently
// Active.
//
// # Error taxonomy
//
// ErrUnsupportedMethod, ErrTranslation, ErrBackendUnreachable,
// ErrBackendProtocol and ErrMiddleware classify failures; StageError
// annotates where in the pipeline they happened. Nothing is retried;
// every network and middleware call is attempted exactly once.
//
// # Buffering
//
// Bodies are buffered eagerly on both legs: the inbound body arrives fully
// read from the transport, and Forwarder reads the backend response to
// completion before the response-side chain runs. Middlewares get a
// whole-body view, which some genuinely need, at the cost of holding large
// bodies entirely in memory. This is a deliberate constraint, not an
// oversight; bodies the size of memory are out of scope.
package forward
