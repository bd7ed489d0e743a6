// Package middleware defines the transformation pipeline applied to every
// request on its way to the local backend and to every response on its way
// back to the relay.
//
// A Chain holds an ordered list of Middleware values. Requests walk the
// chain front to back, and responses walk it in the same order, not in
// reverse: a unit that pairs request and response behavior sees them in the
// order it was registered for both directions. Every request passes the
// whole chain; there is no per-route selection. Units that want to act
// conditionally, like Rule, decide internally and otherwise pass the value
// through.
//
// A unit failure aborts the walk and surfaces at the forwarding engine's
// error boundary as an HTTP 500; no other unit runs for that request.
//
// Built-ins cover the common cases: RequestHeaders, ResponseHeaders and
// StripHeaders for unconditional header edits, Rule for glob-and-expression
// gated edits, and ExtractHeader for promoting JSON body fields into
// headers. Anything else implements the two-method Middleware interface.
package middleware
