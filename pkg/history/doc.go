// Package history provides the request ledger: a synchronized, observable
// log of every request processed through the tunnel, for user inspection
// and debugging. It is distinct from operational logging (which uses
// log/slog for platform debugging).
//
// # Core Types
//
// Record is the central type: one captured request/response pair, created
// in Active state the moment a request arrives and finalized in place
// exactly once when processing ends. The Ledger holds records most recent
// first and never evicts; only an explicit Clear empties it.
//
// # Observer Interface
//
// Observer receives RecordAdded and RecordUpdated callbacks under the
// Ledger's lock, which makes notifications atomic with the collection
// change they describe. Observers must return promptly and never call back
// into the Ledger; anything slow belongs on the observer's own goroutine.
//
// # Usage
//
//	ledger := history.NewLedger(history.LogObserver{Log: logger})
//	rec := history.NewRecord("", "GET", "/api/users", headers, "")
//	ledger.Record(rec)
//	// ... process the request ...
//	ledger.Finalize(rec, history.Outcome{Status: "200", Duration: elapsed})
//
// # Package Design
//
// The Ledger's single mutex covers the collection and the notification
// path, and nothing else; it is never held across a network call. Read
// methods return copies so callers can inspect history without racing
// in-flight finalizations.
package history
