package history

import "log/slog"

// Observer receives Ledger change notifications. Both methods are invoked
// while the Ledger's lock is held: implementations must return promptly,
// must not call back into the Ledger, and must treat the record as
// read-only. Observers needing to do real work should hand the record off
// to their own goroutine, copying it first if they will touch it after an
// in-flight record's finalization.
type Observer interface {
	// RecordAdded fires when a new Active record enters the collection.
	RecordAdded(rec *Record)

	// RecordUpdated fires when a record reaches its terminal state.
	RecordUpdated(rec *Record)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) RecordAdded(*Record)   {}
func (NopObserver) RecordUpdated(*Record) {}

// LogObserver emits a structured log line per notification.
type LogObserver struct {
	Log *slog.Logger
}

// RecordAdded implements Observer.
func (o LogObserver) RecordAdded(rec *Record) {
	o.Log.Info("request received",
		"id", rec.ID,
		"method", rec.Method,
		"url", rec.URL,
	)
}

// RecordUpdated implements Observer.
func (o LogObserver) RecordUpdated(rec *Record) {
	if rec.Failed {
		o.Log.Error("request failed",
			"id", rec.ID,
			"method", rec.Method,
			"url", rec.URL,
			"duration", rec.Duration,
		)
		return
	}
	o.Log.Info("request completed",
		"id", rec.ID,
		"method", rec.Method,
		"url", rec.URL,
		"status", rec.Status,
		"duration", rec.Duration,
	)
}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

// RecordAdded implements Observer.
func (m MultiObserver) RecordAdded(rec *Record) {
	for _, o := range m {
		o.RecordAdded(rec)
	}
}

// RecordUpdated implements Observer.
func (m MultiObserver) RecordUpdated(rec *Record) {
	for _, o := range m {
		o.RecordUpdated(rec)
	}
}

// FuncObserver adapts plain functions to the Observer interface. Nil
// functions are skipped.
type FuncObserver struct {
	Added   func(rec *Record)
	Updated func(rec *Record)
}

// RecordAdded implements Observer.
func (f FuncObserver) RecordAdded(rec *Record) {
	if f.Added != nil {
		f.Added(rec)
	}
}

// RecordUpdated implements Observer.
func (f FuncObserver) RecordUpdated(rec *Record) {
	if f.Updated != nil {
		f.Updated(rec)
	}
}

var (
	_ Observer = NopObserver{}
	_ Observer = LogObserver{}
	_ Observer = MultiObserver{}
	_ Observer = FuncObserver{}
)
