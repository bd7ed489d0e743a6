package history

import "sync"

// Ledger is the synchronized, observable log of all in-flight and completed
// requests. Records are ordered most recent first. One mutex guards the
// collection and the observer notification path; it is never held across
// any network operation, so a slow backend call cannot serialize unrelated
// requests behind it.
type Ledger struct {
	mu       sync.Mutex
	records  []*Record
	observer Observer
}

// NewLedger creates a Ledger reporting to the given observer. A nil
// observer disables notifications.
func NewLedger(observer Observer) *Ledger {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Ledger{observer: observer}
}

// SetObserver replaces the ledger's observer. Notifications run under the
// ledger mutex, so records logged after the call are reported to the new
// observer and never to both.
func (l *Ledger) SetObserver(observer Observer) {
	if observer == nil {
		observer = NopObserver{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
}

// Record inserts rec at the head of the collection and synchronously
// notifies the observer. The record is visible to readers in its Active
// state from this point on.
func (l *Ledger) Record(rec *Record) {
	if rec == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, nil)
	copy(l.records[1:], l.records)
	l.records[0] = rec

	l.observer.RecordAdded(rec)
}

// Finalize applies the terminal outcome to rec in place and notifies the
// observer. Called exactly once per record, success or failure; after it
// returns the record never changes again.
func (l *Ledger) Finalize(rec *Record, out Outcome) {
	if rec == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec.Status = out.Status
	rec.Duration = formatDuration(out.Duration)
	rec.ResponseHeaders = out.ResponseHeaders
	rec.ResponseBody = out.ResponseBody
	rec.Failed = out.Failed

	l.observer.RecordUpdated(rec)
}

// Records returns a snapshot of all records, most recent first. The
// snapshot holds copies, so callers can read it without racing in-flight
// finalizations.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, len(l.records))
	for i, rec := range l.records {
		out[i] = *rec
	}
	return out
}

// Get returns a copy of the record with the given ID.
func (l *Ledger) Get(id string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.ID == id {
			return *rec, true
		}
	}
	return Record{}, false
}

// Len returns the number of records held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear empties the collection. The engine never calls this; it exists for
// explicit user-initiated resets through the inspector.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
