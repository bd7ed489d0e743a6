package inspect

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/launchdarkly/eventsource"

	"github.com/getburrow/burrow/pkg/history"
)

// streamChannel is the eventsource channel carrying request events.
const streamChannel = "requests"

// streamBuffer is how many pending events the hub holds before dropping.
const streamBuffer = 256

// SSE event types sent on the stream.
const (
	eventAdded   = "added"
	eventUpdated = "updated"
)

// recordEvent is one ledger record framed as an SSE event. The payload is
// marshalled up front so Data never fails.
type recordEvent struct {
	kind string
	id   string
	data string
}

func newRecordEvent(kind string, rec *history.Record) recordEvent {
	data, _ := json.Marshal(rec)
	return recordEvent{kind: kind, id: rec.ID, data: string(data)}
}

func (e recordEvent) Id() string    { return e.id }
func (e recordEvent) Event() string { return e.kind }
func (e recordEvent) Data() string  { return e.data }

// ledgerRepository replays the current ledger contents to each new stream
// subscriber as "added" events, oldest first.
type ledgerRepository struct {
	ledger *history.Ledger
}

func (r ledgerRepository) Replay(channel, id string) chan eventsource.Event {
	out := make(chan eventsource.Event)
	go func() {
		defer close(out)
		records := r.ledger.Records()
		for i := len(records) - 1; i >= 0; i-- {
			out <- newRecordEvent(eventAdded, &records[i])
		}
	}()
	return out
}

// streamHub bridges ledger notifications onto the SSE stream. Notifications
// are buffered and never block the request path: when the buffer is full the
// event is dropped and counted instead.
type streamHub struct {
	publisher *eventsource.Server
	events    chan eventsource.Event
	dropped   atomic.Int64
	stop      chan struct{}
	stopOnce  sync.Once
}

func newStreamHub(ledger *history.Ledger) *streamHub {
	publisher := eventsource.NewServer()
	publisher.Gzip = false
	publisher.AllowCORS = true
	publisher.ReplayAll = true
	publisher.Register(streamChannel, ledgerRepository{ledger: ledger})

	h := &streamHub{
		publisher: publisher,
		events:    make(chan eventsource.Event, streamBuffer),
		stop:      make(chan struct{}),
	}
	go h.pump()
	return h
}

// pump forwards buffered events to subscribers.
func (h *streamHub) pump() {
	for {
		select {
		case ev := <-h.events:
			h.publisher.Publish([]string{streamChannel}, ev)
		case <-h.stop:
			return
		}
	}
}

// RecordAdded implements history.Observer.
func (h *streamHub) RecordAdded(rec *history.Record) {
	h.offer(newRecordEvent(eventAdded, rec))
}

// RecordUpdated implements history.Observer.
func (h *streamHub) RecordUpdated(rec *history.Record) {
	h.offer(newRecordEvent(eventUpdated, rec))
}

func (h *streamHub) offer(ev eventsource.Event) {
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
}

func (h *streamHub) droppedEvents() int64 {
	return h.dropped.Load()
}

func (h *streamHub) handler() http.HandlerFunc {
	return h.publisher.Handler(streamChannel)
}

func (h *streamHub) close() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.publisher.Close()
	})
}

var _ history.Observer = (*streamHub)(nil)
