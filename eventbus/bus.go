// Package eventbus implements the in-process publish/subscribe bus that
// drives cache invalidation and manual-refresh signaling. It wraps
// kataras/go-events' listener registry with a closed event-type
// enumeration and an explicit sync/async dispatch rule, instead of the
// library's free-form string event names.
package eventbus

import (
	"github.com/kataras/go-events"
	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/workerpool"
)

// EventType is the closed set of events the bus may carry.
type EventType string

const (
	DataCollected    EventType = "DATA_COLLECTED"
	ConfigChanged    EventType = "CONFIG_CHANGED"
	ManualRefresh    EventType = "MANUAL_REFRESH"
	CacheInvalidated EventType = "CACHE_INVALIDATED"
	CacheWarmed      EventType = "CACHE_WARMED"
)

func (e EventType) eventName() events.EventName { return events.EventName(e) }

// Payload carries the event-specific data. RangeSpec/Environment are
// populated for DATA_COLLECTED, MANUAL_REFRESH, and CACHE_INVALIDATED;
// Scope is populated for CONFIG_CHANGED.
type Payload struct {
	RangeSpec   string
	Environment string
	Scope       string
}

// Handler reacts to a published event. It returns nothing, so handlers
// log their own failures; a panicking handler is recovered and logged by
// the bus — see Bus.Subscribe.
type Handler func(Payload)

// Bus is the process-wide event emitter, scoped to a server context
// rather than held as a package global per spec.md §9.
type Bus struct {
	emitter *events.EventEmitter
	pool    *workerpool.Pool
	log     *logrus.Entry
}

// New constructs a Bus with a small async-dispatch worker pool.
func New(log *logrus.Entry, asyncWorkers int) *Bus {
	if asyncWorkers <= 0 {
		asyncWorkers = 2
	}
	e := events.New()
	return &Bus{emitter: &e, pool: workerpool.New(asyncWorkers), log: log}
}

// Subscribe registers handler for eventType. When async is true, handler
// is dispatched to the bus's worker pool instead of running on the
// publisher's goroutine; a panic inside an async or sync handler is
// recovered and logged so it never aborts dispatch to other listeners.
func (b *Bus) Subscribe(eventType EventType, async bool, handler Handler) {
	wrapped := func(payload ...interface{}) {
		var p Payload
		if len(payload) > 0 {
			if pl, ok := payload[0].(Payload); ok {
				p = pl
			}
		}
		run := func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.WithField("event", eventType).Errorf("event handler panic: %v", r)
				}
			}()
			handler(p)
		}
		if async {
			b.pool.Submit(run)
			return
		}
		run()
	}
	b.emitter.On(eventType.eventName(), wrapped)
}

// Publish emits eventType with payload to every subscriber. Sync
// subscribers run to completion before Publish returns; async
// subscribers are merely enqueued.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.emitter.Emit(eventType.eventName(), payload)
}

// Close drains the async-dispatch pool. Call during server shutdown.
func (b *Bus) Close() { b.pool.Close() }
