package device

import (
	"sync"
	"time"
)

// EventKind says what a registry change did.
type EventKind uint8

// Event kinds.
const (
	// EventCreated is a node claiming an address for the first time.
	EventCreated EventKind = iota + 1

	// EventRebound is a known node moving to a new address.
	EventRebound

	// EventUpdated is a change to a node's identity, product or configuration data.
	EventUpdated
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventRebound:
		return "rebound"
	case EventUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Event describes one registry change. Seq increases by one per event in the
// order the registry applied the changes.
type Event struct {
	Seq             uint64    `json:"seq"`
	Kind            EventKind `json:"-"`
	KindName        string    `json:"kind"`
	Address         uint8     `json:"address"`
	PreviousAddress uint8     `json:"previous_address,omitempty"`
	Name            uint64    `json:"-"`
	DisplacedName   uint64    `json:"-"`
	Displaced       bool      `json:"displaced,omitempty"`
	Time            time.Time `json:"time"`
}

// SourceChanged reports whether the event changed an identity to address
// mapping. New nodes count: creation implies a list refresh.
func (e Event) SourceChanged() bool {
	return e.Kind == EventCreated || e.Kind == EventRebound
}

// DeviceListChanged reports whether subscribers should re-read the device
// list. Plain creation does not raise it; a claim that displaced another
// node does, since that node has left the list.
func (e Event) DeviceListChanged() bool {
	return e.Kind == EventRebound || e.Kind == EventUpdated || e.Displaced
}

// emitter numbers events and fans them out to subscriber channels without
// blocking. A subscriber whose buffer is full misses the event.
type emitter struct {
	mu      sync.Mutex
	seq     uint64
	nextID  int
	subs    map[int]chan Event
	dropped uint64
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[int]chan Event)}
}

// emit assigns sequence numbers to events in place and delivers them.
func (e *emitter) emit(events []Event) {
	if len(events) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range events {
		e.seq++
		events[i].Seq = e.seq
		events[i].KindName = events[i].Kind.String()
		for _, ch := range e.subs {
			select {
			case ch <- events[i]:
			default:
				e.dropped++
			}
		}
	}
}

func (e *emitter) subscribe(buffer int) (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	ch := make(chan Event, max(buffer, 0))
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (e *emitter) counts() (emitted, dropped uint64, subscribers int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq, e.dropped, len(e.subs)
}
