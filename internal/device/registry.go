package device

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

// maxAddress is the highest address a record can be keyed under.
const maxAddress = n2k.MaxUnicastAddress

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks the nodes seen on the bus, keyed by their current address.
//
// Nodes enter the registry through an address claim and are re-keyed, never
// recreated, when they claim a different address. A record leaves only when
// another NAME claims its address.
//
// All public methods are thread-safe. The registry lock is always taken
// before a record lock, and events are delivered after record locks are
// released.
type Registry struct {
	mu        sync.RWMutex
	byAddress map[uint8]*Record
	byName    map[uint64]*Record

	events  *emitter
	labeler Labeler
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddress: make(map[uint8]*Record),
		byName:    make(map[uint64]*Record),
		events:    newEmitter(),
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the registry. Call before frames arrive.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetLabeler attaches the resolver used to label snapshots. Call before
// frames arrive.
func (r *Registry) SetLabeler(l Labeler) {
	r.labeler = l
}

// Subscribe returns a channel receiving every event in sequence order, and a
// function that unsubscribes and closes the channel. Delivery never blocks
// the registry: events that do not fit in the buffer are dropped for that
// subscriber.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	return r.events.subscribe(buffer)
}

// OnFrame applies one frame and returns the events it caused, which are also
// delivered to subscribers.
//
// Frames of other PGNs, and frames from the null or global address, are
// ignored. Product and configuration frames from an address that never
// claimed are dropped: a node must announce its identity first.
func (r *Registry) OnFrame(f n2k.Frame) []Event {
	switch f.PGN {
	case n2k.PGNISOAddressClaim, n2k.PGNProductInformation, n2k.PGNConfigurationInformation:
	default:
		return nil
	}
	if err := f.Validate(); err != nil {
		r.logger.Debug("dropping frame", "pgn", uint32(f.PGN), "error", err)
		return nil
	}

	if f.PGN == n2k.PGNISOAddressClaim {
		return r.claim(f)
	}
	return r.update(f)
}

// update applies a product or configuration frame to an existing record.
func (r *Registry) update(f n2k.Frame) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byAddress[f.Source]
	if !ok {
		return nil
	}
	if !rec.Apply(f) {
		return nil
	}

	events := []Event{{
		Kind:    EventUpdated,
		Address: f.Source,
		Name:    rec.Name(),
		Time:    r.eventTime(f),
	}}
	r.events.emit(events)
	return events
}

// claim handles an address claim: an update of the node already at the
// address, a known node moving here, or a new node.
func (r *Registry) claim(f n2k.Frame) []Event {
	name, ok := ParseName(f.Data)
	if !ok {
		r.logger.Debug("dropping short address claim", "source", f.Source, "length", len(f.Data))
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	occupant := r.byAddress[f.Source]
	if occupant != nil && occupant.Name() == name {
		// Same node re-announcing; only the timestamp can move.
		occupant.Apply(f)
		return nil
	}

	var displaced uint64
	if occupant != nil {
		displaced = occupant.Name()
		delete(r.byName, displaced)
		delete(r.byAddress, f.Source)
	}

	var events []Event
	if rec, known := r.byName[name]; known {
		previous := rec.Address()
		delete(r.byAddress, previous)
		r.byAddress[f.Source] = rec
		rec.rebind(f.Source)
		rec.Apply(f)

		r.logger.Info("device moved",
			"name", FormatName(name),
			"from", previous,
			"to", f.Source,
		)
		events = append(events, Event{
			Kind:            EventRebound,
			Address:         f.Source,
			PreviousAddress: previous,
			Name:            name,
		})
	} else {
		rec := newRecord(f.Source)
		rec.Apply(f)
		r.byAddress[f.Source] = rec
		r.byName[name] = rec

		r.logger.Info("device discovered",
			"name", FormatName(name),
			"address", f.Source,
		)
		events = append(events, Event{
			Kind:    EventCreated,
			Address: f.Source,
			Name:    name,
		})
	}

	if occupant != nil {
		r.logger.Info("device displaced",
			"name", FormatName(displaced),
			"address", f.Source,
			"by", FormatName(name),
		)
		events[0].DisplacedName = displaced
		events[0].Displaced = true
	}
	events[0].Time = r.eventTime(f)

	r.events.emit(events)
	return events
}

func (r *Registry) eventTime(f n2k.Frame) time.Time {
	if !f.Timestamp.IsZero() {
		return f.Timestamp
	}
	return r.now()
}

// Snapshot returns a copy of every record keyed by address.
func (r *Registry) Snapshot() map[uint8]Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uint8]Device, len(r.byAddress))
	for addr, rec := range r.byAddress {
		out[addr] = r.describe(rec)
	}
	return out
}

// List returns a copy of every record ordered by address.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.byAddress))
	for _, rec := range r.byAddress {
		out = append(out, r.describe(rec))
	}
	slices.SortFunc(out, func(a, b Device) int { return int(a.Address) - int(b.Address) })
	return out
}

// FindByAddress returns the node currently at address.
func (r *Registry) FindByAddress(address uint8) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byAddress[address]
	if !ok {
		return Device{}, false
	}
	return r.describe(rec), true
}

// FindByName returns the node with the given NAME, wherever it is.
func (r *Registry) FindByName(name uint64) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byName[name]
	if !ok {
		return Device{}, false
	}
	return r.describe(rec), true
}

// FindByRule resolves a lookup rule (see ParseRule). Malformed rules find
// nothing.
func (r *Registry) FindByRule(rule string) (Device, bool) {
	d, err := r.Lookup(rule)
	return d, err == nil
}

// Count returns the number of tracked nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddress)
}

// EventsDropped returns how many event deliveries were dropped because a
// subscriber's buffer was full.
func (r *Registry) EventsDropped() uint64 {
	_, dropped, _ := r.events.counts()
	return dropped
}

// Stats summarises the registry contents and event delivery.
func (r *Registry) Stats() Stats {
	devices := r.List()

	s := Stats{
		Devices:        len(devices),
		ByManufacturer: make(map[string]int),
		ByClass:        make(map[string]int),
	}
	for _, d := range devices {
		manufacturer := strconv.Itoa(int(d.Identity.ManufacturerCode))
		class := strconv.Itoa(int(d.Identity.DeviceClass))
		if d.Labels != nil {
			manufacturer, class = d.Labels.Manufacturer, d.Labels.Class
		}
		s.ByManufacturer[manufacturer]++
		s.ByClass[class]++
	}
	s.EventsEmitted, s.EventsDropped, s.Subscribers = r.events.counts()
	return s
}

// describe snapshots rec and attaches labels. The caller holds r.mu.
func (r *Registry) describe(rec *Record) Device {
	d := rec.Snapshot()
	if r.labeler != nil {
		d.Labels = &Labels{
			Manufacturer: r.labeler.Manufacturer(d.Identity.ManufacturerCode),
			Class:        r.labeler.Class(d.Identity.DeviceClass),
			Function:     r.labeler.Function(d.Identity.DeviceClass, d.Identity.DeviceFunction),
		}
	}
	return d
}
