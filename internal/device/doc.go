// Package device tracks the nodes on an NMEA 2000 bus.
//
// Every node announces a 64-bit NAME in an ISO Address Claim and may later
// claim a different bus address. The Registry keys nodes by their current
// address and follows them across address changes, so product and
// configuration data learnt at one address survive the move.
//
// # Architecture
//
//	  frames (any goroutine)
//	          │
//	          ▼
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Registry                              │
//	│                                                              │
//	│  byAddress  map[uint8]*Record     byName  map[uint64]*Record  │
//	│        │                                                     │
//	│        ▼                                                     │
//	│  ┌──────────────┐    ┌──────────────┐    ┌──────────────┐    │
//	│  │    Record    │    │   Identity   │    │    emitter   │    │
//	│  │ (record.go)  │    │(identity.go) │    │ (events.go)  │    │
//	│  │ • own lock   │    │ • NAME split │    │ • Seq order  │    │
//	│  │ • raw dirty  │    │ • payload    │    │ • non-block  │    │
//	│  │   checks     │    │   builder    │    │   fan-out    │    │
//	│  └──────────────┘    └──────────────┘    └──────────────┘    │
//	└──────────────────────────────────────────────────────────────┘
//	          │                                   │
//	          ▼                                   ▼
//	   Snapshot / Find*                   Subscribe(buffer)
//
// # Lifecycle
//
// A node is unknown until its first address claim creates a record. Product
// and configuration frames from unknown addresses are dropped. A claim of a
// new address by a known NAME re-keys the record (EventRebound); a claim of
// an occupied address by a different NAME displaces the occupant.
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//	reg.SetLabeler(tables)
//
//	events, cancel := reg.Subscribe(64)
//	defer cancel()
//
//	reg.OnFrame(frame) // from any goroutine
//
//	for ev := range events {
//	    if ev.DeviceListChanged() {
//	        refresh(reg.List())
//	    }
//	}
//
//	dev, ok := reg.FindByRule("ID:00A3F2C01B000001")
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Its lock is always taken before a
// Record's lock; events are delivered once record locks are released.
package device
