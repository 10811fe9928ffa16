// Package canbus bridges NMEA 2000 CAN gateways into the device registry.
//
// Gateways publish assembled frames to MQTT as compact CBOR envelopes. The
// bridge decodes each envelope, hands the frame to the registry, and fans
// the registry's events back out:
//
//	┌───────────┐  CBOR   ┌──────────┐        ┌──────────┐
//	│  gateway  │────────►│  bridge  │───────►│ registry │
//	└───────────┘  MQTT   └──────────┘◄───────└──────────┘
//	                        │  │  │     events
//	              MQTT ◄────┘  │  └────► InfluxDB
//	                      WebSocket
//
// # Envelopes
//
// An envelope carries either the raw 29-bit CAN identifier (key 1) or the
// decoded PGN (2) and source (4), with optional priority (3) and destination
// (5). Data is key 6 and the gateway timestamp in Unix microseconds is key 7.
// Duplicate keys and indefinite-length items are rejected.
//
// # Events
//
// Address claims that create or move a node are published on
// n2kmonitor/event/source_changed; identity and product changes on
// n2kmonitor/event/device_list_changed. A move goes to both, as does a
// claim that displaced another node. With
// retain_devices set, each node's snapshot is kept retained under
// n2kmonitor/device/{NAME}, and the snapshot of a displaced node is cleared.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package canbus
