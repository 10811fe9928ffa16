package canbus

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/n2k-monitor/internal/device"
)

// WebSocket channels the bridge broadcasts on.
const (
	ChannelListChanged   = "device.list_changed"
	ChannelSourceChanged = "device.source_changed"
)

// EventMessage is published for each registry event.
// Topic: n2kmonitor/event/{source_changed|device_list_changed}
// QoS: configured, Retained: No
type EventMessage struct {
	// ID uniquely identifies this publication.
	ID string `json:"id"`

	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Name is the 64-bit NAME in hex.
	Name            string `json:"name"`
	Address         uint8  `json:"address"`
	PreviousAddress *uint8 `json:"previous_address,omitempty"`

	// DisplacedName is set when the claim removed another node.
	DisplacedName string `json:"displaced_name,omitempty"`

	// Device is the node snapshot at dispatch time, when still present.
	Device *device.Device `json:"device,omitempty"`
}

// NewEventMessage builds the publication for ev.
func NewEventMessage(ev device.Event, snapshot *device.Device) EventMessage {
	msg := EventMessage{
		ID:        uuid.NewString(),
		Seq:       ev.Seq,
		Kind:      ev.Kind.String(),
		Timestamp: ev.Time.UTC(),
		Name:      device.FormatName(ev.Name),
		Address:   ev.Address,
		Device:    snapshot,
	}
	if ev.Kind == device.EventRebound {
		prev := ev.PreviousAddress
		msg.PreviousAddress = &prev
	}
	if ev.Displaced {
		msg.DisplacedName = device.FormatName(ev.DisplacedName)
	}
	return msg
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates frames are flowing and MQTT is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: n2kmonitor/health/canbus
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Devices       int          `json:"devices"`
	Statistics    Statistics   `json:"statistics"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// Statistics contains bridge counters.
type Statistics struct {
	FramesReceived  uint64     `json:"frames_received"`
	FramesDropped   uint64     `json:"frames_dropped"`
	EventsPublished uint64     `json:"events_published"`
	EventsDropped   uint64     `json:"events_dropped"`
	PublishFailures uint64     `json:"publish_failures"`
	LastFrame       *time.Time `json:"last_frame,omitempty"`
}
