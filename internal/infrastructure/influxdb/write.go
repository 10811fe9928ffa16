package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the monitor.
const (
	MeasurementDeviceEvents = "device_events"
	MeasurementBusStats     = "bus_stats"
)

// DeviceEvent is a registry change recorded as a point. Name is the 64-bit
// NAME in hex; labels are optional.
type DeviceEvent struct {
	Seq             uint64
	Kind            string
	Name            string
	Address         uint8
	PreviousAddress uint8
	Displaced       bool
	Manufacturer    string
	Class           string
	Time            time.Time
}

// BusStats is a periodic summary of bridge and registry counters.
type BusStats struct {
	Devices        int
	FramesReceived uint64
	FramesDropped  uint64
	EventsDropped  uint64
	Time           time.Time
}

func newDeviceEventPoint(ev DeviceEvent) *write.Point {
	tags := map[string]string{
		"kind": ev.Kind,
		"name": ev.Name,
	}
	if ev.Manufacturer != "" {
		tags["manufacturer"] = ev.Manufacturer
	}
	if ev.Class != "" {
		tags["class"] = ev.Class
	}

	fields := map[string]any{
		"seq":       int64(ev.Seq), //nolint:gosec // sequence numbers stay far below MaxInt64
		"address":   int64(ev.Address),
		"displaced": ev.Displaced,
	}
	if ev.Kind == "rebound" {
		fields["previous_address"] = int64(ev.PreviousAddress)
	}

	return write.NewPoint(MeasurementDeviceEvents, tags, fields, timestampOrNow(ev.Time))
}

func newBusStatsPoint(s BusStats) *write.Point {
	return write.NewPoint(
		MeasurementBusStats,
		nil,
		map[string]any{
			"devices":         int64(s.Devices),
			"frames_received": int64(s.FramesReceived), //nolint:gosec // counters
			"frames_dropped":  int64(s.FramesDropped),  //nolint:gosec // counters
			"events_dropped":  int64(s.EventsDropped),  //nolint:gosec // counters
		},
		timestampOrNow(s.Time),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// WriteDeviceEvent records a registry event. The write is non-blocking.
//
// Example:
//
//	client.WriteDeviceEvent(influxdb.DeviceEvent{
//	    Kind: "rebound", Name: "C07882111121ABCD", Address: 9, PreviousAddress: 5,
//	})
func (c *Client) WriteDeviceEvent(ev DeviceEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newDeviceEventPoint(ev))
}

// WriteBusStats records a counter snapshot. The write is non-blocking.
func (c *Client) WriteBusStats(s BusStats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newBusStatsPoint(s))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
