package mqtt

import "fmt"

// TopicPrefix is the root of every topic the monitor publishes or consumes.
//
// Layout:
//
//	n2kmonitor/frame/{gateway}       CBOR frame envelopes from CAN gateways
//	n2kmonitor/event/{kind}          registry events (JSON)
//	n2kmonitor/device/{name}         retained device snapshots keyed by NAME
//	n2kmonitor/health/{bridge}       bridge health (retained)
//	n2kmonitor/system/status         monitor online/offline (retained, LWT)
const TopicPrefix = "n2kmonitor"

// Event kinds published under n2kmonitor/event/.
const (
	EventSourceChanged     = "source_changed"
	EventDeviceListChanged = "device_list_changed"
)

// Topics provides builders for the monitor's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Device("C07882111121ABCD")
//	// Returns: "n2kmonitor/device/C07882111121ABCD"
type Topics struct{}

// Frame returns the topic a gateway publishes frames on.
//
// Example: n2kmonitor/frame/gw-helm
func (Topics) Frame(gateway string) string {
	return fmt.Sprintf("%s/frame/%s", TopicPrefix, gateway)
}

// AllFrames returns a pattern matching frames from every gateway.
//
// Pattern: n2kmonitor/frame/+
func (Topics) AllFrames() string {
	return TopicPrefix + "/frame/+"
}

// Event returns the topic for a registry event kind.
//
// Example: n2kmonitor/event/source_changed
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, kind)
}

// AllEvents returns a pattern matching every registry event.
//
// Pattern: n2kmonitor/event/+
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+"
}

// Device returns the retained snapshot topic for a device NAME in hex.
//
// Example: n2kmonitor/device/C07882111121ABCD
func (Topics) Device(name string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefix, name)
}

// AllDevices returns a pattern matching every device snapshot.
//
// Pattern: n2kmonitor/device/+
func (Topics) AllDevices() string {
	return TopicPrefix + "/device/+"
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: n2kmonitor/health/canbus
func (Topics) BridgeHealth(bridge string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridge)
}

// SystemStatus returns the monitor status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllTopics returns a pattern matching all monitor topics.
//
// Pattern: n2kmonitor/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
