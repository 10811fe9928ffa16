package canbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/n2k-monitor/internal/device"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/config"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/metrics"
	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

const testFrameTopic = "n2kmonitor/frame/+"

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]func(topic string, payload []byte)
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns the messages sent to topic, oldest first.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	channels []string
}

func (r *recordingBroadcaster) Broadcast(channel string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
}

func (r *recordingBroadcaster) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.channels...)
}

type recordingTelemetry struct {
	mu     sync.Mutex
	events []influxdb.DeviceEvent
	stats  []influxdb.BusStats
}

func (r *recordingTelemetry) WriteDeviceEvent(ev influxdb.DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingTelemetry) WriteBusStats(s influxdb.BusStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, s)
}

func (r *recordingTelemetry) Events() []influxdb.DeviceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]influxdb.DeviceEvent(nil), r.events...)
}

func testCANBusConfig() config.CANBusConfig {
	return config.CANBusConfig{
		Enabled:        true,
		FrameTopic:     testFrameTopic,
		QoS:            1,
		EventBuffer:    16,
		HealthInterval: 30,
		RetainDevices:  true,
	}
}

type bridgeFixture struct {
	bridge      *Bridge
	mqtt        *MockMQTTClient
	registry    *device.Registry
	broadcaster *recordingBroadcaster
	telemetry   *recordingTelemetry
	metrics     *metrics.Metrics
}

func startBridge(t *testing.T) *bridgeFixture {
	t.Helper()

	fx := &bridgeFixture{
		mqtt:        NewMockMQTTClient(),
		registry:    device.NewRegistry(),
		broadcaster: &recordingBroadcaster{},
		telemetry:   &recordingTelemetry{},
		metrics:     metrics.New(),
	}

	b, err := NewBridge(BridgeOptions{
		Config:      testCANBusConfig(),
		Version:     "test",
		MQTTClient:  fx.mqtt,
		Registry:    fx.registry,
		Broadcaster: fx.broadcaster,
		Telemetry:   fx.telemetry,
		Metrics:     fx.metrics,
	})
	require.NoError(t, err)
	fx.bridge = b

	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	return fx
}

func testIdentity(unique uint32) device.Identity {
	return device.Identity{
		UniqueNumber:            unique,
		ManufacturerCode:        137,
		DeviceFunction:          130,
		DeviceClass:             60,
		IndustryGroup:           4,
		ArbitraryAddressCapable: true,
	}
}

func nameOf(t *testing.T, id device.Identity) uint64 {
	t.Helper()
	name, ok := device.ParseName(id.Payload())
	require.True(t, ok)
	return name
}

// sendClaim publishes an address claim envelope through the mock broker.
func (fx *bridgeFixture) sendClaim(t *testing.T, src uint8, id device.Identity) {
	t.Helper()
	f := n2k.NewFrame(n2k.Header{
		PGN:         n2k.PGNISOAddressClaim,
		Priority:    6,
		Source:      src,
		Destination: n2k.AddressGlobal,
	}, id.Payload(), receivedAt)
	payload, err := EncodeFrame(f)
	require.NoError(t, err)
	fx.mqtt.SimulateMessage(testFrameTopic, payload)
}

func (fx *bridgeFixture) waitForPublished(t *testing.T, topic string, n int) []mockPublish {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(fx.mqtt.PublishedTo(topic)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d messages on %s", n, topic)
	return fx.mqtt.PublishedTo(topic)
}

func decodeEvent(t *testing.T, p mockPublish) EventMessage {
	t.Helper()
	var msg EventMessage
	require.NoError(t, json.Unmarshal(p.Payload, &msg))
	return msg
}

func TestNewBridge_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts BridgeOptions
	}{
		{"no MQTT client", BridgeOptions{Config: testCANBusConfig(), Registry: device.NewRegistry()}},
		{"no registry", BridgeOptions{Config: testCANBusConfig(), MQTTClient: NewMockMQTTClient()}},
		{"no frame topic", BridgeOptions{MQTTClient: NewMockMQTTClient(), Registry: device.NewRegistry()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBridge(tt.opts)
			require.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestBridge_StartPublishesHealth(t *testing.T) {
	fx := startBridge(t)

	published := fx.mqtt.PublishedTo("n2kmonitor/health/canbus")
	require.Len(t, published, 2)

	var starting, healthy HealthMessage
	require.NoError(t, json.Unmarshal(published[0].Payload, &starting))
	require.NoError(t, json.Unmarshal(published[1].Payload, &healthy))
	assert.Equal(t, HealthStarting, starting.Status)
	assert.Equal(t, HealthHealthy, healthy.Status)
	assert.Equal(t, "test", healthy.Version)
	assert.True(t, published[1].Retained)
	assert.Equal(t, byte(1), published[1].QoS)
}

func TestBridge_NewDevice(t *testing.T) {
	fx := startBridge(t)
	id := testIdentity(1001)
	name := nameOf(t, id)

	fx.sendClaim(t, 10, id)

	events := fx.waitForPublished(t, "n2kmonitor/event/source_changed", 1)
	msg := decodeEvent(t, events[0])
	assert.Equal(t, "created", msg.Kind)
	assert.Equal(t, device.FormatName(name), msg.Name)
	assert.Equal(t, uint8(10), msg.Address)
	assert.Nil(t, msg.PreviousAddress)
	assert.NotEmpty(t, msg.ID)
	require.NotNil(t, msg.Device)
	assert.Equal(t, uint8(10), msg.Device.Address)
	assert.False(t, events[0].Retained)

	snapshots := fx.waitForPublished(t, "n2kmonitor/device/"+device.FormatName(name), 1)
	assert.True(t, snapshots[0].Retained)

	// Creation refreshes sources but not the device list.
	assert.Empty(t, fx.mqtt.PublishedTo("n2kmonitor/event/device_list_changed"))
	assert.Equal(t, []string{ChannelSourceChanged}, fx.broadcaster.Channels())

	stats := fx.bridge.Stats()
	assert.Equal(t, uint64(1), stats.FramesReceived)
	assert.NotNil(t, stats.LastFrame)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.FramesReceived.WithLabelValues("60928")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Events.WithLabelValues("created")))
}

func TestBridge_ReboundDevice(t *testing.T) {
	fx := startBridge(t)
	id := testIdentity(1001)

	fx.sendClaim(t, 10, id)
	fx.waitForPublished(t, "n2kmonitor/event/source_changed", 1)

	fx.sendClaim(t, 20, id)

	sources := fx.waitForPublished(t, "n2kmonitor/event/source_changed", 2)
	lists := fx.waitForPublished(t, "n2kmonitor/event/device_list_changed", 1)

	moved := decodeEvent(t, sources[1])
	assert.Equal(t, "rebound", moved.Kind)
	assert.Equal(t, uint8(20), moved.Address)
	require.NotNil(t, moved.PreviousAddress)
	assert.Equal(t, uint8(10), *moved.PreviousAddress)
	assert.Equal(t, moved.Seq, decodeEvent(t, lists[0]).Seq)

	require.Eventually(t, func() bool { return len(fx.telemetry.Events()) == 2 }, 2*time.Second, 5*time.Millisecond)
	rebound := fx.telemetry.Events()[1]
	assert.Equal(t, "rebound", rebound.Kind)
	assert.Equal(t, uint8(10), rebound.PreviousAddress)
}

func TestBridge_DisplacedDeviceCleared(t *testing.T) {
	fx := startBridge(t)
	first := testIdentity(1001)
	second := testIdentity(2002)

	fx.sendClaim(t, 10, first)
	firstTopic := "n2kmonitor/device/" + device.FormatName(nameOf(t, first))
	fx.waitForPublished(t, firstTopic, 1)

	fx.sendClaim(t, 10, second)

	cleared := fx.waitForPublished(t, firstTopic, 2)
	assert.Empty(t, cleared[1].Payload)
	assert.True(t, cleared[1].Retained)

	events := fx.waitForPublished(t, "n2kmonitor/event/source_changed", 2)
	msg := decodeEvent(t, events[1])
	assert.Equal(t, "created", msg.Kind)
	assert.Equal(t, device.FormatName(nameOf(t, first)), msg.DisplacedName)
	assert.Equal(t, 1, fx.registry.Count())

	lists := fx.waitForPublished(t, "n2kmonitor/event/device_list_changed", 1)
	listMsg := decodeEvent(t, lists[0])
	assert.Equal(t, msg.Seq, listMsg.Seq)
	assert.Equal(t, msg.DisplacedName, listMsg.DisplacedName)
}

func TestBridge_DropsBadFrames(t *testing.T) {
	fx := startBridge(t)

	fx.mqtt.SimulateMessage(testFrameTopic, []byte{0xFF})
	fx.bridge.HandleFrame(n2k.NewFrame(n2k.Header{
		PGN:    n2k.PGNISOAddressClaim,
		Source: n2k.AddressNull,
	}, testIdentity(1).Payload(), receivedAt))

	stats := fx.bridge.Stats()
	assert.Equal(t, uint64(2), stats.FramesDropped)
	assert.Zero(t, stats.FramesReceived)
	assert.Nil(t, stats.LastFrame)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.FramesDropped.WithLabelValues(metrics.ReasonDecode)))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalid)))
	assert.Zero(t, fx.registry.Count())
}

func TestBridge_PublishFailuresCounted(t *testing.T) {
	fx := startBridge(t)
	fx.mqtt.mu.Lock()
	fx.mqtt.publishErr = errors.New("broker gone")
	fx.mqtt.mu.Unlock()

	fx.sendClaim(t, 10, testIdentity(1001))

	// One event publish plus one retained snapshot.
	require.Eventually(t, func() bool {
		return fx.bridge.Stats().PublishFailures == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.PublishFailures.WithLabelValues("mqtt")))
}

func TestBridge_StopIsIdempotent(t *testing.T) {
	fx := startBridge(t)

	fx.bridge.Stop()
	fx.bridge.Stop()

	published := fx.mqtt.PublishedTo("n2kmonitor/health/canbus")
	var last HealthMessage
	require.NoError(t, json.Unmarshal(published[len(published)-1].Payload, &last))
	assert.Equal(t, HealthStopping, last.Status)
}

func TestBridge_NilOptionalSinks(t *testing.T) {
	mock := NewMockMQTTClient()
	b, err := NewBridge(BridgeOptions{
		Config:     testCANBusConfig(),
		MQTTClient: mock,
		Registry:   device.NewRegistry(),
	})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	f := n2k.NewFrame(n2k.Header{PGN: n2k.PGNISOAddressClaim, Priority: 6, Source: 3, Destination: 255}, testIdentity(7).Payload(), receivedAt)
	b.HandleFrame(f)

	require.Eventually(t, func() bool {
		return b.Stats().EventsPublished == 1
	}, 2*time.Second, 5*time.Millisecond)
}
