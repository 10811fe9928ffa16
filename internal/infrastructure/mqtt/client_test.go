package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/n2k-monitor/internal/infrastructure/config"
)

// testConfig returns a broker configuration. Unit tests in this file never
// dial it; see integration_test.go for broker-backed tests.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "n2kmonitor-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid QoS", "n2kmonitor/test", nil, 3, ErrInvalidQoS},
		{"oversized payload", "n2kmonitor/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "n2kmonitor/test", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := newClient(testConfig())

	err := c.PublishJSON("n2kmonitor/test", make(chan int), 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid QoS", "n2kmonitor/frame/+", 3, noop, ErrInvalidQoS},
		{"nil handler", "n2kmonitor/frame/+", 1, nil, ErrSubscribeFailed},
		{"not connected", "n2kmonitor/frame/+", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", c.SubscriptionCount())
	}
	if c.HasSubscription("n2kmonitor/frame/+") {
		t.Error("HasSubscription() = true for a rejected subscription")
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	c := newClient(testConfig())

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("n2kmonitor/frame/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Connection State Tests
// =============================================================================

func TestIsConnected_Unconnected(t *testing.T) {
	c := newClient(testConfig())
	if c.IsConnected() {
		t.Error("IsConnected() = true for an unconnected client")
	}
}

func TestHealthCheck(t *testing.T) {
	c := newClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseUnconnected(t *testing.T) {
	c := newClient(testConfig())
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDisconnectCallback(t *testing.T) {
	c := newClient(testConfig())
	c.connected = true

	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	lost := errors.New("broker went away")
	c.handleDisconnect(lost)

	if got != lost {
		t.Errorf("onDisconnect received %v, want %v", got, lost)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
	if len(logger.warns) != 1 {
		t.Errorf("expected one warning, got %v", logger.warns)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestWrapHandler_DeliversMessage(t *testing.T) {
	c := newClient(testConfig())

	var gotTopic string
	var gotPayload []byte
	wrapped := c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return nil
	})

	wrapped(nil, &fakeMessage{topic: "n2kmonitor/frame/gw-1", payload: []byte{0xA1}})

	if gotTopic != "n2kmonitor/frame/gw-1" {
		t.Errorf("topic = %q", gotTopic)
	}
	if len(gotPayload) != 1 || gotPayload[0] != 0xA1 {
		t.Errorf("payload = %x", gotPayload)
	}
}

func TestWrapHandler_LogsErrors(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(string, []byte) error {
		return errors.New("bad envelope")
	})
	wrapped(nil, &fakeMessage{topic: "n2kmonitor/frame/gw-1"})

	if len(logger.warns) != 1 || logger.warns[0] != "MQTT handler returned error" {
		t.Errorf("warns = %v", logger.warns)
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	wrapped(nil, &fakeMessage{topic: "n2kmonitor/frame/gw-1"})

	if len(logger.errors) != 1 || logger.errors[0] != "MQTT handler panic recovered" {
		t.Errorf("errors = %v", logger.errors)
	}
}

func TestWrapHandler_NoLogger(t *testing.T) {
	c := newClient(testConfig())

	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	// Must not propagate the panic.
	wrapped(nil, &fakeMessage{topic: "n2kmonitor/frame/gw-1"})
}

// =============================================================================
// Options & Payload Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "helm"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "n2kmonitor-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "helm" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "n2kmonitor-test")

	if !opts.WillEnabled || opts.WillTopic != "n2kmonitor/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var status statusPayload
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if status.Status != "offline" || status.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", status)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusPayload
	if err := json.Unmarshal(buildOnlinePayload("id-1"), &online); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(buildOfflinePayload("id-1"), &offline); err != nil {
		t.Fatal(err)
	}

	if online.Status != "online" || online.ClientID != "id-1" || online.Reason != "" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline = %+v", offline)
	}
	if !strings.HasSuffix(online.Timestamp, "Z") {
		t.Errorf("timestamp %q is not UTC RFC3339", online.Timestamp)
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Frame", topics.Frame("gw-helm"), "n2kmonitor/frame/gw-helm"},
		{"AllFrames", topics.AllFrames(), "n2kmonitor/frame/+"},
		{"Event", topics.Event(EventSourceChanged), "n2kmonitor/event/source_changed"},
		{"EventList", topics.Event(EventDeviceListChanged), "n2kmonitor/event/device_list_changed"},
		{"AllEvents", topics.AllEvents(), "n2kmonitor/event/+"},
		{"Device", topics.Device("C07882111121ABCD"), "n2kmonitor/device/C07882111121ABCD"},
		{"AllDevices", topics.AllDevices(), "n2kmonitor/device/+"},
		{"BridgeHealth", topics.BridgeHealth("canbus"), "n2kmonitor/health/canbus"},
		{"SystemStatus", topics.SystemStatus(), "n2kmonitor/system/status"},
		{"AllTopics", topics.AllTopics(), "n2kmonitor/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}
