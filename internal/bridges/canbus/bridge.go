package canbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/n2k-monitor/internal/device"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/config"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/metrics"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

// Bridge feeds frames from CAN gateways into the device registry and fans
// the resulting events out to MQTT, WebSocket clients and telemetry.
//
// Frames are applied on the MQTT delivery goroutine, so the registry sees
// them in arrival order. Events are dispatched from a single consumer
// goroutine in sequence order.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       config.CANBusConfig
	qos       byte
	version   string
	mqtt      MQTTClient
	registry  Registry
	broadcast Broadcaster
	telemetry Telemetry
	metrics   *metrics.Metrics
	health    *HealthReporter
	topics    mqtt.Topics
	now       func() time.Time

	framesReceived  atomic.Uint64
	framesDropped   atomic.Uint64
	eventsPublished atomic.Uint64
	publishFailures atomic.Uint64
	lastFrame       atomic.Int64 // unix nanoseconds, zero before the first frame

	unsubscribe func()

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// MQTTClient is the subset of MQTT operations the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// Registry is the device registry the bridge feeds. *device.Registry
// satisfies it.
type Registry interface {
	OnFrame(f n2k.Frame) []device.Event
	Subscribe(buffer int) (<-chan device.Event, func())
	FindByName(name uint64) (device.Device, bool)
	Count() int
	EventsDropped() uint64
}

// Broadcaster pushes messages to WebSocket subscribers. Optional.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Telemetry records events and bus statistics. Optional.
type Telemetry interface {
	WriteDeviceEvent(ev influxdb.DeviceEvent)
	WriteBusStats(s influxdb.BusStats)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Config  config.CANBusConfig
	Version string

	// MQTTClient and Registry are required.
	MQTTClient MQTTClient
	Registry   Registry

	// Broadcaster, Telemetry, Metrics and Logger are optional.
	Broadcaster Broadcaster
	Telemetry   Telemetry
	Metrics     *metrics.Metrics
	Logger      Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidOptions)
	}
	if opts.Config.FrameTopic == "" {
		return nil, fmt.Errorf("%w: frame topic is required", ErrInvalidOptions)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &Bridge{
		cfg:       opts.Config,
		qos:       byte(opts.Config.QoS), //nolint:gosec // validated to 0-2 by config
		version:   opts.Version,
		mqtt:      opts.MQTTClient,
		registry:  opts.Registry,
		broadcast: opts.Broadcaster,
		telemetry: opts.Telemetry,
		metrics:   opts.Metrics,
		now:       time.Now,
		done:      make(chan struct{}),
		logger:    logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  time.Duration(opts.Config.HealthInterval) * time.Second,
		Publisher: opts.MQTTClient,
		Telemetry: opts.Telemetry,
		Stats:     b.healthStats,
		Logger:    logger,
	})

	return b, nil
}

// Start subscribes to registry events and the gateway frame topic, then
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	buffer := b.cfg.EventBuffer
	if buffer < 1 {
		buffer = 1
	}
	events, unsubscribe := b.registry.Subscribe(buffer)
	b.unsubscribe = unsubscribe

	b.wg.Add(1)
	go b.consumeEvents(events)

	if err := b.mqtt.Subscribe(b.cfg.FrameTopic, b.qos, b.handleFrameMessage); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to frames: %w", err)
	}
	b.logger.Info("subscribed to frames", "topic", b.cfg.FrameTopic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logger.Error("failed to publish health", "error", err)
	}

	b.logger.Info("bridge started", "bridge_id", BridgeID, "devices", b.registry.Count())
	return nil
}

// Stop shuts the bridge down. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.health.Stop()
		b.wg.Wait()

		b.logger.Info("bridge stopped")
	})
}

// handleFrameMessage decodes one gateway message and applies it.
func (b *Bridge) handleFrameMessage(topic string, payload []byte) {
	f, err := DecodeFrame(payload, b.now())
	if err != nil {
		b.dropFrame(metrics.ReasonDecode)
		b.logger.Debug("dropping undecodable frame", "topic", topic, "error", err)
		return
	}
	b.HandleFrame(f)
}

// HandleFrame applies a decoded frame to the registry. Frames without a
// usable source address are counted and dropped.
func (b *Bridge) HandleFrame(f n2k.Frame) {
	if err := f.Validate(); err != nil {
		b.dropFrame(metrics.ReasonInvalid)
		b.logger.Debug("dropping frame", "frame", f.String(), "error", err)
		return
	}

	b.framesReceived.Add(1)
	b.lastFrame.Store(b.now().UnixNano())
	b.metrics.IncFrameReceived(strconv.FormatUint(uint64(f.PGN), 10))

	b.registry.OnFrame(f)
}

func (b *Bridge) dropFrame(reason string) {
	b.framesDropped.Add(1)
	b.metrics.IncFrameDropped(reason)
}

func (b *Bridge) consumeEvents(events <-chan device.Event) {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.dispatch(ev)
		}
	}
}

// dispatch fans one registry event out to every sink.
func (b *Bridge) dispatch(ev device.Event) {
	b.metrics.IncEvent(ev.Kind.String())

	var snapshot *device.Device
	if d, ok := b.registry.FindByName(ev.Name); ok {
		snapshot = &d
	}
	msg := NewEventMessage(ev, snapshot)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to encode event", "seq", ev.Seq, "error", err)
		return
	}

	if ev.SourceChanged() {
		b.publish(b.topics.Event(mqtt.EventSourceChanged), payload, false)
		b.broadcastMessage(ChannelSourceChanged, msg)
	}
	if ev.DeviceListChanged() {
		b.publish(b.topics.Event(mqtt.EventDeviceListChanged), payload, false)
		b.broadcastMessage(ChannelListChanged, msg)
	}

	if b.cfg.RetainDevices {
		if snapshot != nil {
			b.publishSnapshot(*snapshot)
		}
		if ev.Displaced {
			// An empty retained message clears the departed node's snapshot.
			b.publish(b.topics.Device(device.FormatName(ev.DisplacedName)), nil, true)
		}
	}

	b.eventsPublished.Add(1)
	b.record(ev, snapshot)
}

func (b *Bridge) publishSnapshot(d device.Device) {
	payload, err := json.Marshal(d)
	if err != nil {
		b.logger.Error("failed to encode device", "name", d.Name, "error", err)
		return
	}
	b.publish(b.topics.Device(d.Name), payload, true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.publishFailures.Add(1)
		b.metrics.IncPublishFailure("mqtt")
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) broadcastMessage(channel string, msg EventMessage) {
	if b.broadcast == nil {
		return
	}
	b.broadcast.Broadcast(channel, msg)
}

func (b *Bridge) record(ev device.Event, snapshot *device.Device) {
	if b.telemetry == nil {
		return
	}
	point := influxdb.DeviceEvent{
		Seq:             ev.Seq,
		Kind:            ev.Kind.String(),
		Name:            device.FormatName(ev.Name),
		Address:         ev.Address,
		PreviousAddress: ev.PreviousAddress,
		Displaced:       ev.Displaced,
		Time:            ev.Time,
	}
	if snapshot != nil && snapshot.Labels != nil {
		point.Manufacturer = snapshot.Labels.Manufacturer
		point.Class = snapshot.Labels.Class
	}
	b.telemetry.WriteDeviceEvent(point)
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() Statistics {
	s := Statistics{
		FramesReceived:  b.framesReceived.Load(),
		FramesDropped:   b.framesDropped.Load(),
		EventsPublished: b.eventsPublished.Load(),
		EventsDropped:   b.registry.EventsDropped(),
		PublishFailures: b.publishFailures.Load(),
	}
	if ns := b.lastFrame.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.LastFrame = &t
	}
	return s
}

// Status returns the current health evaluation, for status endpoints.
func (b *Bridge) Status() (HealthStatus, string) {
	return b.health.determineStatus()
}

func (b *Bridge) healthStats() (Statistics, int) {
	return b.Stats(), b.registry.Count()
}
