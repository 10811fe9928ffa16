package canbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/n2k-monitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/mqtt"
)

const (
	// BridgeID names the bridge in health topics and messages.
	BridgeID = "canbus"

	defaultHealthInterval = 30 * time.Second

	// staleIntervals is how many health intervals may pass without a frame
	// before the bus is reported quiet.
	staleIntervals = 2
)

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// statsFunc returns the bridge counters and current device count.
type statsFunc func() (Statistics, int)

// HealthReporter publishes bridge health to MQTT at a fixed interval and
// records a bus_stats point on each tick.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	telemetry Telemetry
	stats     statsFunc
	now       func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version string

	// Interval is how often to publish health status. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Telemetry is optional.
	Telemetry Telemetry

	Stats  statsFunc
	Logger Logger
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	stats := cfg.Stats
	if stats == nil {
		stats = func() (Statistics, int) { return Statistics{}, 0 }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		telemetry: cfg.Telemetry,
		stats:     stats,
		now:       time.Now,
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status. Safe to call
// more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
			h.recordStats()
		}
	}
}

// determineStatus evaluates the bridge status. A bus with no frames for
// staleIntervals health intervals is degraded, as is a lost broker.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	stats, _ := h.stats()
	now := h.now()
	staleAfter := staleIntervals * h.interval

	if stats.LastFrame == nil {
		if now.Sub(h.startTime) > staleAfter {
			return HealthDegraded, "no frames received"
		}
		return HealthHealthy, ""
	}
	if now.Sub(*stats.LastFrame) > staleAfter {
		return HealthDegraded, "no frames since " + stats.LastFrame.UTC().Format(time.RFC3339)
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	stats, devices := h.stats()
	now := h.now()
	msg := HealthMessage{
		Bridge:        BridgeID,
		Timestamp:     now.UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Devices:       devices,
		Statistics:    stats,
		Reason:        reason,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.BridgeHealth(BridgeID), payload, 1, true)
}

func (h *HealthReporter) recordStats() {
	if h.telemetry == nil {
		return
	}
	stats, devices := h.stats()
	h.telemetry.WriteBusStats(influxdb.BusStats{
		Devices:        devices,
		FramesReceived: stats.FramesReceived,
		FramesDropped:  stats.FramesDropped,
		EventsDropped:  stats.EventsDropped,
		Time:           h.now(),
	})
}
