// Package metrics exposes Prometheus metrics for the frame bridge and the
// device registry.
//
// Each Metrics value owns its own registry so tests and multiple instances
// never collide on the global default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "n2kmonitor"

// Drop reasons for FramesDropped.
const (
	ReasonDecode  = "decode"
	ReasonInvalid = "invalid"
)

// Metrics holds all Prometheus metrics for the monitor. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Frames accepted from gateways, by PGN.
	FramesReceived *prometheus.CounterVec

	// Frames rejected before reaching the registry, by reason.
	FramesDropped *prometheus.CounterVec

	// Registry events fanned out, by kind.
	Events *prometheus.CounterVec

	// Failed fan-out deliveries, by target (mqtt, websocket).
	PublishFailures *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "NMEA 2000 frames received from gateways by PGN",
		}, []string{"pgn"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before reaching the registry by reason",
		}, []string{"reason"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_events_total",
			Help:      "Device registry events by kind",
		}, []string{"kind"}),
		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed event deliveries by target",
		}, []string{"target"}),
	}
}

// RegistrySource reports live registry figures for the gauge functions.
type RegistrySource interface {
	Count() int
	EventsDropped() uint64
}

// ObserveRegistry registers gauges sampled from src at scrape time.
func (m *Metrics) ObserveRegistry(src RegistrySource) {
	if m == nil {
		return
	}
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "devices",
		Help:      "Devices currently known to the registry",
	}, func() float64 { return float64(src.Count()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_events_dropped_total",
		Help:      "Registry events dropped because a subscriber was full",
	}, func() float64 { return float64(src.EventsDropped()) })
}

// IncFrameReceived counts an accepted frame.
func (m *Metrics) IncFrameReceived(pgn string) {
	if m != nil {
		m.FramesReceived.WithLabelValues(pgn).Inc()
	}
}

// IncFrameDropped counts a rejected frame.
func (m *Metrics) IncFrameDropped(reason string) {
	if m != nil {
		m.FramesDropped.WithLabelValues(reason).Inc()
	}
}

// IncEvent counts a registry event.
func (m *Metrics) IncEvent(kind string) {
	if m != nil {
		m.Events.WithLabelValues(kind).Inc()
	}
}

// IncPublishFailure counts a failed delivery.
func (m *Metrics) IncPublishFailure(target string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(target).Inc()
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
