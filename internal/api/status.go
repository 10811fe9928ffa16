package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/n2k-monitor/internal/bridges/canbus"
)

// SystemStatus is the /api/v1/status response.
type SystemStatus struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeStatus  `json:"runtime"`
	WebSocket     WSStatus       `json:"websocket"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Bridge        *BridgeSummary `json:"bridge,omitempty"`
	Devices       int            `json:"devices"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStatus contains WebSocket hub statistics.
type WSStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTStatus contains broker connectivity.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

// BridgeSummary contains frame bridge status and counters.
type BridgeSummary struct {
	Status     canbus.HealthStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Statistics canbus.Statistics   `json:"statistics"`
}

// handleStatus returns process, connectivity and bridge status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: s.registry.Count(),
	}

	if s.hub != nil {
		status.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		status.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.bridge != nil {
		health, reason := s.bridge.Status()
		status.Bridge = &BridgeSummary{
			Status:     health,
			Reason:     reason,
			Statistics: s.bridge.Stats(),
		}
	}

	writeJSON(w, http.StatusOK, status)
}
