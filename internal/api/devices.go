package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/n2k-monitor/internal/device"
)

// handleListDevices returns all devices ordered by address, with optional
// query filters.
//
// Query parameters:
//   - manufacturer: manufacturer label or numeric code
//   - class: device class label or numeric code
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()

	manufacturer := r.URL.Query().Get("manufacturer")
	class := r.URL.Query().Get("class")
	if manufacturer != "" || class != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if manufacturer != "" && !matchesManufacturer(d, manufacturer) {
				continue
			}
			if class != "" && !matchesClass(d, class) {
				continue
			}
			filtered = append(filtered, d)
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice resolves a lookup rule: a bus address ("9") or a NAME
// ("ID:C07882111121ABCD").
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rule, err := url.PathUnescape(chi.URLParam(r, "rule"))
	if err != nil {
		writeBadRequest(w, "invalid lookup rule")
		return
	}

	d, err := s.registry.Lookup(rule)
	switch {
	case errors.Is(err, device.ErrInvalidRule):
		writeBadRequest(w, "lookup rule must be an address or ID:<NAME>")
		return
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
		return
	case err != nil:
		writeInternalError(w, "failed to look up device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleDeviceStats returns registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func matchesManufacturer(d device.Device, want string) bool {
	if d.Labels != nil && strings.EqualFold(d.Labels.Manufacturer, want) {
		return true
	}
	return want == strconv.Itoa(int(d.Identity.ManufacturerCode))
}

func matchesClass(d device.Device, want string) bool {
	if d.Labels != nil && strings.EqualFold(d.Labels.Class, want) {
		return true
	}
	return want == strconv.Itoa(int(d.Identity.DeviceClass))
}
