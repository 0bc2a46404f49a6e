package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/wemo-gateway/internal/device"
)

// DeviceResponse is one registry entry as served by the API.
type DeviceResponse struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Port         int    `json:"port"`
	PowerState   int    `json:"power_state"`
	Power        string `json:"power"`
	DiscoveredAt string `json:"discovered_at"`
	UpdatedAt    string `json:"updated_at"`
}

// DiscoverRequest is the body of POST /api/v1/devices/discover.
type DiscoverRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func newDeviceResponse(h device.Handle) DeviceResponse {
	return DeviceResponse{
		Name:         h.Name,
		Address:      h.Address,
		Port:         h.Port,
		PowerState:   h.PowerState,
		Power:        powerLabel(h.PowerState),
		DiscoveredAt: h.DiscoveredAt.UTC().Format(time.RFC3339),
		UpdatedAt:    h.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func powerLabel(state int) string {
	switch state {
	case device.PowerOn:
		return "on"
	case device.PowerOff:
		return "off"
	case device.PowerUnknown:
		return "unknown"
	default:
		return "other"
	}
}

// handleListDevices returns every registry entry in discovery order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	handles := s.registry.Devices()
	devices := make([]DeviceResponse, 0, len(handles))
	for _, h := range handles {
		devices = append(devices, newDeviceResponse(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice resolves {name} the way commands do: first entry whose
// name contains it.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h, err := s.registry.Resolve(name)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "no device matches "+name)
			return
		}
		writeInternalError(w, "resolving device")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(h))
}

// handleDiscoverDevice probes an address and records the device.
func (s *Server) handleDiscoverDevice(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" || req.Address == "" {
		writeBadRequest(w, "name and address are required")
		return
	}

	subject := ""
	if claims, ok := claimsFrom(r.Context()); ok {
		subject = claims.Subject
	}

	h, err := s.registry.Discover(r.Context(), req.Name, req.Address)
	if err != nil {
		s.logger.Info("api discovery failed", "name", req.Name, "address", req.Address, "by", subject, "error", err)
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, err.Error())
			return
		}
		writeInternalError(w, "discovery failed")
		return
	}

	s.logger.Info("api discovery", "name", h.Name, "address", h.Address, "by", subject)
	writeJSON(w, http.StatusOK, newDeviceResponse(h))
}
