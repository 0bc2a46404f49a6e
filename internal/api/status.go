package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthCheckTimeout bounds each component check made by /status.
const healthCheckTimeout = 2 * time.Second

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Timestamp     string                     `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Gateway       GatewayStatus              `json:"gateway"`
	Devices       int                        `json:"devices"`
	WebSocket     WSStatus                   `json:"websocket"`
	Components    map[string]ComponentStatus `json:"components"`
	Runtime       RuntimeStatus              `json:"runtime"`
}

// GatewayStatus reports the dispatcher's process-wide state.
type GatewayStatus struct {
	LocalPort     string `json:"local_port"`
	Running       bool   `json:"running"`
	LastRef       string `json:"last_ref,omitempty"`
	LastHeartbeat string `json:"last_heartbeat,omitempty"`
	ShutdownAt    string `json:"shutdown_at,omitempty"`
}

// WSStatus contains WebSocket hub statistics.
type WSStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

// ComponentStatus is the health of one infrastructure dependency.
type ComponentStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collectStatus(r.Context()))
}

func (s *Server) collectStatus(ctx context.Context) StatusResponse {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Gateway: GatewayStatus{
			LocalPort: s.gateway.LocalPort(),
			Running:   s.gateway.Running(),
		},
		Devices:    len(s.registry.Devices()),
		Components: make(map[string]ComponentStatus, len(s.checks)),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / (1 << 20),
			NumGC:         mem.NumGC,
		},
	}

	if ref, ok := s.gateway.LastRef(); ok {
		resp.Gateway.LastRef = ref
	}
	if t := s.gateway.LastHeartbeat(); !t.IsZero() {
		resp.Gateway.LastHeartbeat = t.UTC().Format(time.RFC3339)
	}
	if t := s.gateway.ShutdownAt(); !t.IsZero() {
		resp.Gateway.ShutdownAt = t.UTC().Format(time.RFC3339)
	}
	if s.hub != nil {
		resp.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	for name, check := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check.HealthCheck(checkCtx)
		cancel()

		status := ComponentStatus{Healthy: err == nil}
		if err != nil {
			status.Error = err.Error()
		}
		resp.Components[name] = status
	}

	return resp
}
