package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/device"
)

// Registry is the part of *device.Registry the dispatcher drives.
type Registry interface {
	Discover(ctx context.Context, name, address string) (device.Handle, error)
	Apply(ctx context.Context, name, address string, op device.Op) (string, error)
}

// Gateway is the process-wide state shared by the dispatcher and the
// session loop: this process's port, the device registry, the dedup
// register and the running flag.
//
// A Gateway starts running with an unset dedup register.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Gateway struct {
	localPort string
	registry  Registry

	mu            sync.RWMutex
	lastRef       string
	refSet        bool
	running       bool
	lastHeartbeat time.Time
	shutdownAt    time.Time
}

// NewGateway creates running gateway state for localPort.
//
// Parameters:
//   - localPort: Canonical decimal port messages must be addressed to
//   - registry: Device registry commands are applied through
func NewGateway(localPort string, registry Registry) *Gateway {
	return &Gateway{
		localPort: localPort,
		registry:  registry,
		running:   true,
	}
}

// LocalPort returns the port this process answers on.
func (g *Gateway) LocalPort() string {
	return g.localPort
}

// Running reports whether a shutdown command has not yet been processed.
func (g *Gateway) Running() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// LastRef returns the dedup register. ok is false until the first
// message has been processed.
func (g *Gateway) LastRef() (ref string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastRef, g.refSet
}

// LastHeartbeat returns when the last heartbeat was processed.
func (g *Gateway) LastHeartbeat() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastHeartbeat
}

// ShutdownAt returns when shutdown was processed, or the zero time.
func (g *Gateway) ShutdownAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shutdownAt
}

// isDuplicate reports whether ref equals the dedup register.
func (g *Gateway) isDuplicate(ref string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refSet && g.lastRef == ref
}

func (g *Gateway) setLastRef(ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRef = ref
	g.refSet = true
}

func (g *Gateway) recordHeartbeat(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastHeartbeat = at
}

func (g *Gateway) stop(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
	g.shutdownAt = at
}
