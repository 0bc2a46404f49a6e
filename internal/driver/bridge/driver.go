package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/wemo-gateway/internal/device"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/mqtt"
)

const (
	defaultProtocol = "wemo"
	defaultTimeout  = 5 * time.Second
)

// Bus is the part of the MQTT client the driver uses.
// *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config controls how the driver talks to the bridge.
type Config struct {
	// Protocol is the bridge's topic segment. Default: "wemo".
	Protocol string

	// Timeout bounds each request. Default: 5s.
	Timeout time.Duration

	// QoS for requests and the response subscription.
	QoS byte
}

// Driver implements device.Driver by forwarding every probe, describe
// and command to an external bridge process over MQTT and waiting for
// the correlated response.
//
// Thread Safety: all methods are safe for concurrent use.
type Driver struct {
	bus      Bus
	protocol string
	timeout  time.Duration
	qos      byte

	pending map[string]chan Response
	closed  bool
	mu      sync.Mutex

	logger Logger
	now    func() time.Time
}

var _ device.Driver = (*Driver)(nil)

// New creates a driver and subscribes to the bridge's response topic.
func New(bus Bus, cfg Config) (*Driver, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: bus is required", ErrInvalidConfig)
	}
	if cfg.Protocol == "" {
		cfg.Protocol = defaultProtocol
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidConfig, cfg.QoS)
	}

	d := &Driver{
		bus:      bus,
		protocol: cfg.Protocol,
		timeout:  cfg.Timeout,
		qos:      cfg.QoS,
		pending:  make(map[string]chan Response),
		logger:   noopLogger{},
		now:      time.Now,
	}

	if err := bus.Subscribe(mqtt.Topics{}.AllBridgeResponses(d.protocol), d.qos, d.handleResponse); err != nil {
		return nil, fmt.Errorf("subscribing to bridge responses: %w", err)
	}
	return d, nil
}

// SetLogger sets the logger for the driver.
func (d *Driver) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Probe implements device.Driver.
func (d *Driver) Probe(ctx context.Context, address string) (int, error) {
	resp, err := d.request(ctx, Request{Action: ActionProbe, Address: address})
	if err != nil {
		return 0, err
	}
	if resp.Port <= 0 {
		return 0, fmt.Errorf("%w: probe of %s returned no port", ErrBridge, address)
	}
	return resp.Port, nil
}

// Describe implements device.Driver.
func (d *Driver) Describe(ctx context.Context, address string, port int) (device.Descriptor, error) {
	resp, err := d.request(ctx, Request{Action: ActionDescribe, Address: address, Port: port})
	if err != nil {
		return nil, err
	}
	return &remoteDevice{driver: d, name: resp.Name, address: address, port: port}, nil
}

// Pending returns the number of requests awaiting a response.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close unsubscribes from responses and fails every waiting request
// with ErrClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for id, ch := range d.pending {
		close(ch)
		delete(d.pending, id)
	}
	d.mu.Unlock()

	return d.bus.Unsubscribe(mqtt.Topics{}.AllBridgeResponses(d.protocol))
}

// request publishes req under a fresh ID and waits for its response.
func (d *Driver) request(ctx context.Context, req Request) (Response, error) {
	req.RequestID = uuid.NewString()
	req.Timestamp = d.now().UTC()

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding %s request: %w", req.Action, err)
	}

	ch := make(chan Response, 1)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Response{}, ErrClosed
	}
	d.pending[req.RequestID] = ch
	logger := d.logger
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, req.RequestID)
		d.mu.Unlock()
	}()

	topic := mqtt.Topics{}.BridgeRequest(d.protocol, req.RequestID)
	if err := d.bus.Publish(topic, payload, d.qos, false); err != nil {
		return Response{}, fmt.Errorf("publishing %s request: %w", req.Action, err)
	}
	logger.Debug("bridge request sent", "action", req.Action, "address", req.Address, "request_id", req.RequestID)

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrClosed
		}
		if !resp.OK {
			return resp, fmt.Errorf("%w: %s %s: %s", ErrBridge, req.Action, req.Address, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		return Response{}, fmt.Errorf("%w: %s %s after %v", ErrTimeout, req.Action, req.Address, d.timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// handleResponse routes a bridge response to the waiting request.
// Responses nobody waits for (late or foreign) are dropped.
func (d *Driver) handleResponse(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding bridge response on %s: %w", topic, err)
	}
	if resp.RequestID == "" {
		resp.RequestID = mqtt.Topics{}.RequestID(topic)
	}

	d.mu.Lock()
	ch, ok := d.pending[resp.RequestID]
	if ok {
		// Buffered and removed from pending, so this never blocks and
		// Close cannot close ch underneath it.
		delete(d.pending, resp.RequestID)
		ch <- resp
	}
	logger := d.logger
	d.mu.Unlock()

	if !ok {
		logger.Debug("dropping unmatched bridge response", "request_id", resp.RequestID)
	}
	return nil
}

// remoteDevice is a device.Descriptor backed by the bridge.
type remoteDevice struct {
	driver  *Driver
	name    string
	address string
	port    int
}

func (r *remoteDevice) Name() string { return r.name }

func (r *remoteDevice) TurnOn(ctx context.Context) error {
	_, err := r.driver.request(ctx, Request{Action: ActionOn, Address: r.address, Port: r.port})
	return err
}

func (r *remoteDevice) TurnOff(ctx context.Context) error {
	_, err := r.driver.request(ctx, Request{Action: ActionOff, Address: r.address, Port: r.port})
	return err
}

func (r *remoteDevice) State(ctx context.Context, forceRefresh bool) (int, error) {
	resp, err := r.driver.request(ctx, Request{
		Action:       ActionState,
		Address:      r.address,
		Port:         r.port,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		return device.PowerUnknown, err
	}
	return resp.State, nil
}
