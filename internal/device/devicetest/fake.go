// Package devicetest provides an in-memory device.Driver for tests.
package devicetest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/wemo-gateway/internal/device"
)

// ErrUnreachable is returned by Probe for addresses with no fake device.
var ErrUnreachable = errors.New("devicetest: no device at address")

// Driver is a fake device.Driver keyed by address.
type Driver struct {
	mu            sync.Mutex
	devices       map[string]*Device
	probeCalls    int
	describeCalls int
}

// NewDriver creates a driver with no devices.
func NewDriver() *Driver {
	return &Driver{devices: make(map[string]*Device)}
}

// Add places dev at address.
func (d *Driver) Add(address string, dev *Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[address] = dev
}

// Probe implements device.Driver.
func (d *Driver) Probe(_ context.Context, address string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probeCalls++

	dev, ok := d.devices[address]
	if !ok {
		return 0, ErrUnreachable
	}
	return dev.Port, nil
}

// Describe implements device.Driver.
func (d *Driver) Describe(_ context.Context, address string, _ int) (device.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.describeCalls++

	dev, ok := d.devices[address]
	if !ok {
		return nil, ErrUnreachable
	}
	return dev, nil
}

// ProbeCalls returns how many times Probe ran.
func (d *Driver) ProbeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probeCalls
}

// DescribeCalls returns how many times Describe ran.
func (d *Driver) DescribeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.describeCalls
}

// Device is a fake outlet. Set Err to make every command fail.
type Device struct {
	FriendlyName string
	Port         int
	Err          error

	mu          sync.Mutex
	power       int
	onCalls     int
	offCalls    int
	forcedReads int
	cachedReads int
}

// NewDevice creates an outlet that is off.
func NewDevice(name string, port int) *Device {
	return &Device{FriendlyName: name, Port: port}
}

// Name implements device.Descriptor.
func (v *Device) Name() string { return v.FriendlyName }

// TurnOn implements device.Descriptor.
func (v *Device) TurnOn(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onCalls++
	if v.Err != nil {
		return v.Err
	}
	v.power = device.PowerOn
	return nil
}

// TurnOff implements device.Descriptor.
func (v *Device) TurnOff(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offCalls++
	if v.Err != nil {
		return v.Err
	}
	v.power = device.PowerOff
	return nil
}

// State implements device.Descriptor.
func (v *Device) State(_ context.Context, forceRefresh bool) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if forceRefresh {
		v.forcedReads++
	} else {
		v.cachedReads++
	}
	if v.Err != nil {
		return 0, v.Err
	}
	return v.power, nil
}

// SetPower changes the state as if someone pressed the button.
func (v *Device) SetPower(state int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.power = state
}

// Calls returns the on, off, forced-read and cached-read counts.
func (v *Device) Calls() (on, off, forced, cached int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.onCalls, v.offCalls, v.forcedReads, v.cachedReads
}
