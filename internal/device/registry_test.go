package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/wemo-gateway/internal/device"
	"github.com/nerrad567/wemo-gateway/internal/device/devicetest"
)

const (
	livingRoomAddr = "192.168.86.25"
	kitchenAddr    = "192.168.86.26"
)

func newTestRegistry(opts ...device.Option) (*device.Registry, *devicetest.Driver, *devicetest.Device) {
	driver := devicetest.NewDriver()
	lamp := devicetest.NewDevice("Living Room Light 1", 49153)
	driver.Add(livingRoomAddr, lamp)
	return device.NewRegistry(driver, opts...), driver, lamp
}

func TestRegistry_Resolve_SubstringMatch(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	if _, err := reg.Discover(ctx, "Living Room", livingRoomAddr); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	tests := []struct {
		key   string
		found bool
	}{
		{key: "Room Light", found: true},
		{key: "Living Room Light 1", found: true},
		{key: "Light", found: true},
		{key: "lrlt1", found: false},
		{key: "room light", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			h, err := reg.Resolve(tt.key)
			if tt.found {
				if err != nil {
					t.Fatalf("Resolve(%q) error = %v", tt.key, err)
				}
				if h.Name != "Living Room Light 1" {
					t.Errorf("Resolve(%q).Name = %q", tt.key, h.Name)
				}
				return
			}
			if !errors.Is(err, device.ErrDeviceNotFound) {
				t.Errorf("Resolve(%q) error = %v, want ErrDeviceNotFound", tt.key, err)
			}
		})
	}
}

func TestRegistry_Resolve_FirstInsertedWins(t *testing.T) {
	driver := devicetest.NewDriver()
	driver.Add(livingRoomAddr, devicetest.NewDevice("Living Room Light 1", 49153))
	driver.Add(kitchenAddr, devicetest.NewDevice("Living Room Light 2", 49153))
	reg := device.NewRegistry(driver)
	ctx := context.Background()

	if _, err := reg.Discover(ctx, "Light", livingRoomAddr); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Discover(ctx, "Light", kitchenAddr); err != nil {
		t.Fatal(err)
	}

	h, err := reg.Resolve("Living Room Light")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Address != livingRoomAddr {
		t.Errorf("Resolve() address = %q, want first discovered %q", h.Address, livingRoomAddr)
	}
}

func TestRegistry_Discover(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		address string
		wantErr error
	}{
		{name: "found", key: "Room Light", address: livingRoomAddr},
		{name: "unreachable address", key: "Room Light", address: "10.0.0.99", wantErr: device.ErrProbeFailed},
		{name: "name mismatch", key: "Kitchen", address: livingRoomAddr, wantErr: device.ErrNameMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, _ := newTestRegistry()
			h, err := reg.Discover(context.Background(), tt.key, tt.address)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, device.ErrDeviceNotFound) {
					t.Errorf("Discover() error = %v, want %v wrapped in ErrDeviceNotFound", err, tt.wantErr)
				}
				if reg.Count() != 0 {
					t.Errorf("Count() = %d after failed discover, want 0", reg.Count())
				}
				return
			}

			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if h.Name != "Living Room Light 1" || h.Address != livingRoomAddr || h.Port != 49153 {
				t.Errorf("Discover() = %+v", h)
			}
			if h.PowerState != device.PowerUnknown {
				t.Errorf("PowerState = %d, want PowerUnknown", h.PowerState)
			}
		})
	}
}

func TestRegistry_Discover_ReplacesExactName(t *testing.T) {
	reg, driver, _ := newTestRegistry()
	ctx := context.Background()

	if _, err := reg.Discover(ctx, "Room Light", livingRoomAddr); err != nil {
		t.Fatal(err)
	}

	// Same device now answers at a new address.
	driver.Add(kitchenAddr, devicetest.NewDevice("Living Room Light 1", 49154))
	h, err := reg.Discover(ctx, "Room Light", kitchenAddr)
	if err != nil {
		t.Fatal(err)
	}

	if reg.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after rediscovering the same name", reg.Count())
	}
	if h.Address != kitchenAddr || h.Port != 49154 {
		t.Errorf("Discover() = %+v, want refreshed address and port", h)
	}
	if got, _ := reg.Resolve("Room Light"); got.Address != kitchenAddr {
		t.Errorf("Resolve() address = %q, want %q", got.Address, kitchenAddr)
	}
}

func TestRegistry_Discover_AppendsDistinctNames(t *testing.T) {
	driver := devicetest.NewDriver()
	driver.Add(livingRoomAddr, devicetest.NewDevice("Living Room Light 1", 49153))
	driver.Add(kitchenAddr, devicetest.NewDevice("Kitchen Kettle", 49153))
	reg := device.NewRegistry(driver)
	ctx := context.Background()

	reg.Discover(ctx, "Room Light", livingRoomAddr) //nolint:errcheck // asserted below
	reg.Discover(ctx, "Kettle", kitchenAddr)        //nolint:errcheck // asserted below

	devices := reg.Devices()
	if len(devices) != 2 {
		t.Fatalf("Devices() len = %d, want 2", len(devices))
	}
	if devices[0].Name != "Living Room Light 1" || devices[1].Name != "Kitchen Kettle" {
		t.Errorf("Devices() order = [%q, %q]", devices[0].Name, devices[1].Name)
	}
}

func TestRegistry_Apply_CacheHitSkipsDiscovery(t *testing.T) {
	reg, driver, lamp := newTestRegistry()
	ctx := context.Background()
	reg.Discover(ctx, "Room Light", livingRoomAddr) //nolint:errcheck // setup
	probes := driver.ProbeCalls()

	state, err := reg.Apply(ctx, "Room Light", livingRoomAddr, device.OpTurnOn)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if state != "1" {
		t.Errorf("Apply() = %q, want 1", state)
	}
	if driver.ProbeCalls() != probes {
		t.Errorf("ProbeCalls = %d, want %d (no rediscovery on hit)", driver.ProbeCalls(), probes)
	}
	if on, _, _, _ := lamp.Calls(); on != 1 {
		t.Errorf("TurnOn calls = %d, want 1", on)
	}

	h, _ := reg.Resolve("Room Light")
	if h.PowerState != device.PowerOn {
		t.Errorf("cached PowerState = %d, want PowerOn", h.PowerState)
	}
}

func TestRegistry_Apply_MissTriggersOneDiscovery(t *testing.T) {
	reg, driver, lamp := newTestRegistry()

	state, err := reg.Apply(context.Background(), "Room Light", livingRoomAddr, device.OpTurnOff)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if state != "0" {
		t.Errorf("Apply() = %q, want 0", state)
	}
	if driver.ProbeCalls() != 1 {
		t.Errorf("ProbeCalls = %d, want 1", driver.ProbeCalls())
	}
	if _, off, _, _ := lamp.Calls(); off != 1 {
		t.Errorf("TurnOff calls = %d, want 1", off)
	}
}

func TestRegistry_Apply_RetryBound(t *testing.T) {
	// The device at the address never matches the key.
	reg, driver, lamp := newTestRegistry()

	_, err := reg.Apply(context.Background(), "lrlt1", livingRoomAddr, device.OpTurnOn)
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("Apply() error = %v, want ErrDeviceNotFound", err)
	}
	if driver.ProbeCalls() != 1 || driver.DescribeCalls() != 1 {
		t.Errorf("discovery calls = (probe %d, describe %d), want exactly one each",
			driver.ProbeCalls(), driver.DescribeCalls())
	}
	if on, _, _, _ := lamp.Calls(); on != 0 {
		t.Errorf("TurnOn calls = %d, want 0", on)
	}
}

func TestRegistry_Apply_ConfiguredAttempts(t *testing.T) {
	tests := []struct {
		attempts   int
		wantProbes int
	}{
		{attempts: 0, wantProbes: 0},
		{attempts: 1, wantProbes: 1},
		{attempts: 3, wantProbes: 3},
		{attempts: -2, wantProbes: 0},
	}

	for _, tt := range tests {
		reg, driver, _ := newTestRegistry(device.WithRediscoveryAttempts(tt.attempts))
		_, err := reg.Apply(context.Background(), "nothing-like-it", livingRoomAddr, device.OpQueryState)
		if !errors.Is(err, device.ErrDeviceNotFound) {
			t.Errorf("attempts=%d: Apply() error = %v, want ErrDeviceNotFound", tt.attempts, err)
		}
		if driver.ProbeCalls() != tt.wantProbes {
			t.Errorf("attempts=%d: ProbeCalls = %d, want %d", tt.attempts, driver.ProbeCalls(), tt.wantProbes)
		}
	}
}

func TestRegistry_Apply_RepeatedCommandsAreForwarded(t *testing.T) {
	reg, _, lamp := newTestRegistry()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := reg.Apply(ctx, "Room Light", livingRoomAddr, device.OpTurnOn); err != nil {
			t.Fatal(err)
		}
	}
	if on, _, _, _ := lamp.Calls(); on != 3 {
		t.Errorf("TurnOn calls = %d, want 3", on)
	}
}

func TestRegistry_Apply_QueryForcesRefresh(t *testing.T) {
	reg, _, lamp := newTestRegistry()
	ctx := context.Background()

	if _, err := reg.Apply(ctx, "Room Light", livingRoomAddr, device.OpTurnOff); err != nil {
		t.Fatal(err)
	}
	lamp.SetPower(device.PowerOn) // changed outside the gateway

	state, err := reg.Apply(ctx, "Room Light", livingRoomAddr, device.OpQueryState)
	if err != nil {
		t.Fatalf("Apply(query) error = %v", err)
	}
	if state != "1" {
		t.Errorf("Apply(query) = %q, want live value 1", state)
	}
	if _, _, forced, cached := lamp.Calls(); forced != 1 || cached != 0 {
		t.Errorf("reads = (forced %d, cached %d), want (1, 0)", forced, cached)
	}
}

func TestRegistry_Apply_CommandFailure(t *testing.T) {
	reg, _, lamp := newTestRegistry()
	lamp.Err = errors.New("connection reset")

	_, err := reg.Apply(context.Background(), "Room Light", livingRoomAddr, device.OpTurnOn)
	if !errors.Is(err, device.ErrDeviceNotFound) || !errors.Is(err, device.ErrCommandFailed) {
		t.Errorf("Apply() error = %v, want ErrDeviceNotFound and ErrCommandFailed", err)
	}
}

func TestRegistry_Handles_AreSnapshots(t *testing.T) {
	reg, _, _ := newTestRegistry()
	h, err := reg.Discover(context.Background(), "Room Light", livingRoomAddr)
	if err != nil {
		t.Fatal(err)
	}

	h.Name = "mutated"
	devices := reg.Devices()
	devices[0].Address = "mutated"

	again, err := reg.Resolve("Room Light")
	if err != nil {
		t.Fatalf("Resolve() after mutating snapshot error = %v", err)
	}
	if again.Address != livingRoomAddr {
		t.Errorf("registry entry changed through snapshot: %+v", again)
	}
}

func TestOpForState(t *testing.T) {
	tests := []struct {
		state   string
		want    device.Op
		wantErr bool
	}{
		{state: "1", want: device.OpTurnOn},
		{state: "0", want: device.OpTurnOff},
		{state: "2", wantErr: true},
		{state: "", wantErr: true},
		{state: "on", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			op, err := device.OpForState(tt.state)
			if tt.wantErr {
				if !errors.Is(err, device.ErrInvalidState) {
					t.Errorf("OpForState(%q) error = %v, want ErrInvalidState", tt.state, err)
				}
				return
			}
			if err != nil || op != tt.want {
				t.Errorf("OpForState(%q) = (%v, %v), want %v", tt.state, op, err, tt.want)
			}
		})
	}
}

func TestOp_String(t *testing.T) {
	if device.OpTurnOn.String() != "turn_on" || device.OpQueryState.String() != "query_state" {
		t.Error("unexpected Op names")
	}
	if device.Op(99).String() != "op(99)" {
		t.Errorf("Op(99).String() = %q", device.Op(99).String())
	}
}
