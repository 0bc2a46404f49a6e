package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/device"
	"github.com/nerrad567/wemo-gateway/internal/device/devicetest"
	"github.com/nerrad567/wemo-gateway/internal/message"
)

const (
	localPort = "6013"
	peerPort  = "6010"
	lampAddr  = "192.168.86.25"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	dispatcher *Dispatcher
	gateway    *Gateway
	registry   *device.Registry
	driver     *devicetest.Driver
	lamp       *devicetest.Device
}

func newFixture(opts ...Option) *fixture {
	driver := devicetest.NewDriver()
	lamp := devicetest.NewDevice("Living Room Light 1", 49153)
	driver.Add(lampAddr, lamp)

	reg := device.NewRegistry(driver)
	gw := NewGateway(localPort, reg)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)

	return &fixture{
		dispatcher: New(gw, opts...),
		gateway:    gw,
		registry:   reg,
		driver:     driver,
		lamp:       lamp,
	}
}

func decode(t *testing.T, ref, raw string) *message.Message {
	t.Helper()
	m, err := message.DecodeString(raw)
	if err != nil {
		t.Fatalf("DecodeString(%q) error = %v", raw, err)
	}
	m.Ref = ref
	return m
}

func assertAck(t *testing.T, ack *message.Message, wantType, wantPayload string) {
	t.Helper()
	if ack == nil {
		t.Fatalf("Dispatch() = nil, want %s ack", wantType)
	}
	if ack.Type != wantType {
		t.Errorf("ack.Type = %q, want %q", ack.Type, wantType)
	}
	if ack.Payload != wantPayload {
		t.Errorf("ack.Payload = %q, want %q", ack.Payload, wantPayload)
	}
	if ack.Source() != localPort || ack.Dest() != peerPort {
		t.Errorf("ack ports = (%q, %q), want (%q, %q)", ack.Source(), ack.Dest(), localPort, peerPort)
	}
}

func TestDispatch_Heartbeat(t *testing.T) {
	f := newFixture()

	ack := f.dispatcher.Dispatch(context.Background(), decode(t, "1", "6010,6013,001,,,"))

	assertAck(t, ack, "001A", "")
	if ack.Ref != "1" {
		t.Errorf("ack.Ref = %q, want 1", ack.Ref)
	}
	if !f.gateway.LastHeartbeat().Equal(fixedNow) {
		t.Errorf("LastHeartbeat() = %v, want %v", f.gateway.LastHeartbeat(), fixedNow)
	}
	if ref, ok := f.gateway.LastRef(); !ok || ref != "1" {
		t.Errorf("LastRef() = (%q, %v), want (1, true)", ref, ok)
	}
}

func TestDispatch_DuplicateSuppressed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.dispatcher.Dispatch(ctx, decode(t, "42", "6010,6013,001,,,"))
	second := f.dispatcher.Dispatch(ctx, decode(t, "42", "6010,6013,001,,,"))

	if first == nil {
		t.Fatal("first delivery produced no ack")
	}
	if second != nil {
		t.Errorf("duplicate delivery produced ack %v", second)
	}
	if ref, _ := f.gateway.LastRef(); ref != "42" {
		t.Errorf("LastRef() = %q, want 42", ref)
	}

	// A new reference number is processed again.
	if third := f.dispatcher.Dispatch(ctx, decode(t, "43", "6010,6013,001,,,")); third == nil {
		t.Error("new reference produced no ack")
	}
}

func TestDispatch_FirstMessageNeverDuplicate(t *testing.T) {
	f := newFixture()

	// An empty reference number equals the zero value of the register,
	// but the register starts unset.
	if ack := f.dispatcher.Dispatch(context.Background(), decode(t, "", "6010,6013,001,,,")); ack == nil {
		t.Error("first message with empty ref was dropped")
	}
}

func TestDispatch_Dropped(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "other destination", raw: "6010,6014,001,,,"},
		{name: "unknown type", raw: "6010,6013,555,,,"},
		{name: "ack sent to us", raw: "6010,6013,161A,,,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if ack := f.dispatcher.Dispatch(context.Background(), decode(t, "7", tt.raw)); ack != nil {
				t.Errorf("Dispatch() = %v, want nil", ack)
			}
			if _, ok := f.gateway.LastRef(); ok {
				t.Error("dedup register set by dropped message")
			}
		})
	}
}

func TestDispatch_InvalidDestPortDropped(t *testing.T) {
	f := newFixture()
	m, err := message.DecodeString("6010,7000,001,,,")
	if !errors.Is(err, message.ErrInvalidPort) {
		t.Fatalf("DecodeString() error = %v, want ErrInvalidPort", err)
	}
	m.Ref = "5"

	if ack := f.dispatcher.Dispatch(context.Background(), m); ack != nil {
		t.Errorf("Dispatch() = %v, want nil for retained empty dest", ack)
	}
}

func TestDispatch_Discover(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantPayload string
		wantCount   int
	}{
		{name: "payload form", raw: "6010,6013,160,,,Room Light," + lampAddr, wantPayload: "", wantCount: 1},
		{name: "name field form", raw: "6010,6013,160,Room Light,," + lampAddr, wantPayload: "", wantCount: 1},
		{name: "device absent", raw: "6010,6013,160,,,Room Light,10.0.0.99", wantPayload: "", wantCount: 0},
		{name: "malformed", raw: "6010,6013,160,,,", wantPayload: ErrorPayload, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ack := f.dispatcher.Dispatch(context.Background(), decode(t, "9", tt.raw))

			assertAck(t, ack, "160A", tt.wantPayload)
			if f.registry.Count() != tt.wantCount {
				t.Errorf("registry Count() = %d, want %d", f.registry.Count(), tt.wantCount)
			}
			if ref, _ := f.gateway.LastRef(); ref != "9" {
				t.Errorf("LastRef() = %q, want 9 regardless of outcome", ref)
			}
		})
	}
}

func TestDispatch_SetState_DiscoversThenTurnsOn(t *testing.T) {
	f := newFixture()

	ack := f.dispatcher.Dispatch(context.Background(), decode(t, "100", "6010,6013,161,Room Light,1,"+lampAddr))

	assertAck(t, ack, "161A", "")
	if f.driver.ProbeCalls() != 1 {
		t.Errorf("ProbeCalls = %d, want 1", f.driver.ProbeCalls())
	}
	if on, _, _, _ := f.lamp.Calls(); on != 1 {
		t.Errorf("TurnOn calls = %d, want 1", on)
	}
}

func TestDispatch_SetState(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantPayload string
		wantOn      int
		wantOff     int
	}{
		{name: "payload form on", raw: "6010,6013,161,,,Room Light," + lampAddr + ",1", wantOn: 1},
		{name: "payload form off", raw: "6010,6013,161,,,Room Light," + lampAddr + ",0", wantOff: 1},
		{name: "name and address payload", raw: "6010,6013,161,,0,Room Light," + lampAddr, wantOff: 1},
		{name: "invalid state", raw: "6010,6013,161,,,Room Light," + lampAddr + ",2", wantPayload: ErrorPayload},
		{name: "missing state", raw: "6010,6013,161,Room Light,," + lampAddr, wantPayload: ErrorPayload},
		{name: "empty payload", raw: "6010,6013,161,Room Light,1,", wantPayload: ErrorPayload},
		{name: "not found still acks", raw: "6010,6013,161,,,Kitchen," + lampAddr + ",1", wantPayload: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ack := f.dispatcher.Dispatch(context.Background(), decode(t, "11", tt.raw))

			assertAck(t, ack, "161A", tt.wantPayload)
			on, off, _, _ := f.lamp.Calls()
			if on != tt.wantOn || off != tt.wantOff {
				t.Errorf("device calls = (on %d, off %d), want (%d, %d)", on, off, tt.wantOn, tt.wantOff)
			}
		})
	}
}

func TestDispatch_GetState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.lamp.SetPower(device.PowerOn)

	ack := f.dispatcher.Dispatch(ctx, decode(t, "20", "6010,6013,162,,,Room Light,"+lampAddr))
	assertAck(t, ack, "162A", "Room Light,"+lampAddr+",1")

	f.lamp.SetPower(device.PowerOff)
	ack = f.dispatcher.Dispatch(ctx, decode(t, "21", "6010,6013,162,,,Room Light,"+lampAddr))
	assertAck(t, ack, "162A", "Room Light,"+lampAddr+",0")

	if _, _, forced, cached := f.lamp.Calls(); forced != 2 || cached != 0 {
		t.Errorf("reads = (forced %d, cached %d), want every query forced", forced, cached)
	}
}

func TestDispatch_GetState_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not found", raw: "6010,6013,162,,,lrlt1," + lampAddr},
		{name: "malformed", raw: "6010,6013,162,,,lonely"},
		{name: "empty", raw: "6010,6013,162,,,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ack := f.dispatcher.Dispatch(context.Background(), decode(t, "30", tt.raw))
			assertAck(t, ack, "162A", ErrorPayload)
		})
	}
}

func TestDispatch_GetState_CommandFailure(t *testing.T) {
	f := newFixture()
	f.lamp.Err = errors.New("timeout")

	ack := f.dispatcher.Dispatch(context.Background(), decode(t, "31", "6010,6013,162,,,Room Light,"+lampAddr))
	assertAck(t, ack, "162A", ErrorPayload)
}

func TestDispatch_Shutdown(t *testing.T) {
	f := newFixture()

	if !f.gateway.Running() {
		t.Fatal("new gateway not running")
	}

	ack := f.dispatcher.Dispatch(context.Background(), decode(t, "99", "6010,6013,999,,,"))

	assertAck(t, ack, "999A", "")
	if f.gateway.Running() {
		t.Error("Running() = true after shutdown")
	}
	if !f.gateway.ShutdownAt().Equal(fixedNow) {
		t.Errorf("ShutdownAt() = %v, want %v", f.gateway.ShutdownAt(), fixedNow)
	}
}

func TestDispatch_Observers(t *testing.T) {
	var events []Event
	recorder := ObserverFunc(func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})
	failing := ObserverFunc(func(context.Context, Event) error {
		return errors.New("sink down")
	})

	f := newFixture(WithObserver(failing), WithObserver(recorder))
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, decode(t, "1", "6010,6013,162,,,Room Light,"+lampAddr))
	f.dispatcher.Dispatch(ctx, decode(t, "1", "6010,6013,162,,,Room Light,"+lampAddr)) // duplicate
	f.dispatcher.Dispatch(ctx, decode(t, "2", "6010,6013,162,,,lrlt1,"+lampAddr))

	if len(events) != 2 {
		t.Fatalf("observed %d events, want 2", len(events))
	}

	ok := events[0]
	if ok.Outcome != OutcomeOK || ok.Name != "Room Light" || ok.Address != lampAddr || ok.State != "0" {
		t.Errorf("first event = %+v", ok)
	}
	if ok.AckType != "162A" || ok.Source != peerPort || ok.Ref != "1" {
		t.Errorf("first event ack fields = %+v", ok)
	}
	if events[1].Outcome != OutcomeNotFound || events[1].AckPayload != ErrorPayload {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestTargetArgs(t *testing.T) {
	tests := []struct {
		name        string
		msg         *message.Message
		wantName    string
		wantAddress string
		wantOK      bool
	}{
		{name: "payload pair", msg: message.New(message.WithPayload("lamp,10.0.0.1")), wantName: "lamp", wantAddress: "10.0.0.1", wantOK: true},
		{name: "payload with extra", msg: message.New(message.WithPayload("lamp,10.0.0.1,1")), wantName: "lamp", wantAddress: "10.0.0.1", wantOK: true},
		{name: "name field", msg: message.New(message.WithName("lamp"), message.WithPayload("10.0.0.1")), wantName: "lamp", wantAddress: "10.0.0.1", wantOK: true},
		{name: "payload name wins", msg: message.New(message.WithName("other"), message.WithPayload("lamp,10.0.0.1")), wantName: "lamp", wantAddress: "10.0.0.1", wantOK: true},
		{name: "lone token", msg: message.New(message.WithPayload("lamp"))},
		{name: "empty address", msg: message.New(message.WithPayload("lamp,"))},
		{name: "empty", msg: message.New()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, address, ok := targetArgs(tt.msg)
			if ok != tt.wantOK || name != tt.wantName || address != tt.wantAddress {
				t.Errorf("targetArgs() = (%q, %q, %v), want (%q, %q, %v)",
					name, address, ok, tt.wantName, tt.wantAddress, tt.wantOK)
			}
		})
	}
}
