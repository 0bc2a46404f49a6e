package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/dispatch"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/wemo-gateway/internal/message"
)

// Publisher is the part of the MQTT client the StatePublisher needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// CommandEvent is published on wemogw/command/{type} for every accepted
// message.
type CommandEvent struct {
	Ref        string  `json:"ref"`
	Type       string  `json:"type"`
	Source     string  `json:"source"`
	Name       string  `json:"name,omitempty"`
	Address    string  `json:"address,omitempty"`
	State      string  `json:"state,omitempty"`
	Outcome    string  `json:"outcome"`
	AckType    string  `json:"ack_type"`
	AckPayload string  `json:"ack_payload,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Timestamp  string  `json:"timestamp"`
}

// DeviceState is published retained on wemogw/device/{name}/state after
// a successful set-state or get-state.
type DeviceState struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	State     string `json:"state"`
	UpdatedAt string `json:"updated_at"`
}

// StatePublisher is a dispatch.Observer that mirrors commands and outlet
// state onto the bus.
type StatePublisher struct {
	pub Publisher
}

var _ dispatch.Observer = (*StatePublisher)(nil)

// NewStatePublisher creates a publisher over pub.
func NewStatePublisher(pub Publisher) *StatePublisher {
	return &StatePublisher{pub: pub}
}

// Observe implements dispatch.Observer.
func (p *StatePublisher) Observe(_ context.Context, ev dispatch.Event) error {
	var errs []error
	if err := p.pub.PublishJSON(mqtt.Topics{}.CommandEvent(ev.Type), NewCommandEvent(ev), false); err != nil {
		errs = append(errs, fmt.Errorf("publishing command event: %w", err))
	}

	if state, ok := NewDeviceState(ev); ok {
		if err := p.pub.PublishJSON(mqtt.Topics{}.DeviceState(ev.Name), state, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing device state: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewCommandEvent renders ev in its published JSON shape.
func NewCommandEvent(ev dispatch.Event) CommandEvent {
	return CommandEvent{
		Ref:        ev.Ref,
		Type:       ev.Type,
		Source:     ev.Source,
		Name:       ev.Name,
		Address:    ev.Address,
		State:      ev.State,
		Outcome:    string(ev.Outcome),
		AckType:    ev.AckType,
		AckPayload: ev.AckPayload,
		DurationMS: durationMS(ev.Duration),
		Timestamp:  timestamp(ev),
	}
}

// NewDeviceState returns the outlet state ev leaves behind. ok is false
// for events that do not carry one.
func NewDeviceState(ev dispatch.Event) (state DeviceState, ok bool) {
	if !carriesState(ev) {
		return DeviceState{}, false
	}
	return DeviceState{Name: ev.Name, Address: ev.Address, State: ev.State, UpdatedAt: timestamp(ev)}, true
}

func timestamp(ev dispatch.Event) string {
	return ev.Time.UTC().Format(time.RFC3339Nano)
}

// carriesState reports whether ev left a known outlet in a known state.
func carriesState(ev dispatch.Event) bool {
	if ev.Outcome != dispatch.OutcomeOK || ev.Name == "" || ev.State == "" {
		return false
	}
	return ev.Type == message.TypeSetState || ev.Type == message.TypeGetState
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
