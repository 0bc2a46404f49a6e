package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/dispatch"
)

// Measurement names written by Metrics.
const (
	MeasurementCommands = "gateway_commands"
	MeasurementPower    = "outlet_power"
)

// PointWriter is the part of the InfluxDB client Metrics needs.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Metrics is a dispatch.Observer that records command metrics.
//
// Every event produces one gateway_commands point tagged by type and
// outcome. Events that leave an outlet in a numeric state also produce
// an outlet_power point tagged by device name.
type Metrics struct {
	w PointWriter
}

var _ dispatch.Observer = (*Metrics)(nil)

// NewMetrics creates a metrics observer over w.
func NewMetrics(w PointWriter) *Metrics {
	return &Metrics{w: w}
}

// Observe implements dispatch.Observer. Writes are queued, so it never fails.
func (m *Metrics) Observe(_ context.Context, ev dispatch.Event) error {
	m.w.WritePointWithTime(MeasurementCommands,
		map[string]string{
			"type":    ev.Type,
			"outcome": string(ev.Outcome),
		},
		map[string]any{
			"duration_ms": durationMS(ev.Duration),
			"count":       int64(1),
		},
		ev.Time)

	if !carriesState(ev) {
		return nil
	}
	state, err := strconv.Atoi(ev.State)
	if err != nil {
		return nil
	}
	m.w.WritePointWithTime(MeasurementPower,
		map[string]string{"name": ev.Name},
		map[string]any{"state": int64(state)},
		ev.Time)
	return nil
}
