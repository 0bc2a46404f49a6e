package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point stamped with the current time.
//
// Example:
//
//	client.WritePoint("gateway_commands",
//	    map[string]string{"type": "161", "outcome": "ok"},
//	    map[string]any{"duration_ms": 12.5, "count": 1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp.
// Points written while disconnected are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewPoint(measurement, tags, fields, ts))
}

// NewPoint builds a line-protocol point. It is exported so callers can
// inspect exactly what would be written.
func NewPoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) *write.Point {
	return write.NewPoint(measurement, tags, fields, ts)
}
