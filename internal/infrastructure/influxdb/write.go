package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSessions = "whep_sessions"
	MeasurementRefresh  = "registry_refresh"
)

// WriteSessionMetric records one session event. duration is the upstream
// call latency and is omitted when zero.
func (c *Client) WriteSessionMetric(eventType, deviceID string, duration time.Duration, at time.Time) {
	fields := map[string]any{"count": 1}
	if duration > 0 {
		fields["duration_ms"] = duration.Milliseconds()
	}
	c.WritePointWithTime(MeasurementSessions,
		map[string]string{"event": eventType, "device_id": deviceID},
		fields, at)
}

// WriteRefreshMetric records one registry refresh attempt.
func (c *Client) WriteRefreshMetric(ok bool, devices int, duration time.Duration, at time.Time) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	c.WritePointWithTime(MeasurementRefresh,
		map[string]string{"outcome": outcome},
		map[string]any{"devices": devices, "duration_ms": duration.Milliseconds()},
		at)
}

// WritePointWithTime writes a point with an explicit timestamp.
// Points written while disconnected are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
