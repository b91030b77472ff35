package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/whep-gateway/internal/infrastructure/mqtt"
)

// MessagePublisher is the subset of *mqtt.Client used by MQTTSink.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes each event as JSON on {prefix}/events/{subject}/{verb}.
type MQTTSink struct {
	pub    MessagePublisher
	topics mqtt.Topics
	qos    byte
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub MessagePublisher, topics mqtt.Topics, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics, qos: qos}
}

// Publish implements Sink. Events are not retained.
func (s *MQTTSink) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return s.pub.Publish(s.topics.Event(string(e.Type)), payload, s.qos, false)
}

// MetricsWriter is the subset of *influxdb.Client used by MetricsSink.
type MetricsWriter interface {
	WriteSessionMetric(eventType, deviceID string, duration time.Duration, at time.Time)
	WriteRefreshMetric(ok bool, devices int, duration time.Duration, at time.Time)
}

// MetricsSink turns events into time-series points.
type MetricsSink struct {
	w MetricsWriter
}

// NewMetricsSink returns a sink writing through w.
func NewMetricsSink(w MetricsWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// Publish implements Sink. Writes are buffered by the client, so this never fails.
func (s *MetricsSink) Publish(_ context.Context, e Event) error {
	duration := time.Duration(e.DurationMS) * time.Millisecond

	switch {
	case e.Type == RegistryRefreshed:
		s.w.WriteRefreshMetric(true, e.Devices, duration, e.Timestamp)
	case e.Type == RegistryRefreshFailed:
		s.w.WriteRefreshMetric(false, 0, duration, e.Timestamp)
	case strings.HasPrefix(string(e.Type), "session."):
		s.w.WriteSessionMetric(string(e.Type), e.DeviceID, duration, e.Timestamp)
	}
	return nil
}
