// Package influxdb records gateway metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: one non-blocking,
// batched write API per process, with async write errors delivered to a
// callback. The gateway writes two measurements:
//
//   - whep_sessions: one point per session event, tagged by device and event type
//   - registry_refresh: one point per refresh attempt with device count and outcome
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSessionMetric("session.created", "front-door", 140*time.Millisecond, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package influxdb
