// Package influxdb writes gateway metrics to InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking write API. The gateway uses
// it for per-command metrics (latency, outcome counts) and outlet power
// state samples; see package telemetry for the measurements.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
package influxdb
