// Package telemetry mirrors dispatcher activity to the outside world.
//
// Both types here are dispatch.Observer implementations and are wired
// in only when configured:
//
//   - StatePublisher publishes each processed command, and the resulting
//     outlet state, as JSON on the MQTT bus.
//   - Metrics writes per-command latency and outcome counts, plus outlet
//     power samples, to InfluxDB.
//
// Neither affects acknowledgements. Their errors are logged by the
// dispatcher and otherwise ignored.
package telemetry
