// Package bridge implements device.Driver on top of the MQTT bus.
//
// The gateway never speaks the outlets' own protocol. Every probe,
// describe, on/off and state read becomes a JSON Request published to
// wemogw/request/{protocol}/{request_id}; a separate bridge process
// performs it and answers on wemogw/response/{protocol}/{request_id}.
// Requests are correlated by a random UUID and bounded by a timeout.
//
//	drv, err := bridge.New(mqttClient, bridge.Config{Protocol: "wemo", Timeout: 5 * time.Second})
//	reg := device.NewRegistry(drv)
package bridge
