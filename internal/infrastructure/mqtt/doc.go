// Package mqtt connects the gateway to its MQTT bus.
//
// The bus carries two kinds of traffic. Driver requests go out to the
// protocol bridge that talks to the physical outlets, and its responses
// come back on a per-protocol wildcard. Optionally the gateway also
// mirrors device state and processed commands for other consumers.
//
// The client reconnects with backoff, replays subscriptions after a
// reconnect, and keeps a retained presence document on
// wemogw/system/status (the broker publishes the offline variant as the
// will message if the process dies).
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeResponses("wemo"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleResponse(payload)
//	    })
package mqtt
