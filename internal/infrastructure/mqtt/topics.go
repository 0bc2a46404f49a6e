package mqtt

import "fmt"

// TopicPrefix is the root of every topic the gateway publishes or
// subscribes to.
const TopicPrefix = "wemogw"

// Topics builds the gateway's MQTT topics.
//
// Bridge topics carry driver requests to the protocol bridge and its
// responses back:
//
//	wemogw/request/{protocol}/{request_id}
//	wemogw/response/{protocol}/{request_id}
//
// Device and command topics mirror what the gateway did, for dashboards
// and other consumers:
//
//	wemogw/device/{name}/state
//	wemogw/command/{type}
type Topics struct{}

// BridgeRequest returns the topic a driver request is published on.
//
// Example: wemogw/request/wemo/5f0c...
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeResponse returns the topic the bridge answers a request on.
//
// Example: wemogw/response/wemo/5f0c...
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocol, requestID)
}

// AllBridgeResponses matches every response for one protocol.
//
// Pattern: wemogw/response/{protocol}/+
func (Topics) AllBridgeResponses(protocol string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, protocol)
}

// DeviceState returns the retained state topic for a named device.
// Topic separators in name are replaced so one device maps to one level.
//
// Example: wemogw/device/Living_Room_Light_1/state
func (Topics) DeviceState(name string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, topicLevel(name))
}

// CommandEvent returns the topic a processed command is reported on.
//
// Example: wemogw/command/161
func (Topics) CommandEvent(msgType string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, topicLevel(msgType))
}

// SystemStatus returns the retained gateway presence topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// RequestID extracts the final level of a request or response topic.
// It returns "" when topic has no separator.
func (Topics) RequestID(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return ""
}

// topicLevel makes s safe to use as a single topic level.
func topicLevel(s string) string {
	if s == "" {
		return "_"
	}
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '/', '+', '#', ' ':
			b[i] = '_'
		}
	}
	return string(b)
}
