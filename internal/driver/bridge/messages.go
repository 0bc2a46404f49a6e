package bridge

import "time"

// Request actions understood by the device bridge.
const (
	ActionProbe    = "probe"
	ActionDescribe = "describe"
	ActionOn       = "on"
	ActionOff      = "off"
	ActionState    = "state"
)

// Request is published to the bridge for every driver call.
// Topic: wemogw/request/{protocol}/{request_id}
type Request struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Address   string    `json:"address"`

	// Port is zero for probe requests.
	Port int `json:"port,omitempty"`

	// ForceRefresh asks the bridge to read the device instead of
	// answering from its own cache. Only meaningful for ActionState.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// Response is the bridge's answer to a Request.
// Topic: wemogw/response/{protocol}/{request_id}
type Response struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`

	// Port answers ActionProbe.
	Port int `json:"port,omitempty"`

	// Name answers ActionDescribe.
	Name string `json:"name,omitempty"`

	// State answers ActionState, and optionally ActionOn/ActionOff.
	State int `json:"state"`

	Error string `json:"error,omitempty"`
}
