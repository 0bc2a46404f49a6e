// Package message implements the flat six-field text codec spoken on the
// gateway's inter-process channel.
//
// A message is:
//
//	source,dest,type,name,state,payload
//
// Ports are validated on assignment and must lie in [6000, 7000). A
// rejected assignment leaves the field unchanged. The payload is the last
// field and is never split, so it may carry comma-separated arguments:
//
//	m, err := message.DecodeString("6010,6013,162,,,lamp,192.168.86.25")
//	// m.Payload == "lamp,192.168.86.25"
//
// Acknowledgements reuse the request code with an "A" suffix and are
// built with NewAck.
package message
