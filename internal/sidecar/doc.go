// Package sidecar runs a helper process alongside the gateway and keeps
// it alive.
//
// The gateway uses it to launch the MQTT device bridge when the bridge is
// deployed on the same host rather than as its own service. A crashed
// process is restarted with exponential backoff; a process that stays up
// past the stable threshold resets the backoff. Stop, or cancelling the
// context passed to Start, sends SIGTERM to the process group and SIGKILL
// after the grace period.
//
//	sv := sidecar.New(sidecar.Config{Name: "wemo-bridge", Command: []string{"wemo-bridge", "--broker", "localhost"}})
//	sv.SetLogger(logger)
//	if err := sv.Start(ctx); err != nil { ... }
//	defer sv.Stop()
package sidecar
