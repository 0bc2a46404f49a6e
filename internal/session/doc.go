// Package session runs the gateway's accept-dispatch-acknowledge loop.
//
// The loop is strictly sequential: one inbound connection, one message,
// at most one outbound ack, then the next accept. It ends when the
// dispatcher has processed a shutdown command (after its ack is sent) or
// when the caller cancels the context.
//
//	loop := session.NewLoop(session.NewChannelTransport(ln, ackCfg), dispatcher)
//	loop.SetLogger(logger)
//	err := loop.Run(ctx)
package session
