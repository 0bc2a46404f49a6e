// Package channel provides the authenticated local transport between the
// gateway and its sibling processes.
//
// Each connection carries whole envelopes. An envelope holds the message
// reference number and the encoded message text. Envelopes travel inside
// frames with a 4-byte big-endian length prefix:
//
//	+--------+--------+-----------+------+
//	| size   | reflen | ref       | body |
//	| uint32 | uint16 | reflen B  |      |
//	+--------+--------+-----------+------+
//
// # Authentication
//
// Both ends share a pre-key. On accept the server sends a random 32-byte
// challenge; the client returns a keyed BLAKE3 MAC of it under a key
// derived from the shared secret. The server compares in constant time
// and answers with a welcome or failure token before any envelope moves.
//
// # Usage
//
//	ln, err := channel.Listen(channel.Config{Host: "localhost", Port: 6013, AuthKey: key})
//	conn, err := ln.Accept(ctx)
//	env, err := conn.Receive()
//	conn.Close()
//
//	out, err := channel.Dial(ctx, channel.Config{Host: "localhost", Port: 6010, AuthKey: key})
//	err = out.Send(channel.Envelope{Ref: "42", Body: ack.Bytes()})
package channel
