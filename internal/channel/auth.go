package channel

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Handshake tokens. The server speaks first with a challenge; the client
// proves the shared key by returning a keyed BLAKE3 MAC of it.
const (
	challengeSize = 32
	macSize       = 32

	// handshakeFrameLimit bounds every frame read during the handshake.
	handshakeFrameLimit = 128

	// keyContext domain-separates the derived MAC key from any other use
	// of the same shared secret.
	keyContext = "wemo-gateway channel auth v1"
)

var (
	challengePrefix = []byte("#CHALLENGE#")
	welcomeToken    = []byte("#WELCOME#")
	failureToken    = []byte("#FAILURE#")
)

// deriveKey turns an arbitrary-length shared secret into a 32-byte MAC key.
func deriveKey(secret []byte) []byte {
	key := make([]byte, macSize)
	blake3.DeriveKey(keyContext, secret, key)
	return key
}

// computeMAC returns the keyed BLAKE3 digest of challenge.
func computeMAC(key, challenge []byte) ([]byte, error) {
	h, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, fmt.Errorf("keyed hash: %w", err)
	}
	_, _ = h.Write(challenge)
	return h.Sum(nil), nil
}

// serverHandshake challenges the connecting peer and verifies its answer.
//
// The peer is told whether it passed so a rejected client fails fast
// instead of sending into a closed socket.
func serverHandshake(rw io.ReadWriter, key []byte) error {
	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	if err := writeFrame(rw, append(bytes.Clone(challengePrefix), challenge...)); err != nil {
		return fmt.Errorf("send challenge: %w", err)
	}

	answer, err := readFrame(rw, handshakeFrameLimit)
	if err != nil {
		return fmt.Errorf("%w: read answer: %w", ErrAuthFailed, err)
	}

	expected, err := computeMAC(key, challenge)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(expected, answer) != 1 {
		_ = writeFrame(rw, failureToken)
		return fmt.Errorf("%w: digest mismatch", ErrAuthFailed)
	}

	if err := writeFrame(rw, welcomeToken); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

// clientHandshake answers the server's challenge and waits for the verdict.
func clientHandshake(rw io.ReadWriter, key []byte) error {
	frame, err := readFrame(rw, handshakeFrameLimit)
	if err != nil {
		return fmt.Errorf("%w: read challenge: %w", ErrAuthFailed, err)
	}

	challenge, ok := bytes.CutPrefix(frame, challengePrefix)
	if !ok || len(challenge) != challengeSize {
		return fmt.Errorf("%w: malformed challenge", ErrAuthFailed)
	}

	answer, err := computeMAC(key, challenge)
	if err != nil {
		return err
	}
	if err := writeFrame(rw, answer); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}

	verdict, err := readFrame(rw, handshakeFrameLimit)
	if err != nil {
		return fmt.Errorf("%w: read verdict: %w", ErrAuthFailed, err)
	}
	if !bytes.Equal(verdict, welcomeToken) {
		return fmt.Errorf("%w: rejected by peer", ErrAuthFailed)
	}
	return nil
}
