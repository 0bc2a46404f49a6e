package channel

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Frame and envelope header sizes.
const (
	// frameHeaderSize is the big-endian uint32 length prefix.
	frameHeaderSize = 4

	// refHeaderSize is the big-endian uint16 reference length.
	refHeaderSize = 2

	// DefaultMaxFrameSize bounds inbound frames when no limit is configured.
	DefaultMaxFrameSize = 64 * 1024
)

// Envelope is one unit of transfer on the channel.
//
// Wire format (inside a frame):
//
//	Byte 0-1: reference length N (big-endian)
//	Byte 2..: reference (N bytes)
//	Rest:     body (the encoded message text)
type Envelope struct {
	Ref  string
	Body []byte
}

// encodeEnvelope serialises an envelope into frame payload bytes.
func encodeEnvelope(env Envelope) ([]byte, error) {
	if len(env.Ref) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrRefTooLong, len(env.Ref))
	}

	buf := make([]byte, refHeaderSize+len(env.Ref)+len(env.Body))
	binary.BigEndian.PutUint16(buf[:refHeaderSize], uint16(len(env.Ref))) //nolint:gosec // bounded above
	copy(buf[refHeaderSize:], env.Ref)
	copy(buf[refHeaderSize+len(env.Ref):], env.Body)
	return buf, nil
}

// decodeEnvelope parses frame payload bytes into an envelope.
func decodeEnvelope(data []byte) (Envelope, error) {
	if len(data) < refHeaderSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidEnvelope, len(data), refHeaderSize)
	}

	refLen := int(binary.BigEndian.Uint16(data[:refHeaderSize]))
	if len(data) < refHeaderSize+refLen {
		return Envelope{}, fmt.Errorf("%w: reference length %d exceeds frame", ErrInvalidEnvelope, refLen)
	}

	body := make([]byte, len(data)-refHeaderSize-refLen)
	copy(body, data[refHeaderSize+refLen:])

	return Envelope{
		Ref:  string(data[refHeaderSize : refHeaderSize+refLen]),
		Body: body,
	}, nil
}

// writeFrame writes a length-prefixed frame.
func writeFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:frameHeaderSize], uint32(len(payload))) //nolint:gosec // bounded above
	copy(buf[frameHeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame of at most maxSize bytes.
//
// An oversized frame is fatal for the connection: the remaining bytes
// cannot be skipped safely, so the caller must close it.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame size: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(maxSize) { //nolint:gosec // maxSize is positive
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}
