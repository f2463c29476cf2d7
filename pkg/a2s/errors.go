package a2s

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimeout is returned when a socket operation does not complete within the configured
	// timeout or the context deadline.
	ErrTimeout = errors.New("a2s: operation timed out")

	// ErrInvalidResponse is returned for an unknown response header or record discriminant,
	// and for a challenge reply that does not start with the challenge marker.
	ErrInvalidResponse = errors.New("a2s: invalid response")

	// ErrMismatchID is returned when a fragment carries a response id different from the one
	// established by the first fragment.
	ErrMismatchID = errors.New("a2s: mismatched fragment id")

	// ErrMalformedPacket is returned for truncated or out of bounds multi-packet envelopes.
	ErrMalformedPacket = errors.New("a2s: malformed packet")

	// ErrDecompressedSize is returned when a compressed response declares a decompressed size
	// above MaxDecompressedSize.
	ErrDecompressedSize = errors.New("a2s: decompressed size exceeds limit")

	// ErrChecksumMismatch is returned when the CRC-32 of a decompressed response does not match
	// the declared checksum.
	ErrChecksumMismatch = errors.New("a2s: decompressed checksum mismatch")
)

// DecodeError reports an enumerated wire byte outside its closed set.
type DecodeError struct {
	Field string
	Value byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("a2s: invalid %s 0x%02x", e.Field, e.Value)
}

// NetworkError wraps a failure reported by the underlying transport.
type NetworkError struct {
	Op   string
	Addr net.Addr
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Addr != nil {
		return fmt.Sprintf("a2s: %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("a2s: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
