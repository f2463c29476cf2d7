package a2s

import (
	"encoding/binary"
	"fmt"
)

const (
	// DefaultMaxPacketSize is the default maximum datagram size accepted from a server.
	DefaultMaxPacketSize = 1400

	// MaxFragments is the largest fragment count accepted for a multi-packet response.
	MaxFragments = 32

	// MaxDecompressedSize is the largest decompressed size accepted for a compressed response.
	MaxDecompressedSize = 1 << 20

	singlePacket int32 = -1
	multiPacket  int32 = -2

	// header(4) + id(4) + total(1)
	minEnvelopeSize = 9

	compressedFlag uint32 = 0x80000000
)

// Request kinds and response discriminants.
const (
	requestPlayers byte = 0x55
	requestRules   byte = 0x56

	responseChallenge byte = 'A'
	responseInfo      byte = 0x49
	responsePlayers   byte = 0x44
	responseRules     byte = 0x45
)

var (
	infoRequest    = []byte("\xFF\xFF\xFF\xFFTSource Engine Query\x00")
	playersRequest = []byte{0xFF, 0xFF, 0xFF, 0xFF, requestPlayers}
	rulesRequest   = []byte{0xFF, 0xFF, 0xFF, 0xFF, requestRules}

	// noChallenge is the token sent before the server has issued one.
	noChallenge int32 = -1
)

// withChallenge returns a copy of base followed by the little-endian challenge token.
func withChallenge(base []byte, challenge int32) []byte {
	q := make([]byte, 0, len(base)+4)
	q = append(q, base...)
	return binary.LittleEndian.AppendUint32(q, uint32(challenge))
}

// fragment is one datagram of a multi-packet response.
type fragment struct {
	id         uint32
	total      uint8
	number     uint8
	switchSize uint16

	// Set on fragment 0 of a compressed response only.
	decompressedSize uint32
	checksum         uint32

	payload []byte
}

func (f fragment) compressed() bool {
	return f.id&compressedFlag != 0
}

// responseHeader returns the leading int32 of a datagram.
func responseHeader(datagram []byte) (int32, error) {
	if len(datagram) < 4 {
		return 0, fmt.Errorf("%w: datagram of %d bytes", ErrMalformedPacket, len(datagram))
	}
	return int32(binary.LittleEndian.Uint32(datagram)), nil
}

// parseFragment decodes a multi-packet datagram, including its -2 header. The payload
// aliases datagram.
func parseFragment(datagram []byte) (fragment, error) {
	var f fragment

	if len(datagram) < minEnvelopeSize {
		return f, fmt.Errorf("%w: fragment of %d bytes", ErrMalformedPacket, len(datagram))
	}

	r := newReader(datagram)
	header, _ := r.int32("header")
	if header != multiPacket {
		return f, fmt.Errorf("%w: fragment header %d", ErrInvalidResponse, header)
	}

	f.id, _ = r.uint32("fragment id")
	f.total, _ = r.uint8("fragment total")

	var err error
	if f.number, err = r.uint8("fragment number"); err != nil {
		return f, malformed(err)
	}
	if f.switchSize, err = r.uint16("switch size"); err != nil {
		return f, malformed(err)
	}

	if f.compressed() && f.number == 0 {
		if f.decompressedSize, err = r.uint32("decompressed size"); err != nil {
			return f, malformed(err)
		}
		if f.checksum, err = r.uint32("checksum"); err != nil {
			return f, malformed(err)
		}
	}

	f.payload = datagram[r.pos:]
	return f, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
}
