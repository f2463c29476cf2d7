package a2s

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"sort"

	"github.com/dsnet/compress/bzip2"
)

// reassembly collects the fragments of one multi-packet response.
type reassembly struct {
	fragments []fragment
	seen      [MaxFragments]bool
	id        uint32
	total     int
}

// newReassembly starts a reassembly from the first fragment received, enforcing the envelope
// bounds before anything is buffered.
func newReassembly(first fragment, maxPacketSize int) (*reassembly, error) {
	if first.total == 0 || int(first.total) > MaxFragments {
		return nil, fmt.Errorf("%w: fragment total %d out of range 1..%d", ErrMalformedPacket, first.total, MaxFragments)
	}
	if int(first.switchSize) > maxPacketSize {
		return nil, fmt.Errorf("%w: switch size %d exceeds %d", ErrMalformedPacket, first.switchSize, maxPacketSize)
	}

	r := &reassembly{
		id:        first.id,
		total:     int(first.total),
		fragments: make([]fragment, 0, first.total),
	}
	if _, err := r.add(first); err != nil {
		return nil, err
	}

	return r, nil
}

// add stores f and reports whether every fragment has been collected. Fragments whose
// ordinal was already seen are ignored.
func (r *reassembly) add(f fragment) (bool, error) {
	if f.id != r.id {
		return false, fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrMismatchID, f.id, r.id)
	}
	if int(f.number) >= r.total {
		return false, fmt.Errorf("%w: fragment number %d of %d", ErrMalformedPacket, f.number, r.total)
	}

	if !r.seen[f.number] {
		r.seen[f.number] = true
		r.fragments = append(r.fragments, f)
	}

	return r.complete(), nil
}

func (r *reassembly) complete() bool {
	return len(r.fragments) == r.total
}

// concat joins the fragment payloads in ordinal order, whatever order they arrived in.
func (r *reassembly) concat() []byte {
	sort.Slice(r.fragments, func(i, j int) bool {
		return r.fragments[i].number < r.fragments[j].number
	})

	size := 0
	for _, f := range r.fragments {
		size += len(f.payload)
	}

	data := make([]byte, 0, size)
	for _, f := range r.fragments {
		data = append(data, f.payload...)
	}

	return data
}

// payload returns the reassembled response: concatenated, decompressed when the response id
// is flagged, and stripped of the leading single-packet header carried by fragment 0.
func (r *reassembly) payload() ([]byte, error) {
	if !r.complete() {
		return nil, fmt.Errorf("%w: %d of %d fragments", ErrMalformedPacket, len(r.fragments), r.total)
	}

	data := r.concat()

	if r.id&compressedFlag != 0 {
		head := r.fragments[0]
		var err error
		if data, err = decompress(data, head.decompressedSize, head.checksum); err != nil {
			return nil, err
		}
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("%w: reassembled payload of %d bytes", ErrMalformedPacket, len(data))
	}

	return data[4:], nil
}

// decompress inflates a bzip2 payload into a buffer of exactly size bytes and verifies its
// CRC-32. The size bound is checked before allocating.
func decompress(data []byte, size, checksum uint32) ([]byte, error) {
	if size > MaxDecompressedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDecompressedSize, size)
	}

	zr, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", ErrMalformedPacket, err)
	}
	defer func() { _ = zr.Close() }()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", ErrMalformedPacket, err)
	}

	if sum := crc32.ChecksumIEEE(out); sum != checksum {
		return nil, fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrChecksumMismatch, sum, checksum)
	}

	return out, nil
}
