package a2s

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// reader is a little-endian cursor over a reassembled payload.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

// remaining returns the number of unread bytes.
func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

// next consumes n bytes or fails with io.ErrUnexpectedEOF naming the field.
func (r *reader) next(n int, field string) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("a2s: reading %s at offset %d: %w", field, r.pos, io.ErrUnexpectedEOF)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint8(field string) (uint8, error) {
	b, err := r.next(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) bool(field string) (bool, error) {
	v, err := r.uint8(field)
	return v != 0, err
}

func (r *reader) uint16(field string) (uint16, error) {
	b, err := r.next(2, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32(field string) (uint32, error) {
	b, err := r.next(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) int32(field string) (int32, error) {
	v, err := r.uint32(field)
	return int32(v), err
}

func (r *reader) uint64(field string) (uint64, error) {
	b, err := r.next(8, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) float32(field string) (float32, error) {
	v, err := r.uint32(field)
	return math.Float32frombits(v), err
}

// string reads a null-terminated string. A string running to the end of the buffer without a
// terminator is returned as scanned; only a read starting at the end of the buffer fails.
// Invalid UTF-8 is replaced with U+FFFD.
func (r *reader) string(field string) (string, error) {
	if r.remaining() == 0 {
		return "", fmt.Errorf("a2s: reading %s at offset %d: %w", field, r.pos, io.ErrUnexpectedEOF)
	}

	rest := r.buf[r.pos:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		r.pos = len(r.buf)
		return strings.ToValidUTF8(string(rest), "\uFFFD"), nil
	}

	r.pos += end + 1
	return strings.ToValidUTF8(string(rest[:end]), "\uFFFD"), nil
}

// writer builds little-endian payloads for the record encoders.
type writer struct {
	buf []byte
}

func (w *writer) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) bool(v bool) {
	if v {
		w.uint8(1)
		return
	}
	w.uint8(0)
}

func (w *writer) uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) int32(v int32) {
	w.uint32(uint32(v))
}

func (w *writer) uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) float32(v float32) {
	w.uint32(math.Float32bits(v))
}

func (w *writer) string(v string) {
	w.buf = append(w.buf, v...)
	w.buf = append(w.buf, 0)
}

func (w *writer) bytes() []byte {
	return w.buf
}
