package fake

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/dsnet/compress/bzip2"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

var singleHeader = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// Single frames payload as a single-packet response.
func Single(payload []byte) []byte {
	return append(append([]byte{}, singleHeader...), payload...)
}

// Split frames payload as a multi-packet response with the given response id, cutting it into
// fragments of at most switchSize bytes. When compress is set the framed payload is bzip2
// compressed, the id gets its high bit and fragment 0 carries the size and CRC-32 header.
func Split(payload []byte, id uint32, switchSize int, compress bool) ([][]byte, error) {
	if switchSize <= 0 {
		return nil, fmt.Errorf("fake: invalid switch size %d", switchSize)
	}

	data := Single(payload)
	var size, checksum uint32

	if compress {
		size = uint32(len(data))
		checksum = crc32.ChecksumIEEE(data)

		var buf bytes.Buffer
		zw, err := bzip2.NewWriter(&buf, nil)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}

		data = buf.Bytes()
		id |= 0x80000000
	} else {
		id &^= 0x80000000
	}

	total := (len(data) + switchSize - 1) / switchSize
	if total == 0 {
		total = 1
	}
	if total > a2s.MaxFragments {
		return nil, fmt.Errorf("fake: payload needs %d fragments, limit is %d", total, a2s.MaxFragments)
	}

	datagrams := make([][]byte, 0, total)
	for n := 0; n < total; n++ {
		chunk := data[n*switchSize : min((n+1)*switchSize, len(data))]

		d := make([]byte, 0, 20+len(chunk))
		d = binary.LittleEndian.AppendUint32(d, 0xFFFFFFFE)
		d = binary.LittleEndian.AppendUint32(d, id)
		d = append(d, byte(total), byte(n))
		d = binary.LittleEndian.AppendUint16(d, uint16(switchSize))
		if compress && n == 0 {
			d = binary.LittleEndian.AppendUint32(d, size)
			d = binary.LittleEndian.AppendUint32(d, checksum)
		}
		d = append(d, chunk...)

		datagrams = append(datagrams, d)
	}

	return datagrams, nil
}

// Challenge frames a challenge reply carrying token.
func Challenge(token int32) []byte {
	return Single(binary.LittleEndian.AppendUint32([]byte{'A'}, uint32(token)))
}
