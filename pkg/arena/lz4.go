package arena

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Section encodings. A section is one marker byte followed by the payload.
const (
	sectionRaw byte = 0
	sectionLZ4 byte = 1
)

const handleBytes = 4

// compressSection compresses data with an LZ4 block. Incompressible input is
// stored raw, since CompressBlock reports zero bytes written for it.
func compressSection(data []byte) []byte {
	out := make([]byte, 1+lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, out[1:], nil)
	if err != nil || written == 0 || written >= len(data) {
		raw := make([]byte, 1+len(data))
		raw[0] = sectionRaw
		copy(raw[1:], data)

		return raw
	}

	out[0] = sectionLZ4

	return out[:1+written]
}

// decompressSection restores a section into dst, which must have the exact
// uncompressed length.
func decompressSection(section, dst []byte) error {
	if len(section) == 0 {
		return fmt.Errorf("%w: empty section", ErrCorrupt)
	}

	switch section[0] {
	case sectionRaw:
		if len(section)-1 != len(dst) {
			return fmt.Errorf("%w: raw section holds %d bytes, want %d", ErrCorrupt, len(section)-1, len(dst))
		}

		copy(dst, section[1:])
	case sectionLZ4:
		written, err := lz4.UncompressBlock(section[1:], dst)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		if written != len(dst) {
			return fmt.Errorf("%w: section inflated to %d bytes, want %d", ErrCorrupt, written, len(dst))
		}
	default:
		return fmt.Errorf("%w: unknown section marker %d", ErrCorrupt, section[0])
	}

	return nil
}

// maxSectionLen bounds a stored section holding rawLen bytes.
func maxSectionLen(rawLen int) int {
	return 1 + max(rawLen, lz4.CompressBlockBound(rawLen))
}

func encodeHandles(handles []Handle) []byte {
	out := make([]byte, len(handles)*handleBytes)

	for idx, h := range handles {
		putHandle(out[idx*handleBytes:], h)
	}

	return out
}

func decodeHandles(data []byte) []Handle {
	handles := make([]Handle, len(data)/handleBytes)

	for idx := range handles {
		handles[idx] = handleAt(data[idx*handleBytes:])
	}

	return handles
}

// appendUvarint is shorthand for the framing used by WriteTo.
func appendUvarint(dst []byte, v int) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}
