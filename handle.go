package seccs

import (
	"encoding/binary"

	"github.com/liulcode/sec-cs/internal/seccrypto"
)

// lengthWidth is the width, in bytes, of the big-endian content length
// suffix appended to a root digest to form a Handle (spec §4.5, §6).
const lengthWidth = 8

// handleSize is the fixed encoded length of every Handle this store
// produces: digest_size + 8 (spec §6).
const handleSize = seccrypto.DigestSize + lengthWidth

// Handle is the caller-visible identifier returned by PutContent: a root
// digest concatenated with the total content length, encoded as opaque
// bytes of fixed length digest_size + 8 (spec §4.5).
type Handle []byte

func newHandle(digest []byte, length uint64) Handle {
	h := make(Handle, handleSize)
	copy(h, digest)
	binary.BigEndian.PutUint64(h[seccrypto.DigestSize:], length)
	return h
}

// DecodeHandle validates and parses an opaque Handle, returning
// ErrInvalidHandle when b's length does not equal digest_size + 8 (spec §9
// Open Question: truncated handles fail closed).
func DecodeHandle(b []byte) (Handle, error) {
	if len(b) != handleSize {
		return nil, ErrInvalidHandle
	}
	h := make(Handle, handleSize)
	copy(h, b)
	return h, nil
}

// Digest returns the root digest component of the handle.
func (h Handle) Digest() []byte {
	return []byte(h[:seccrypto.DigestSize])
}

// Length returns the total content length component of the handle.
func (h Handle) Length() uint64 {
	return binary.BigEndian.Uint64(h[seccrypto.DigestSize:])
}

// Bytes returns the handle's opaque wire encoding.
func (h Handle) Bytes() []byte {
	return []byte(h)
}
