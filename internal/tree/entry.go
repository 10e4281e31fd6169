package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/liulcode/sec-cs/internal/seccrypto"
)

const (
	tagLeaf     byte = 0x00
	tagInternal byte = 0x01
)

// Entry is one ⟨child_digest, subtree_length⟩ pair, as carried by an
// internal node's payload (spec §3, §6).
type Entry struct {
	Digest []byte
	Length uint64
}

func leafEncode(chunk []byte) []byte {
	out := make([]byte, 1+len(chunk))
	out[0] = tagLeaf
	copy(out[1:], chunk)
	return out
}

func internalEncode(entryBytes []byte) []byte {
	out := make([]byte, 1+len(entryBytes))
	out[0] = tagInternal
	copy(out[1:], entryBytes)
	return out
}

// encodeEntries serializes an ordered entry list as ⟨digest⟩‖⟨varint
// length⟩ records (spec §6), returning the concatenated bytes and, for each
// entry, the cumulative byte offset immediately following it — the entry
// boundaries that cdc.AlignBoundaries snaps its cuts to.
func encodeEntries(entries []Entry) (data []byte, offsets []int) {
	offsets = make([]int, len(entries))
	var buf []byte
	for i, e := range entries {
		buf = append(buf, e.Digest...)
		buf = binary.AppendUvarint(buf, e.Length)
		offsets[i] = len(buf)
	}
	return buf, offsets
}

func decodeEntries(payload []byte) ([]Entry, error) {
	var entries []Entry
	i := 0
	for i < len(payload) {
		if i+seccrypto.DigestSize > len(payload) {
			return nil, fmt.Errorf("tree: truncated entry digest at offset %d", i)
		}
		digest := make([]byte, seccrypto.DigestSize)
		copy(digest, payload[i:i+seccrypto.DigestSize])
		i += seccrypto.DigestSize

		length, n := binary.Uvarint(payload[i:])
		if n <= 0 {
			return nil, fmt.Errorf("tree: invalid varint length at offset %d", i)
		}
		i += n

		entries = append(entries, Entry{Digest: digest, Length: length})
	}
	return entries, nil
}
