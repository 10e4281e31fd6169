// Package tree implements the hierarchical chunking tree (spec §4.4): it
// converts between a flat byte sequence and a Merkle-style tree whose nodes
// live in a refcounted node store, deduplicating both leaf chunks and
// interior subtrees across insertions (ML-CDC, spec §3).
package tree

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/liulcode/sec-cs/internal/cdc"
	"github.com/liulcode/sec-cs/internal/nodestore"
)

// Tree binds a NodeStore to fixed CDC parameters and exposes the three tree
// operations of spec §4.4: Build (put), Read (get), Delete. Node-level
// metrics (insert/fetch/release counts, authenticity failures) are recorded
// once, inside the NodeStore itself, rather than duplicated here.
//
// Every choice recorded here (leaf/internal chunking policy) is fixed at
// construction and never varies at runtime, per spec I3/§4.4.1 "Determinism".
type Tree struct {
	store       *nodestore.NodeStore
	leafCfg     cdc.Config
	internalCfg cdc.Config
	log         *logrus.Logger
}

// New constructs a Tree over store, chunking both leaves and internal
// record streams with cdc.NewConfig(avgChunkSize): chunks of at least
// avgChunkSize/4 and at most 4*avgChunkSize bytes. The average chunk size
// is not avgChunkSize; see cdc.NewConfig.
func New(store *nodestore.NodeStore, avgChunkSize int, logger *logrus.Logger) *Tree {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tree{
		store:       store,
		leafCfg:     cdc.NewConfig(avgChunkSize),
		internalCfg: cdc.NewConfig(avgChunkSize),
		log:         logger,
	}
}

// Build runs the CDC splitter over r, inserts every resulting leaf, and
// folds the entry list upward one ML-CDC level at a time until a single
// root digest remains (spec §4.4.1).
func (t *Tree) Build(ctx context.Context, r io.Reader) (rootDigest []byte, totalLength uint64, err error) {
	splitter := cdc.New(r, t.leafCfg)

	var entries []Entry
	for {
		chunk, serr := splitter.Next()
		if serr == io.EOF {
			break
		}
		if serr != nil {
			return nil, 0, fmt.Errorf("tree: split: %w", serr)
		}

		digest, ierr := t.store.Insert(ctx, leafEncode(chunk))
		if ierr != nil {
			return nil, 0, fmt.Errorf("tree: insert leaf: %w", ierr)
		}
		entries = append(entries, Entry{Digest: digest, Length: uint64(len(chunk))})
		totalLength += uint64(len(chunk))
	}

	if len(entries) == 0 {
		// Zero-length content: a single canonical empty leaf (spec §4.4.1
		// "Degenerate cases").
		digest, ierr := t.store.Insert(ctx, leafEncode(nil))
		if ierr != nil {
			return nil, 0, fmt.Errorf("tree: insert empty leaf: %w", ierr)
		}
		return digest, 0, nil
	}

	for len(entries) > 1 {
		entries, err = t.buildInternalLevel(ctx, entries)
		if err != nil {
			return nil, 0, err
		}
	}

	t.log.WithFields(logrus.Fields{
		"root_digest":  fmt.Sprintf("%x", entries[0].Digest),
		"total_length": totalLength,
	}).Debug("tree: build complete")

	return entries[0].Digest, totalLength, nil
}

func (t *Tree) buildInternalLevel(ctx context.Context, entries []Entry) ([]Entry, error) {
	data, offsets := encodeEntries(entries)
	groupEnds := cdc.AlignBoundaries(data, offsets, t.internalCfg)

	var newEntries []Entry
	byteStart := 0
	entryStart := 0
	offsetIdx := 0

	for _, groupEnd := range groupEnds {
		for offsetIdx < len(offsets) && offsets[offsetIdx] != groupEnd {
			offsetIdx++
		}
		if offsetIdx >= len(offsets) {
			return nil, fmt.Errorf("tree: internal group boundary %d is not an entry offset", groupEnd)
		}

		node := internalEncode(data[byteStart:groupEnd])
		digest, err := t.store.Insert(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("tree: insert internal node: %w", err)
		}

		var groupLength uint64
		for _, e := range entries[entryStart : offsetIdx+1] {
			groupLength += e.Length
		}
		newEntries = append(newEntries, Entry{Digest: digest, Length: groupLength})

		byteStart = groupEnd
		entryStart = offsetIdx + 1
		offsetIdx++
	}

	return newEntries, nil
}

// Read walks the tree rooted at rootDigest (whose total length is
// totalLength) and returns the bytes in [start, end), touching only the
// O(log L + (end-start)/c) nodes that overlap the requested range (spec
// §4.4.2, §8 P7).
func (t *Tree) Read(ctx context.Context, rootDigest []byte, totalLength uint64, start, end int64) ([]byte, error) {
	if start < 0 {
		start = 0
	}
	if end > int64(totalLength) {
		end = int64(totalLength)
	}
	if start >= end && totalLength > 0 {
		return []byte{}, nil
	}
	// For zero-length content, start==end==0 but the canonical empty leaf
	// must still be fetched and verified so a tampered root is still
	// detected (spec I5, P5) even though no bytes are returned.
	out, err := t.readNode(ctx, rootDigest, 0, int64(totalLength), start, end)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return []byte{}, nil
	}
	return out, nil
}

func (t *Tree) readNode(ctx context.Context, digest []byte, nodeOffset, nodeLen, start, end int64) ([]byte, error) {
	plaintext, err := t.store.Fetch(ctx, digest)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("tree: empty node plaintext")
	}
	tag, payload := plaintext[0], plaintext[1:]

	switch tag {
	case tagLeaf:
		lo := max(start, nodeOffset) - nodeOffset
		hi := min(end, nodeOffset+nodeLen) - nodeOffset
		if lo >= hi {
			return nil, nil
		}
		return payload[lo:hi], nil

	case tagInternal:
		entries, derr := decodeEntries(payload)
		if derr != nil {
			return nil, fmt.Errorf("tree: decode internal node: %w", derr)
		}
		var out []byte
		offset := nodeOffset
		for _, e := range entries {
			childLen := int64(e.Length)
			childEnd := offset + childLen
			if childEnd > start && offset < end {
				childBytes, rerr := t.readNode(ctx, e.Digest, offset, childLen, start, end)
				if rerr != nil {
					return nil, rerr
				}
				out = append(out, childBytes...)
			}
			offset = childEnd
		}
		return out, nil

	default:
		return nil, fmt.Errorf("tree: unknown node tag 0x%02x", tag)
	}
}

// Delete releases every node reachable from rootDigest exactly once,
// children before their parent (spec §4.4.3). It is not idempotent: a
// second Delete of the same root fails with nodestore.ErrNotFound once the
// tree's nodes have already been released once.
func (t *Tree) Delete(ctx context.Context, rootDigest []byte) error {
	if err := t.deleteNode(ctx, rootDigest); err != nil {
		return err
	}
	t.log.WithField("root_digest", fmt.Sprintf("%x", rootDigest)).Debug("tree: delete complete")
	return nil
}

func (t *Tree) deleteNode(ctx context.Context, digest []byte) error {
	plaintext, err := t.store.Fetch(ctx, digest)
	if err != nil {
		return err
	}
	if len(plaintext) == 0 {
		return fmt.Errorf("tree: empty node plaintext")
	}
	tag, payload := plaintext[0], plaintext[1:]

	if tag == tagInternal {
		entries, derr := decodeEntries(payload)
		if derr != nil {
			return fmt.Errorf("tree: decode internal node: %w", derr)
		}
		for _, e := range entries {
			if err := t.deleteNode(ctx, e.Digest); err != nil {
				return err
			}
		}
	}

	return t.store.Release(ctx, digest)
}
