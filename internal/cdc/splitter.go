// Package cdc implements content-defined chunking: deterministic boundary
// selection over a byte stream using a rolling hash, bounded by a min/max
// policy, plus an entry-aligned variant for chunking a record stream (used by
// the tree builder's ML-CDC internal levels).
package cdc

import (
	"bytes"
	"io"

	"github.com/restic/chunker"
)

// defaultPolynomial was selected (by the polynomial generation process
// restic/chunker itself documents) for an average chunk size around 1MiB; it
// is fixed at compile time so that two stores built with the same Config
// always derive the same boundaries. Per spec §4.1's design note, this value
// must never be regenerated at runtime.
const defaultPolynomial = chunker.Pol(0x3DA3358B4DC173)

// Config fixes the chunking policy for one tree level. It must be recorded
// by the caller (alongside the store's other construction parameters) so
// that reads reproduce the exact boundaries a prior put produced.
type Config struct {
	Min  uint
	Max  uint
	Poly chunker.Pol
}

// NewConfig derives a Config from a target chunk size c, following the
// bounds cmin = c/4, cmax = 4c from spec §3. Only Min and Max depend on c:
// the rolling-hash cut mask stays at restic/chunker's default (about 1MiB
// on average), so whenever Max is far below that, most chunks end at Max
// rather than at a content-defined cut, and chunks average close to Max.
func NewConfig(avg int) Config {
	a := uint(avg)
	return Config{
		Min:  a / 4,
		Max:  a * 4,
		Poly: defaultPolynomial,
	}
}

// Splitter is a pull-based iterator over chunk boundaries, so that very
// large contents never need to be held in memory at once (spec §9 "Laziness
// of chunking").
type Splitter struct {
	ck *chunker.Chunker
}

// New returns a Splitter over r using cfg's policy.
func New(r io.Reader, cfg Config) *Splitter {
	return &Splitter{ck: chunker.NewWithBoundaries(r, cfg.Poly, cfg.Min, cfg.Max)}
}

// Next returns the next chunk's bytes in input order, or io.EOF once the
// stream is exhausted. The returned slice is only valid until the next call
// to Next.
func (s *Splitter) Next() ([]byte, error) {
	chunk, err := s.ck.Next(nil)
	if err != nil {
		return nil, err
	}
	return chunk.Data, nil
}

// AlignBoundaries runs the CDC rolling hash over data to obtain raw cut
// offsets, then snaps each one up to the nearest following entry boundary in
// entryOffsets (the cumulative end offset of each record). This implements
// spec §4.4.1 step 2b: the splitter is constrained to emit boundaries only
// at entry ends, while the rolling-hash comparison still runs over the full
// byte stream so that content-defined dedup of the record stream survives
// small edits to earlier levels.
//
// entryOffsets must be strictly increasing and its last element must equal
// len(data). The returned slice is a strictly increasing list of group-end
// offsets, a subset of entryOffsets, always ending in len(data).
func AlignBoundaries(data []byte, entryOffsets []int, cfg Config) []int {
	if len(entryOffsets) == 0 {
		return nil
	}
	if len(entryOffsets) == 1 {
		return []int{entryOffsets[0]}
	}

	s := New(bytes.NewReader(data), cfg)
	var rawCuts []int
	offset := 0
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		offset += len(chunk)
		rawCuts = append(rawCuts, offset)
	}

	var groups []int
	entryIdx := 0
	for _, cut := range rawCuts {
		for entryIdx < len(entryOffsets) && entryOffsets[entryIdx] < cut {
			entryIdx++
		}
		if entryIdx >= len(entryOffsets) {
			break
		}
		end := entryOffsets[entryIdx]
		if len(groups) == 0 || groups[len(groups)-1] < end {
			groups = append(groups, end)
		}
		entryIdx++
	}
	if len(groups) == 0 || groups[len(groups)-1] != entryOffsets[len(entryOffsets)-1] {
		groups = append(groups, entryOffsets[len(entryOffsets)-1])
	}
	return groups
}
