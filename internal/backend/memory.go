package backend

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process, map-backed Backend. It is the default
// backend for tests and for callers that don't need durability across
// process restarts.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *MemoryBackend) Put(_ context.Context, key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[string(key)] = cp
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[string(key)]; !ok {
		return ErrNotFound
	}
	delete(b.data, string(key))
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

// Len reports the number of entries currently stored. Tests use this to
// assert backend growth/shrinkage directly (spec §8 P3/P4/S1-S5).
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// TotalBytes reports the sum of stored value lengths, used by dedup-bound
// assertions (spec §8 P4, S4).
func (b *MemoryBackend) TotalBytes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, v := range b.data {
		total += len(v)
	}
	return total
}

// Snapshot returns a defensive copy of the backend's contents, used to
// assert byte-identical before/after state (spec §8 P3).
func (b *MemoryBackend) Snapshot() map[string][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]byte, len(b.data))
	for k, v := range b.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// MutateValue corrupts a single byte of the stored value for key, used by
// tamper-detection tests (spec §8 P5, S6). The stored layout is an 8-byte
// refcount prefix followed by the ciphertext (nodestore.encodeEntry), so the
// flipped byte must land inside the ciphertext region or the corruption goes
// unnoticed. It returns false if key is absent or its value has no
// ciphertext bytes to corrupt.
func (b *MemoryBackend) MutateValue(key []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[string(key)]
	if !ok || len(v) <= 8 {
		return false
	}
	v[len(v)-1] ^= 0xFF
	return true
}

// Keys returns a snapshot of all stored keys, used by tests that need to
// pick an arbitrary entry to tamper with.
func (b *MemoryBackend) Keys() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]byte, 0, len(b.data))
	for k := range b.data {
		out = append(out, []byte(k))
	}
	return out
}
