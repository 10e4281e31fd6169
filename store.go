// Package seccs implements a secure, deduplicating, content-addressable
// store layered over an untrusted key-value backend. See spec.md and
// SPEC_FULL.md for the full specification; this file implements the façade
// (component E, spec §4.5) binding the CDC splitter, crypto wrapper,
// refcounted node store, and tree builder/reader into put_content,
// get_content, and delete_content.
package seccs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liulcode/sec-cs/internal/backend"
	"github.com/liulcode/sec-cs/internal/metrics"
	"github.com/liulcode/sec-cs/internal/nodestore"
	"github.com/liulcode/sec-cs/internal/seccrypto"
	"github.com/liulcode/sec-cs/internal/tree"
)

// Backend is the key-value contract the Store assumes (spec §6): get/put/
// delete over fixed-width digest keys and opaque byte values, with atomic
// single-key operations and no iteration required.
type Backend = backend.Backend

// Wrapper is the crypto wrapper contract (spec §4.2): deterministic,
// authenticated wrap/unwrap binding a content digest to its ciphertext.
type Wrapper = seccrypto.Wrapper

// NewWrapper derives a Wrapper's subkeys from a 32-byte master key.
func NewWrapper(masterKey []byte) (*Wrapper, error) {
	return seccrypto.NewWrapper(masterKey)
}

// NewWrapperFromPassphrase derives a Wrapper from a passphrase via Argon2id.
func NewWrapperFromPassphrase(passphrase, salt []byte, time, memoryKB uint32, threads uint8) (*Wrapper, error) {
	return seccrypto.NewWrapperFromPassphrase(passphrase, salt, time, memoryKB, threads)
}

// Store is a deduplicating, content-addressable store (spec §1). Its
// construction parameters — average chunk size, backend, and crypto
// wrapper — are frozen for the Store's lifetime (spec §6).
type Store struct {
	tree    *tree.Tree
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// NewStore constructs a Store with average chunk size avgChunkSize bytes,
// persisting nodes through backend and addressing/encrypting them with
// wrapper. avgChunkSize must be positive.
func NewStore(avgChunkSize int, backend Backend, wrapper *Wrapper, opts ...Option) (*Store, error) {
	if avgChunkSize <= 0 {
		return nil, fmt.Errorf("sec-cs: average chunk size must be positive, got %d", avgChunkSize)
	}
	if backend == nil {
		return nil, fmt.Errorf("sec-cs: backend must not be nil")
	}
	if wrapper == nil {
		return nil, fmt.Errorf("sec-cs: wrapper must not be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var m *metrics.Metrics
	if cfg.registry != nil {
		m = metrics.New(cfg.registry)
	}

	ns := nodestore.New(backend, wrapper, cfg.logger, m)
	t := tree.New(ns, avgChunkSize, cfg.logger)

	return &Store{tree: t, log: cfg.logger, metrics: m}, nil
}

// PutContent deterministically builds the dedup tree for data and returns
// its Handle (spec I3: same bytes always yield the same handle).
func (s *Store) PutContent(ctx context.Context, data []byte) (Handle, error) {
	start := time.Now()
	root, length, err := s.tree.Build(ctx, bytes.NewReader(data))
	if err != nil {
		s.metrics.ObserveContentOp("put", "error", time.Since(start).Seconds())
		s.log.WithError(err).Error("sec-cs: put_content failed")
		return nil, translateErr("put_content", err)
	}
	s.metrics.ObserveContentOp("put", "ok", time.Since(start).Seconds())
	s.log.WithFields(logrus.Fields{
		"digest": fmt.Sprintf("%x", root),
		"length": length,
	}).Debug("sec-cs: put_content")
	return newHandle(root, length), nil
}

// GetContent returns the exact bytes previously put under handle, or
// ErrAuthenticity if any reachable node has been tampered with, or
// ErrNotFound if a reachable node is missing from the backend.
func (s *Store) GetContent(ctx context.Context, handle Handle) ([]byte, error) {
	if len(handle) != handleSize {
		return nil, ErrInvalidHandle
	}
	return s.GetContentRange(ctx, handle, 0, int64(handle.Length()))
}

// GetContentRange returns the bytes of handle's content in [start, end),
// touching only the nodes that overlap the requested range (spec §4.4.2,
// §8 P7).
func (s *Store) GetContentRange(ctx context.Context, handle Handle, start, end int64) ([]byte, error) {
	if len(handle) != handleSize {
		return nil, ErrInvalidHandle
	}
	began := time.Now()
	data, err := s.tree.Read(ctx, handle.Digest(), handle.Length(), start, end)
	if err != nil {
		s.metrics.ObserveContentOp("get", "error", time.Since(began).Seconds())
		return nil, translateErr("get_content", err)
	}
	s.metrics.ObserveContentOp("get", "ok", time.Since(began).Seconds())
	return data, nil
}

// DeleteContent undoes exactly one prior PutContent of handle's content,
// releasing every node reachable from its root (spec §4.4.3, I4). It is not
// idempotent: a second call against an already fully-released handle fails
// with ErrNotFound.
func (s *Store) DeleteContent(ctx context.Context, handle Handle) error {
	if len(handle) != handleSize {
		return ErrInvalidHandle
	}
	start := time.Now()
	err := s.tree.Delete(ctx, handle.Digest())
	if err != nil {
		s.metrics.ObserveContentOp("delete", "error", time.Since(start).Seconds())
		return translateErr("delete_content", err)
	}
	s.metrics.ObserveContentOp("delete", "ok", time.Since(start).Seconds())
	return nil
}

func translateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, nodestore.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, seccrypto.ErrAuthenticity) {
		return ErrAuthenticity
	}
	return newBackendError(op, err)
}
