// Package nodestore implements the refcounted node store (spec §4.3): it
// layers authenticated encryption (via seccrypto.Wrapper) and reference
// counting over a raw Backend, and guarantees the state machine of spec
// §4.4.4 for every digest: Absent -> Live(n) -> Absent.
package nodestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/liulcode/sec-cs/internal/backend"
	"github.com/liulcode/sec-cs/internal/metrics"
	"github.com/liulcode/sec-cs/internal/seccrypto"
)

const refcountWidth = 8 // bytes; ample for realistic dedup factors (spec §4.3).

// NodeStore wraps a Backend with the crypto wrapper and a striped lock
// table, serializing insert/fetch/release per digest (spec §5).
type NodeStore struct {
	backend backend.Backend
	wrapper *seccrypto.Wrapper
	locks   stripedLocks
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// New constructs a NodeStore over b, addressing and encrypting nodes with w.
// A nil logger is replaced with one discarding output, so the package is
// self-contained for standalone testing; the façade always supplies a real
// logger.
func New(b backend.Backend, w *seccrypto.Wrapper, logger *logrus.Logger, m *metrics.Metrics) *NodeStore {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &NodeStore{backend: b, wrapper: w, log: logger, metrics: m}
}

// Insert wraps plaintext and either creates a new Live(1) entry or increments
// an existing entry's refcount without rewriting its ciphertext (spec
// §4.4.4: insert on Absent -> Live(1); insert on Live(n) -> Live(n+1)).
func (s *NodeStore) Insert(ctx context.Context, plaintext []byte) ([]byte, error) {
	digest, ciphertext, err := s.wrapper.Wrap(plaintext)
	if err != nil {
		return nil, fmt.Errorf("nodestore: wrap: %w", err)
	}

	unlock := s.locks.lock(digest)
	defer unlock()

	existing, err := s.backend.Get(ctx, digest)
	switch {
	case err == backend.ErrNotFound:
		if perr := s.backend.Put(ctx, digest, encodeEntry(1, ciphertext)); perr != nil {
			return nil, fmt.Errorf("nodestore: put: %w", perr)
		}
		s.log.WithField("digest", fmt.Sprintf("%x", digest)).Debug("nodestore: created entry refcount=1")
	case err != nil:
		return nil, fmt.Errorf("nodestore: get: %w", err)
	default:
		refcount, storedCiphertext := decodeEntry(existing)
		if perr := s.backend.Put(ctx, digest, encodeEntry(refcount+1, storedCiphertext)); perr != nil {
			return nil, fmt.Errorf("nodestore: put: %w", perr)
		}
		s.log.WithFields(logrus.Fields{
			"digest":   fmt.Sprintf("%x", digest),
			"refcount": refcount + 1,
		}).Debug("nodestore: incremented refcount")
	}

	s.metrics.IncNodeOp("insert")
	return digest, nil
}

// Fetch retrieves and verifies the plaintext stored under digest.
func (s *NodeStore) Fetch(ctx context.Context, digest []byte) ([]byte, error) {
	unlock := s.locks.lock(digest)
	defer unlock()

	value, err := s.backend.Get(ctx, digest)
	if err == backend.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("nodestore: get: %w", err)
	}

	_, ciphertext := decodeEntry(value)
	plaintext, err := s.wrapper.Unwrap(digest, ciphertext)
	if err != nil {
		s.metrics.IncAuthenticityError()
		s.log.WithField("digest", fmt.Sprintf("%x", digest)).Error("nodestore: authenticity check failed")
		return nil, err
	}

	s.metrics.IncNodeOp("fetch")
	return plaintext, nil
}

// Release decrements digest's refcount, physically removing the entry when
// it reaches zero (spec §4.4.4: release on Live(1) -> Absent).
func (s *NodeStore) Release(ctx context.Context, digest []byte) error {
	unlock := s.locks.lock(digest)
	defer unlock()

	value, err := s.backend.Get(ctx, digest)
	if err == backend.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("nodestore: get: %w", err)
	}

	refcount, ciphertext := decodeEntry(value)
	if refcount <= 1 {
		if derr := s.backend.Delete(ctx, digest); derr != nil {
			return fmt.Errorf("nodestore: delete: %w", derr)
		}
		s.metrics.IncNodeRemoved()
		s.log.WithField("digest", fmt.Sprintf("%x", digest)).Debug("nodestore: removed entry refcount=0")
	} else {
		if perr := s.backend.Put(ctx, digest, encodeEntry(refcount-1, ciphertext)); perr != nil {
			return fmt.Errorf("nodestore: put: %w", perr)
		}
		s.log.WithFields(logrus.Fields{
			"digest":   fmt.Sprintf("%x", digest),
			"refcount": refcount - 1,
		}).Debug("nodestore: decremented refcount")
	}

	s.metrics.IncNodeOp("release")
	return nil
}

func encodeEntry(refcount uint64, ciphertext []byte) []byte {
	out := make([]byte, refcountWidth+len(ciphertext))
	binary.BigEndian.PutUint64(out[:refcountWidth], refcount)
	copy(out[refcountWidth:], ciphertext)
	return out
}

func decodeEntry(value []byte) (refcount uint64, ciphertext []byte) {
	refcount = binary.BigEndian.Uint64(value[:refcountWidth])
	ciphertext = value[refcountWidth:]
	return refcount, ciphertext
}
