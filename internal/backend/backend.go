// Package backend defines the key-value backend interface consumed by the
// refcounted node store (spec §6) and ships two reference implementations:
// an in-memory map and a go.etcd.io/bbolt-backed disk store. Per spec §1
// the backend itself is an external collaborator, not part of the core;
// these implementations exist so the module is runnable end to end and so
// the core's tests exercise a real Backend rather than a mock.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when key is absent.
var ErrNotFound = errors.New("backend: key not found")

// Backend is the minimal key-value contract the core assumes (spec §6).
// Keys are fixed-width digest bytes; values are opaque byte strings. A
// single Put or Delete call is assumed atomic; no iteration is required.
type Backend interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Close() error
}
