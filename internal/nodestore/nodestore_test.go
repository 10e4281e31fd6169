package nodestore

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liulcode/sec-cs/internal/backend"
	"github.com/liulcode/sec-cs/internal/seccrypto"
)

func newTestStore(t *testing.T) (*NodeStore, *backend.MemoryBackend) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	w, err := seccrypto.NewWrapper(key)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)

	b := backend.NewMemoryBackend()
	return New(b, w, nil, nil), b
}

func TestInsertFetchRoundtrip(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	digest, err := s.Insert(ctx, []byte("leaf payload"))
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())

	got, err := s.Fetch(ctx, digest)
	require.NoError(t, err)
	require.Equal(t, []byte("leaf payload"), got)
}

func TestInsertDedupIncrementsRefcountWithoutGrowth(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	d1, err := s.Insert(ctx, []byte("shared"))
	require.NoError(t, err)
	sizeAfterFirst := b.TotalBytes()

	d2, err := s.Insert(ctx, []byte("shared"))
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.Equal(t, 1, b.Len())
	// refcount grows but ciphertext is not rewritten, so total bytes is
	// unchanged aside from the fixed refcount prefix already counted.
	require.Equal(t, sizeAfterFirst, b.TotalBytes())
}

func TestReleaseStateMachine(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	digest, err := s.Insert(ctx, []byte("x"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, []byte("x")) // refcount=2
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, digest)) // refcount=1
	require.Equal(t, 1, b.Len())

	require.NoError(t, s.Release(ctx, digest)) // refcount=0, removed
	require.Equal(t, 0, b.Len())

	err = s.Release(ctx, digest)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Fetch(ctx, make([]byte, 32))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchDetectsTamperedCiphertext(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	digest, err := s.Insert(ctx, []byte("tamper me"))
	require.NoError(t, err)

	ok := b.MutateValue(digest)
	require.True(t, ok)

	_, err = s.Fetch(ctx, digest)
	require.ErrorIs(t, err, seccrypto.ErrAuthenticity)
}
