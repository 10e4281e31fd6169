package seccs

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liulcode/sec-cs/internal/backend"
)

const testChunkSize = 256 // matches spec §8's seed-scenario chunk size c = 256.

func newTestStore(t *testing.T) (*Store, *backend.MemoryBackend) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	w, err := NewWrapper(key)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)

	b := backend.NewMemoryBackend()
	s, err := NewStore(testChunkSize, b, w, WithSilentLogging())
	require.NoError(t, err)
	return s, b
}

// S1 — empty content.
func TestEmptyContent(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	h, err := s.PutContent(ctx, []byte{})
	require.NoError(t, err)

	got, err := s.GetContent(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte{}, got)
	require.Equal(t, 1, b.Len())

	require.NoError(t, s.DeleteContent(ctx, h))
	require.Equal(t, 0, b.Len())
}

// S2 — small content.
func TestSmallContent(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	content := []byte("This is a test content.")
	h, err := s.PutContent(ctx, content)
	require.NoError(t, err)

	got, err := s.GetContent(ctx, h)
	require.NoError(t, err)
	require.Equal(t, content, got)

	require.NoError(t, s.DeleteContent(ctx, h))
	require.Equal(t, 0, b.Len())
}

// S3 — idempotent put.
func TestIdempotentPut(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	content := make([]byte, 1<<20)
	_, err := rand.Read(content)
	require.NoError(t, err)

	h1, err := s.PutContent(ctx, content)
	require.NoError(t, err)
	sizeAfterFirst := b.Len()

	h2, err := s.PutContent(ctx, content)
	require.NoError(t, err)

	require.Equal(t, h1, h2)
	require.Equal(t, sizeAfterFirst, b.Len())
}

// S4 — near-dedup: a single flipped byte grows the backend by < 5*c*8 bytes.
func TestNearDedupGrowthBound(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	content := make([]byte, 1<<20)
	_, err := rand.Read(content)
	require.NoError(t, err)

	_, err = s.PutContent(ctx, content)
	require.NoError(t, err)
	bytesAfterFirst := b.TotalBytes()

	modified := append([]byte(nil), content...)
	modified[524288] ^= 0xFF

	_, err = s.PutContent(ctx, modified)
	require.NoError(t, err)

	growth := b.TotalBytes() - bytesAfterFirst
	require.Less(t, growth, 5*testChunkSize*8) // generous bound; reference is ~2.3KiB at c=256.
}

// S5 — composite dedup: deleting a composite handle returns the backend to
// exactly the size after the first two puts.
func TestCompositeDedupDeleteBalances(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	base := make([]byte, 1<<20)
	_, err := rand.Read(base)
	require.NoError(t, err)

	insertAt := 524288
	insertion := []byte{0xAA, 0xBB, 0xCC}
	modified := make([]byte, 0, len(base)+len(insertion))
	modified = append(modified, base[:insertAt]...)
	modified = append(modified, insertion...)
	modified = append(modified, base[insertAt:]...)

	_, err = s.PutContent(ctx, base)
	require.NoError(t, err)
	_, err = s.PutContent(ctx, modified)
	require.NoError(t, err)
	sizeAfterBothBases := b.Len()

	composite := append(append(append([]byte(nil), base...), modified...), base...)
	compositeHandle, err := s.PutContent(ctx, composite)
	require.NoError(t, err)

	require.NoError(t, s.DeleteContent(ctx, compositeHandle))
	require.Equal(t, sizeAfterBothBases, b.Len())
}

// S6 — tamper: flipping the bits of one byte in a backend value causes Get to fail with
// ErrAuthenticity.
func TestTamperDetection(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	content := make([]byte, 1<<16)
	_, err := rand.Read(content)
	require.NoError(t, err)

	h, err := s.PutContent(ctx, content)
	require.NoError(t, err)

	keys := b.Keys()
	require.NotEmpty(t, keys)
	require.True(t, b.MutateValue(keys[0]))

	_, err = s.GetContent(ctx, h)
	require.ErrorIs(t, err, ErrAuthenticity)
}

// P3 — refcount balance: N puts + N deletes restores the backend exactly.
func TestRefcountBalanceRestoresBackend(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	before := b.Snapshot()

	content := []byte("balance me across several puts")
	var handles []Handle
	for i := 0; i < 4; i++ {
		h, err := s.PutContent(ctx, content)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		require.NoError(t, s.DeleteContent(ctx, h))
	}

	after := b.Snapshot()
	require.Equal(t, before, after)
}

func TestGetContentRangeReturnsRequestedBytes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	content := make([]byte, 1<<18)
	_, err := rand.Read(content)
	require.NoError(t, err)

	h, err := s.PutContent(ctx, content)
	require.NoError(t, err)

	got, err := s.GetContentRange(ctx, h, 1000, 2000)
	require.NoError(t, err)
	require.Equal(t, content[1000:2000], got)
}

func TestDeleteContentNotIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	h, err := s.PutContent(ctx, []byte("single reference"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteContent(ctx, h))
	err = s.DeleteContent(ctx, h)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetContentRejectsInvalidHandle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.GetContent(ctx, Handle([]byte{1, 2, 3}))
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestNewStoreValidatesConstructionParameters(t *testing.T) {
	key := make([]byte, 32)
	w, err := NewWrapper(key)
	require.NoError(t, err)
	defer w.Destroy()
	b := backend.NewMemoryBackend()

	_, err = NewStore(0, b, w)
	require.Error(t, err)

	_, err = NewStore(testChunkSize, nil, w)
	require.Error(t, err)

	_, err = NewStore(testChunkSize, b, nil)
	require.Error(t, err)
}
