package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/telemetry"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	var nilStore *Store
	assert.Equal(t, PhaseUninitialized, nilStore.Phase())

	storage := newFakeStorage()
	s := NewStore(storage)
	assert.Equal(t, PhaseLoading, s.Phase())

	// Mutations before load stay in memory and never reach storage.
	s.Add(ctx, candidate("p1", "10"), 1)
	assert.Equal(t, 0, storage.puts)

	require.NoError(t, s.Open(ctx, Guest))
	assert.Equal(t, PhaseLoaded, s.Phase())
	assert.True(t, s.Snapshot().IsEmpty(), "loaded snapshot replaces pre-load memory")

	s.Add(ctx, candidate("p1", "10"), 2)
	assert.True(t, storage.has("cart_guest"))
}

func TestStore_DoesNotClobberUnreadSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	existing, _ := Reduce(Empty(), AddLine{Candidate: candidate("p1", "10"), Quantity: 4})
	storage.data["cart_guest"] = Encode(existing)
	storage.getErr = errors.New("disk unavailable")

	s := NewStore(storage)
	err := s.Open(ctx, Guest)
	require.Error(t, err)
	assert.Equal(t, PhaseLoading, s.Phase())

	s.Add(ctx, candidate("p2", "5"), 1)
	s.Clear(ctx)
	assert.Equal(t, 0, storage.puts)

	storage.getErr = nil
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 4, s.Snapshot().UnitCount)
}

func TestStore_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()

	s := NewStore(storage)
	require.NoError(t, s.Open(ctx, Guest))
	s.Add(ctx, candidate("p1", "1000"), 2)
	s.Add(ctx, variantCandidate("tee", "499", "", ""), 1)
	want := s.Snapshot()

	reopened := NewStore(storage)
	require.NoError(t, reopened.Open(ctx, Guest))
	got := reopened.Snapshot()

	require.Len(t, got.Lines, len(want.Lines))
	assert.True(t, want.Total.Equal(got.Total))
	assert.Equal(t, want.UnitCount, got.UnitCount)
	assert.Equal(t, want.LineCount, got.LineCount)
}

func TestStore_CorruptSnapshotIsDiscarded(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	storage.data["cart_u1"] = []byte(`{"items":"oops","total":12}`)
	rec := &telemetry.Recorder{}

	s := NewStore(storage, WithSink(rec))
	require.NoError(t, s.Open(ctx, Principal{UserID: "u1"}))

	assert.True(t, s.Snapshot().IsEmpty())
	assert.Equal(t, 1, rec.Count(telemetry.CartCorruptSnapshot))
	healed, rep := Decode(storage.data["cart_u1"])
	assert.False(t, rep.Corrupt, "corrupt snapshot is overwritten with the empty basket")
	assert.True(t, healed.IsEmpty())
}

func TestStore_DriftIsRepairedAndReported(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	storage.data["cart_guest"] = []byte(`{"items":[{"productId":"p1","price":10,"quantity":2}],"total":-3,"itemCount":2}`)
	rec := &telemetry.Recorder{}

	s := NewStore(storage, WithSink(rec))
	require.NoError(t, s.Open(ctx, Guest))

	assert.True(t, d("20").Equal(s.Snapshot().Total))
	e, ok := rec.Last(telemetry.CartDriftRepaired)
	require.True(t, ok)
	assert.Equal(t, "cart_guest", e.Attr("key"))
}

func TestStore_QuotaFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("clear and retry succeeds", func(t *testing.T) {
		storage := newFakeStorage()
		storage.data["last_order"] = []byte(`{}`)
		rec := &telemetry.Recorder{}
		s := NewStore(storage, WithSink(rec), WithEvictable("last_order", "cart_guest"))
		require.NoError(t, s.Open(ctx, Guest))

		storage.putErrs = []error{errors.Wrap(ErrQuotaExceeded, "write")}
		s.Add(ctx, candidate("p1", "10"), 1)

		assert.Equal(t, 1, rec.Count(telemetry.CartQuotaRetry))
		assert.Equal(t, 0, rec.Count(telemetry.CartPersistFailed))
		assert.Equal(t, []string{"last_order"}, storage.deletes, "the active key is never evicted")
		assert.True(t, storage.has("cart_guest"))
	})

	t.Run("second failure is reported, not raised", func(t *testing.T) {
		storage := newFakeStorage()
		rec := &telemetry.Recorder{}
		s := NewStore(storage, WithSink(rec))
		require.NoError(t, s.Open(ctx, Guest))

		storage.putErrs = []error{ErrQuotaExceeded, ErrQuotaExceeded}
		state := s.Add(ctx, candidate("p1", "10"), 1)

		assert.Equal(t, 1, state.UnitCount, "in-memory basket survives a failed write")
		assert.Equal(t, 1, rec.Count(telemetry.CartPersistFailed))
	})
}

func TestStore_RevisionAdvancesOnChange(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newFakeStorage())
	require.NoError(t, s.Open(ctx, Guest))

	r0 := s.Revision()
	s.Add(ctx, candidate("p1", "10"), 1)
	r1 := s.Revision()
	assert.Greater(t, r1, r0)

	s.Remove(ctx, "absent")
	assert.Equal(t, r1, s.Revision(), "no-op does not advance the revision")

	s.SetQuantity(ctx, ResolveKey("p1", "", ""), 3)
	assert.Greater(t, s.Revision(), r1)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newFakeStorage())
	require.NoError(t, s.Open(ctx, Guest))
	s.Add(ctx, candidate("p1", "10"), 1)

	snap := s.Snapshot()
	snap.Lines[0].Quantity = 99

	assert.Equal(t, 1, s.Snapshot().Lines[0].Quantity)
}
