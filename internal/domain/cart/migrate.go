package cart

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/telemetry"
)

// Policy decides how a non-empty guest basket lands in a user basket.
type Policy int

const (
	// PolicyMerge folds guest lines into the user basket by identity,
	// summing quantities on collision.
	PolicyMerge Policy = iota
	// PolicyReplace overwrites the user basket with the guest basket.
	PolicyReplace
)

// AuthState is the authentication fact consumed from the session layer.
type AuthState struct {
	Authenticated bool
	UserID        string
}

// AuthSource is the authentication collaborator. Ready is closed once State
// reflects the resolved session.
type AuthSource interface {
	Ready() <-chan struct{}
	State() AuthState
}

// Migrator reconciles the guest basket with the identified user's basket
// when the authentication state changes.
type Migrator struct {
	store  *Store
	policy Policy
	sink   telemetry.Sink
}

// NewMigrator returns a migration manager for store.
func NewMigrator(store *Store, policy Policy, sink telemetry.Sink) *Migrator {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Migrator{store: store, policy: policy, sink: sink}
}

// Sync waits for src to become ready and applies its state.
func (m *Migrator) Sync(ctx context.Context, src AuthSource) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-src.Ready():
	}
	return m.Apply(ctx, src.State())
}

// Apply moves the store to the principal implied by st.
//
//   - guest → user: migrate the guest basket, then load the user basket.
//   - user A → user B: load B's basket.
//   - user → logged out: drop the basket from memory, keep A's snapshot, and
//     continue as guest.
//
// An authenticated state without a resolved user id is ignored until it
// resolves. Repeating the current state is a no-op, so migration happens at
// most once per transition.
func (m *Migrator) Apply(ctx context.Context, st AuthState) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.principal
	switch {
	case st.Authenticated && st.UserID == "":
		return nil
	case st.Authenticated && current.UserID == st.UserID && s.phase == PhaseLoaded:
		return nil
	case st.Authenticated && current.IsGuest():
		return m.migrateLocked(ctx, Principal{UserID: st.UserID})
	case st.Authenticated:
		return s.openLocked(ctx, Principal{UserID: st.UserID})
	case !current.IsGuest() || s.phase != PhaseLoaded:
		return s.openLocked(ctx, Guest)
	default:
		return nil
	}
}

func (m *Migrator) migrateLocked(ctx context.Context, user Principal) error {
	s := m.store
	guestKey, userKey := Guest.StorageKey(), user.StorageKey()

	guestData, ok, err := s.storage.Get(ctx, guestKey)
	if err != nil {
		return errors.Wrap(err, "read guest snapshot")
	}
	guest, _ := Decode(guestData)
	if !ok || guest.IsEmpty() {
		return s.openLocked(ctx, user)
	}

	target := guest
	if m.policy == PolicyMerge {
		userData, _, err := s.storage.Get(ctx, userKey)
		if err != nil {
			return errors.Wrap(err, "read user snapshot")
		}
		existing, _ := Decode(userData)
		target = Merge(existing, guest)
	}

	if err := s.storage.Put(ctx, userKey, Encode(target)); err != nil {
		return errors.Wrap(err, "write user snapshot")
	}
	if err := s.storage.Delete(ctx, guestKey); err != nil {
		return errors.Wrap(err, "delete guest snapshot")
	}

	m.sink.Emit(ctx, telemetry.New(telemetry.CartMigrated,
		"key", userKey,
		"guest_lines", strconv.Itoa(len(guest.Lines)),
		"lines", strconv.Itoa(len(target.Lines)),
		"policy", m.policy.String(),
	))
	return s.openLocked(ctx, user)
}

func (p Policy) String() string {
	if p == PolicyReplace {
		return "replace"
	}
	return "merge"
}
