package cart

import (
	"context"
	"strconv"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/telemetry"
)

// ErrQuotaExceeded is returned by SnapshotStorage.Put when the backing store
// is full. The Store reacts by clearing its evictable keys and retrying once.
var ErrQuotaExceeded = errors.New("snapshot storage quota exceeded")

// SnapshotStorage persists one serialised snapshot per identity key.
// Get reports ok=false when the key is absent.
type SnapshotStorage interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Principal is the identity a basket belongs to. The zero value is a guest.
type Principal struct {
	UserID string
}

// Guest is the anonymous principal.
var Guest = Principal{}

// IsGuest reports whether p is anonymous.
func (p Principal) IsGuest() bool {
	return p.UserID == ""
}

// StorageKey is cart_guest for guests and cart_<userId> otherwise.
func (p Principal) StorageKey() string {
	if p.IsGuest() {
		return "cart_guest"
	}
	return "cart_" + p.UserID
}

// Phase is the store lifecycle.
type Phase int

const (
	// PhaseUninitialized is the zero Store.
	PhaseUninitialized Phase = iota
	// PhaseLoading means the store exists but the snapshot for the active
	// principal has not been read yet. Writes are suppressed.
	PhaseLoading
	// PhaseLoaded means the snapshot was read (or confirmed absent).
	PhaseLoaded
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	default:
		return "uninitialized"
	}
}

// Store is the single source of truth for basket contents. All mutations go
// through Dispatch and are serialised; persistence happens after the mutation
// that caused it and only once the active snapshot has been loaded.
type Store struct {
	mu        sync.Mutex
	storage   SnapshotStorage
	sink      telemetry.Sink
	principal Principal
	state     State
	phase     Phase
	revision  uint64
	evictable []string
}

// Option configures a Store.
type Option func(*Store)

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(st *Store) { st.sink = s }
}

// WithEvictable names keys that may be deleted to make room when a write
// hits the storage quota, such as a cached receipt. The active basket key is
// never deleted.
func WithEvictable(keys ...string) Option {
	return func(st *Store) { st.evictable = append(st.evictable, keys...) }
}

// NewStore returns a store for the guest principal in PhaseLoading. Call
// Open to read the persisted snapshot.
func NewStore(storage SnapshotStorage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		sink:    telemetry.Nop{},
		state:   Empty(),
		phase:   PhaseLoading,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open makes p the active principal and loads its snapshot. On a read error
// the store keeps an empty in-memory basket and stays in PhaseLoading, so it
// cannot overwrite data it failed to read.
func (s *Store) Open(ctx context.Context, p Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx, p)
}

func (s *Store) openLocked(ctx context.Context, p Principal) error {
	s.principal = p
	s.phase = PhaseLoading
	s.state = Empty()
	s.revision++

	data, ok, err := s.storage.Get(ctx, p.StorageKey())
	if err != nil {
		return errors.Wrapf(err, "read snapshot %s", p.StorageKey())
	}
	if !ok {
		data = nil
	}
	s.phase = PhaseLoaded
	s.applyLocked(ctx, Load{Data: data})
	return nil
}

// Dispatch applies a to the basket and returns the resulting state.
func (s *Store) Dispatch(ctx context.Context, a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(ctx, a)
	return s.state.Clone()
}

func (s *Store) applyLocked(ctx context.Context, a Action) {
	next, effects := Reduce(s.state, a)
	s.state = next
	if len(effects) > 0 {
		s.revision++
	}
	for _, eff := range effects {
		switch eff := eff.(type) {
		case Persist:
			s.persistLocked(ctx)
		case DriftRepaired:
			s.emit(ctx, telemetry.CartDriftRepaired, "reason", eff.Reason)
		case CorruptSnapshot:
			s.emit(ctx, telemetry.CartCorruptSnapshot, "reason", eff.Reason)
		case Loaded:
			s.emit(ctx, telemetry.CartLoaded, "lines", strconv.Itoa(eff.Lines))
		}
	}
}

// persistLocked writes the snapshot best-effort. A quota failure clears the
// evictable keys and retries once; any remaining failure is reported, never
// returned. The previous snapshot stays in place when the write cannot fit.
func (s *Store) persistLocked(ctx context.Context) {
	if s.phase != PhaseLoaded {
		return
	}
	key := s.principal.StorageKey()
	data := Encode(s.state)

	err := s.storage.Put(ctx, key, data)
	if errors.Is(err, ErrQuotaExceeded) {
		s.emit(ctx, telemetry.CartQuotaRetry, "evicted", strconv.Itoa(s.evictLocked(ctx, key)))
		err = s.storage.Put(ctx, key, data)
	}
	if err != nil {
		s.emit(ctx, telemetry.CartPersistFailed, "error", err.Error())
		return
	}
	s.emit(ctx, telemetry.CartPersisted, "lines", strconv.Itoa(len(s.state.Lines)))
}

// evictLocked deletes the evictable keys other than active and returns how
// many deletes succeeded.
func (s *Store) evictLocked(ctx context.Context, active string) int {
	var n int
	for _, k := range s.evictable {
		if k == active {
			continue
		}
		if err := s.storage.Delete(ctx, k); err != nil {
			s.emit(ctx, telemetry.CartPersistFailed, "error", errors.Wrapf(err, "evict %s", k).Error())
			continue
		}
		n++
	}
	return n
}

func (s *Store) emit(ctx context.Context, kind telemetry.Kind, kv ...string) {
	kv = append(kv, "key", s.principal.StorageKey())
	s.sink.Emit(ctx, telemetry.New(kind, kv...))
}

// Add adds quantity units of c.
func (s *Store) Add(ctx context.Context, c Candidate, quantity int) State {
	return s.Dispatch(ctx, AddLine{Candidate: c, Quantity: quantity})
}

// Remove deletes the line with key.
func (s *Store) Remove(ctx context.Context, key Key) State {
	return s.Dispatch(ctx, RemoveLine{Key: key})
}

// SetQuantity replaces a line quantity; non-positive removes the line.
func (s *Store) SetQuantity(ctx context.Context, key Key, quantity int) State {
	return s.Dispatch(ctx, SetQuantity{Key: key, Quantity: quantity})
}

// Clear empties the basket.
func (s *Store) Clear(ctx context.Context) State {
	return s.Dispatch(ctx, Clear{})
}

// Reload re-reads the snapshot of the active principal.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx, s.principal)
}

// Snapshot returns a copy of the current basket.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Principal returns the active principal.
func (s *Store) Principal() Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Phase returns the lifecycle phase. A nil store is uninitialized.
func (s *Store) Phase() Phase {
	if s == nil {
		return PhaseUninitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Revision increases on every applied mutation and principal change.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Storage exposes the backing storage to the migration manager.
func (s *Store) Storage() SnapshotStorage {
	return s.storage
}
