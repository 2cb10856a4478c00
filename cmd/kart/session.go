package main

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const sessionKey = "session"

var _ cart.AuthSource = (*Session)(nil)

// Session is the CLI's authentication layer: the signed-in user id is kept
// next to the basket snapshots. Ready is closed once the stored session has
// been read.
type Session struct {
	kv    cart.SnapshotStorage
	ready chan struct{}
	once  sync.Once

	mu    sync.Mutex
	state cart.AuthState
}

// NewSession returns an unresolved session over kv.
func NewSession(kv cart.SnapshotStorage) *Session {
	return &Session{kv: kv, ready: make(chan struct{})}
}

// Resolve reads the stored session and closes Ready. A session that cannot
// be parsed resolves as signed out.
func (s *Session) Resolve(ctx context.Context) error {
	defer s.once.Do(func() { close(s.ready) })

	data, ok, err := s.kv.Get(ctx, sessionKey)
	if err != nil {
		return errors.Wrap(err, "read session")
	}
	if !ok {
		return nil
	}
	userID, err := decodeSession(data)
	if err != nil {
		return nil
	}
	s.set(cart.AuthState{Authenticated: userID != "", UserID: userID})
	return nil
}

func (s *Session) Ready() <-chan struct{} { return s.ready }

func (s *Session) State() cart.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Login stores userID as the signed-in user.
func (s *Session) Login(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if err := s.kv.Put(ctx, sessionKey, encodeSession(userID)); err != nil {
		return errors.Wrap(err, "write session")
	}
	s.set(cart.AuthState{Authenticated: true, UserID: userID})
	return nil
}

// Logout forgets the signed-in user. Baskets are untouched.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.kv.Delete(ctx, sessionKey); err != nil {
		return errors.Wrap(err, "delete session")
	}
	s.set(cart.AuthState{})
	return nil
}

func (s *Session) set(st cart.AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func encodeSession(userID string) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("userId")
	e.Str(userID)
	e.ObjEnd()
	return append([]byte(nil), e.Bytes()...)
}

func decodeSession(data []byte) (string, error) {
	var userID string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "userId" {
			return d.Skip()
		}
		v, err := d.Str()
		userID = v
		return err
	})
	return userID, err
}
