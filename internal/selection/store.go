package selection

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gruzd1sok/YTSage-telegram-bot/internal/formats"
)

// TTL is how long a stored selection stays redeemable.
const TTL = time.Hour

const tokenBytes = 12

var (
	// ErrExpired is returned when a token is unknown, already consumed,
	// or swept by TTL. Callers render the same "expired" message for all
	// three; they are indistinguishable on purpose.
	ErrExpired = errors.New("selection expired")
	// ErrNotOwner is returned when the acting principal is not the
	// requester the selection was stored for. The token is not consumed.
	ErrNotOwner = errors.New("selection belongs to another user")
)

// Selection is one pending quality choice awaiting a user pick.
type Selection struct {
	URL       string
	Options   []formats.Option
	OwnerID   int64 // 0 when the requester identity is unknown
	ChatID    int64
	MessageID int
	SessionID string
	CreatedAt time.Time
}

// Store maps unguessable tokens to pending selections with TTL eviction.
// All selection state is ephemeral; nothing survives a restart.
type Store struct {
	mu    sync.Mutex
	items map[string]Selection
	ttl   time.Duration
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		items: make(map[string]Selection),
		ttl:   TTL,
		now:   time.Now,
	}
}

// Put stores a selection and returns its token. The sweep runs first, so
// stale entries never outlive the next store access.
func (s *Store) Put(sel Selection) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate selection token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = s.now()
	}
	s.items[token] = sel
	return token, nil
}

// Take consumes a token. Exactly one concurrent caller can succeed; every
// later call with the same token reports false.
func (s *Store) Take(token string) (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	sel, ok := s.items[token]
	if !ok {
		return Selection{}, false
	}
	delete(s.items, token)
	return sel, true
}

// TakeFor consumes a token on behalf of a principal. When the selection
// carries a requester identity and the actor differs, the token is left
// in place and ErrNotOwner is returned so the real owner can still pick.
func (s *Store) TakeFor(token string, actorID int64) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	sel, ok := s.items[token]
	if !ok {
		return Selection{}, ErrExpired
	}
	if sel.OwnerID != 0 && actorID != sel.OwnerID {
		return Selection{}, ErrNotOwner
	}
	delete(s.items, token)
	return sel, nil
}

// Len reports the number of live entries, after a sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.items)
}

func (s *Store) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for token, sel := range s.items {
		if sel.CreatedAt.Before(cutoff) {
			delete(s.items, token)
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
