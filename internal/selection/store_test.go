package selection

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPutTakeRoundTrip(t *testing.T) {
	store := NewStore()

	token, err := store.Put(Selection{URL: "https://youtube.com/watch?v=abc", ChatID: 7})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	sel, ok := store.Take(token)
	if !ok {
		t.Fatal("expected Take to find the selection")
	}
	if sel.URL != "https://youtube.com/watch?v=abc" {
		t.Errorf("unexpected URL %q", sel.URL)
	}
}

func TestTakeIsSingleUse(t *testing.T) {
	store := NewStore()

	token, err := store.Put(Selection{URL: "u"})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if _, ok := store.Take(token); !ok {
		t.Fatal("first Take must succeed")
	}
	for i := 0; i < 3; i++ {
		if _, ok := store.Take(token); ok {
			t.Fatal("subsequent Take must fail")
		}
	}
}

func TestConcurrentTakeConsumesOnce(t *testing.T) {
	store := NewStore()
	token, err := store.Put(Selection{URL: "u"})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Take(token); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful Take, got %d", wins)
	}
}

func TestTTLEviction(t *testing.T) {
	store := NewStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	token, err := store.Put(Selection{URL: "u"})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	current = current.Add(TTL + time.Minute)
	if _, ok := store.Take(token); ok {
		t.Error("expected expired selection to be unreachable")
	}
}

func TestSweepRunsOnAnyAccess(t *testing.T) {
	store := NewStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	if _, err := store.Put(Selection{URL: "old"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	current = current.Add(TTL + time.Minute)
	// A Put on a different token must sweep the stale entry too.
	if _, err := store.Put(Selection{URL: "new"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("expected 1 live entry after sweep, got %d", got)
	}
}

func TestTakeForOwnership(t *testing.T) {
	store := NewStore()
	token, err := store.Put(Selection{URL: "u", OwnerID: 42})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if _, err := store.TakeFor(token, 99); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for wrong actor, got %v", err)
	}
	// The failed pick must not consume the token.
	if _, err := store.TakeFor(token, 42); err != nil {
		t.Fatalf("owner pick failed: %v", err)
	}
	if _, err := store.TakeFor(token, 42); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired after consumption, got %v", err)
	}
}

func TestTakeForWithoutOwnerAllowsAnyone(t *testing.T) {
	store := NewStore()
	token, err := store.Put(Selection{URL: "u"})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := store.TakeFor(token, 1234); err != nil {
		t.Errorf("expected pick to succeed for anonymous selection, got %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	store := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := store.Put(Selection{URL: "u"})
		if err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}
