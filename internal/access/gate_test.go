package access

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestGate(t *testing.T, enabled bool, adminID int64, staticIDs []int64) (*Gate, string, string) {
	t.Helper()
	dir := t.TempDir()
	whitelist := filepath.Join(dir, "whitelist.txt")
	attempts := filepath.Join(dir, "attempts.log")
	return NewGate(enabled, adminID, staticIDs, whitelist, attempts), whitelist, attempts
}

func TestDisabledGateAllowsEveryone(t *testing.T) {
	gate, _, _ := newTestGate(t, false, 0, nil)
	if !gate.IsAllowed(Principal{UserID: 12345}) {
		t.Error("expected disabled gate to allow everyone")
	}
}

func TestAdminAlwaysAllowed(t *testing.T) {
	gate, _, _ := newTestGate(t, true, 99, nil)
	if !gate.IsAllowed(Principal{UserID: 99}) {
		t.Error("expected admin user id to be allowed")
	}
	if !gate.IsAllowed(Principal{UserID: 1, ChatID: 99}) {
		t.Error("expected admin chat id to be allowed")
	}
	if gate.IsAllowed(Principal{UserID: 1, ChatID: 2}) {
		t.Error("expected unknown principal to be denied")
	}
}

func TestStaticAndFileAllowListsUnion(t *testing.T) {
	dir := t.TempDir()
	whitelist := filepath.Join(dir, "whitelist.txt")
	if err := os.WriteFile(whitelist, []byte("10, 20\n30\n"), 0644); err != nil {
		t.Fatalf("failed to seed whitelist: %v", err)
	}
	gate := NewGate(true, 99, []int64{40}, whitelist, filepath.Join(dir, "attempts.log"))

	for _, id := range []int64{10, 20, 30, 40} {
		if !gate.IsAllowed(Principal{UserID: id}) {
			t.Errorf("expected id %d to be allowed", id)
		}
	}
	if gate.IsAllowed(Principal{UserID: 50}) {
		t.Error("expected id 50 to be denied")
	}
}

func TestAllowedByChatID(t *testing.T) {
	gate, _, _ := newTestGate(t, true, 99, []int64{777})
	if !gate.IsAllowed(Principal{UserID: 1, ChatID: 777}) {
		t.Error("expected principal allowed via chat id")
	}
}

func TestRecordAttemptFirstSeenOnce(t *testing.T) {
	gate, _, attempts := newTestGate(t, true, 99, nil)
	ctx := context.Background()

	if !gate.RecordAttempt(ctx, Principal{UserID: 42}) {
		t.Fatal("expected first attempt to be new")
	}
	if gate.RecordAttempt(ctx, Principal{UserID: 42}) {
		t.Fatal("expected second attempt to not be new")
	}

	raw, err := os.ReadFile(attempts)
	if err != nil {
		t.Fatalf("failed to read attempts file: %v", err)
	}
	if strings.Count(string(raw), "42") != 1 {
		t.Errorf("expected exactly one log line for 42, got %q", raw)
	}
}

func TestRecordAttemptSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	whitelist := filepath.Join(dir, "whitelist.txt")
	attempts := filepath.Join(dir, "attempts.log")
	ctx := context.Background()

	first := NewGate(true, 99, nil, whitelist, attempts)
	if !first.RecordAttempt(ctx, Principal{UserID: 42}) {
		t.Fatal("expected first attempt to be new")
	}

	// A fresh gate over the same log must remember the principal.
	second := NewGate(true, 99, nil, whitelist, attempts)
	if second.RecordAttempt(ctx, Principal{UserID: 42}) {
		t.Error("expected attempt to be known after restart")
	}
}

func TestRecordAttemptFallsBackToChatID(t *testing.T) {
	gate, _, _ := newTestGate(t, true, 99, nil)
	ctx := context.Background()

	if !gate.RecordAttempt(ctx, Principal{ChatID: -100123}) {
		t.Fatal("expected chat-only principal to be recorded")
	}
	if gate.RecordAttempt(ctx, Principal{ChatID: -100123}) {
		t.Error("expected repeat chat-only attempt to not be new")
	}
	if gate.RecordAttempt(ctx, Principal{}) {
		t.Error("expected empty principal to be ignored")
	}
}

func TestApproveMutatesRuntimeAndFile(t *testing.T) {
	gate, whitelist, _ := newTestGate(t, true, 99, nil)
	ctx := context.Background()

	if gate.IsAllowed(Principal{UserID: 42}) {
		t.Fatal("expected 42 to start denied")
	}
	if err := gate.Approve(ctx, 42); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if !gate.IsAllowed(Principal{UserID: 42}) {
		t.Error("expected 42 to be allowed after approval")
	}

	raw, err := os.ReadFile(whitelist)
	if err != nil {
		t.Fatalf("failed to read whitelist: %v", err)
	}
	if !strings.Contains(string(raw), "42\n") {
		t.Errorf("expected whitelist to gain line 42, got %q", raw)
	}

	// Approving twice must not duplicate the file entry.
	if err := gate.Approve(ctx, 42); err != nil {
		t.Fatalf("second Approve returned error: %v", err)
	}
	raw, _ = os.ReadFile(whitelist)
	if strings.Count(string(raw), "42") != 1 {
		t.Errorf("expected a single whitelist line for 42, got %q", raw)
	}
}
