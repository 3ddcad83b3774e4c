package cookies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeJar(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := "# Netscape HTTP Cookie File\n"
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write jar: %v", err)
	}
	return path
}

func jarLine(domain string, expiry int64) string {
	return fmt.Sprintf("%s\tTRUE\t/\tTRUE\t%d\tSID\tvalue", domain, expiry)
}

func TestParseBrowserSpec(t *testing.T) {
	tests := []struct {
		in              string
		browser, profile string
	}{
		{"", "", ""},
		{"chrome", "chrome", ""},
		{"Firefox", "firefox", ""},
		{"chrome:Default", "chrome", "Default"},
		{" chrome : Profile 1 ", "chrome", "Profile 1"},
	}
	for _, tt := range tests {
		browser, profile := ParseBrowserSpec(tt.in)
		if browser != tt.browser || profile != tt.profile {
			t.Errorf("ParseBrowserSpec(%q) = (%q, %q), want (%q, %q)",
				tt.in, browser, profile, tt.browser, tt.profile)
		}
	}
}

func TestDomainMatches(t *testing.T) {
	suffixes := []string{"youtube.com", "google.com"}
	tests := []struct {
		domain string
		want   bool
	}{
		{".youtube.com", true},
		{"www.youtube.com", true},
		{"#HttpOnly_.youtube.com", true},
		{"accounts.google.com", true},
		{"notyoutube.com", false},
		{"example.org", false},
	}
	for _, tt := range tests {
		if got := DomainMatches(tt.domain, suffixes); got != tt.want {
			t.Errorf("DomainMatches(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestIsExpiredMissingFile(t *testing.T) {
	if !IsExpired(filepath.Join(t.TempDir(), "absent.txt"), 0, DefaultDomains) {
		t.Error("expected missing file to be expired")
	}
}

func TestIsExpiredPastEntries(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	path := writeJar(t, jarLine(".youtube.com", past))
	if !IsExpired(path, 0, DefaultDomains) {
		t.Error("expected jar with only past-expiry entries to be expired")
	}
}

func TestIsExpiredFutureEntry(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()
	path := writeJar(t, jarLine(".youtube.com", past), jarLine(".google.com", future))
	if IsExpired(path, 0, DefaultDomains) {
		t.Error("expected jar with a future matching entry to be fresh")
	}
}

func TestIsExpiredSessionCookie(t *testing.T) {
	// Expiry 0 means "never".
	path := writeJar(t, jarLine(".youtube.com", 0))
	if IsExpired(path, 0, DefaultDomains) {
		t.Error("expected jar with a never-expiring entry to be fresh")
	}
}

func TestIsExpiredIgnoresOtherDomains(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	path := writeJar(t, jarLine(".example.org", future))
	if !IsExpired(path, 0, DefaultDomains) {
		t.Error("expected jar with only unrelated domains to be expired")
	}
}

func TestIsExpiredMaxAge(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	path := writeJar(t, jarLine(".youtube.com", future))
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("failed to backdate file: %v", err)
	}
	if !IsExpired(path, 24*time.Hour, DefaultDomains) {
		t.Error("expected file older than max age to be expired")
	}
	if IsExpired(path, 0, DefaultDomains) {
		t.Error("expected age check to be skipped when max age is zero")
	}
}

func TestFilterJar(t *testing.T) {
	path := writeJar(t,
		jarLine(".youtube.com", 0),
		jarLine(".example.org", 0),
		jarLine("accounts.google.com", 0),
	)
	kept, err := FilterJar(path, DefaultDomains)
	if err != nil {
		t.Fatalf("FilterJar returned error: %v", err)
	}
	if kept != 2 {
		t.Errorf("expected 2 kept entries, got %d", kept)
	}
	entries, err := ReadJar(path)
	if err != nil {
		t.Fatalf("ReadJar returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries after rewrite, got %d", len(entries))
	}
}

func TestEnsureFreshSkipsWhenFresh(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	path := writeJar(t, jarLine(".youtube.com", future))

	c := NewController(path, true, 0, "true", "")
	calls := 0
	c.runCommand = func(ctx context.Context, command string) error {
		calls++
		return nil
	}

	c.EnsureFresh(context.Background())
	if calls != 0 {
		t.Errorf("expected no refresh for fresh file, got %d calls", calls)
	}
}

func TestEnsureFreshRunsCommandWhenStale(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	path := writeJar(t, jarLine(".youtube.com", past))

	c := NewController(path, true, 0, "refresh {cookie_file} {browser}", "chrome:Work")
	var gotCommand string
	c.runCommand = func(ctx context.Context, command string) error {
		gotCommand = command
		// Simulate the command rewriting the jar with a fresh entry.
		fresh := jarLine(".youtube.com", time.Now().Add(time.Hour).Unix())
		return os.WriteFile(path, []byte(fresh+"\n"), 0600)
	}

	c.EnsureFresh(context.Background())
	want := "refresh " + path + " chrome"
	if gotCommand != want {
		t.Errorf("expected expanded command %q, got %q", want, gotCommand)
	}
	if c.Expired() {
		t.Error("expected file to be fresh after refresh")
	}
}

func TestEnsureFreshDisabled(t *testing.T) {
	c := NewController(filepath.Join(t.TempDir(), "absent.txt"), false, 0, "boom", "")
	calls := 0
	c.runCommand = func(ctx context.Context, command string) error {
		calls++
		return nil
	}
	c.EnsureFresh(context.Background())
	if calls != 0 {
		t.Errorf("expected disabled controller to be a no-op, got %d calls", calls)
	}
}

func TestForceRefreshBypassesStalenessCheck(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	path := writeJar(t, jarLine(".youtube.com", future))

	c := NewController(path, true, 0, "refresh", "")
	calls := 0
	c.runCommand = func(ctx context.Context, command string) error {
		calls++
		return nil
	}

	result := c.ForceRefresh(context.Background())
	if calls != 1 {
		t.Fatalf("expected exactly one command run, got %d", calls)
	}
	if !result.Refreshed {
		t.Errorf("expected refresh success, got %v", result.Err)
	}
}

func TestRefreshCommandEmptyFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	c := NewController(path, true, 0, "refresh", "")
	c.runCommand = func(ctx context.Context, command string) error {
		return os.WriteFile(path, nil, 0600)
	}

	result := c.ForceRefresh(context.Background())
	if result.Refreshed {
		t.Error("expected refresh to fail on empty result file")
	}
}

func TestBrowserRefreshRequiresMatchingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	c := NewController(path, true, 0, "", "chrome")
	c.exportBrowser = func(ctx context.Context) error {
		return os.WriteFile(path, []byte(jarLine(".example.org", 0)+"\n"), 0600)
	}

	result := c.ForceRefresh(context.Background())
	if result.Refreshed {
		t.Error("expected refresh to fail when no exported cookies match")
	}

	c.exportBrowser = func(ctx context.Context) error {
		return os.WriteFile(path, []byte(jarLine(".youtube.com", 0)+"\n"), 0600)
	}
	result = c.ForceRefresh(context.Background())
	if !result.Refreshed {
		t.Errorf("expected refresh success, got %v", result.Err)
	}
}

func TestNoRefreshMethodConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	c := NewController(path, true, 0, "", "")
	result := c.ForceRefresh(context.Background())
	if result.Refreshed || result.Err == nil {
		t.Error("expected failure when no refresh method is configured")
	}
}
