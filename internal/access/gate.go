package access

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
)

// Principal is a user or chat identity used for access decisions. UserID
// takes precedence; ChatID is the fallback when the user is unknown.
type Principal struct {
	UserID int64
	ChatID int64
}

// ID returns the identifier recorded in the attempts log.
func (p Principal) ID() int64 {
	if p.UserID != 0 {
		return p.UserID
	}
	return p.ChatID
}

// Gate decides whether a principal may use the bot while gating is
// enabled. The allow-list is the union of the statically configured set,
// the file-backed whitelist, and runtime admin approvals. Attempts are
// persisted append-only so the admin is notified at most once per
// principal across restarts.
type Gate struct {
	enabled       bool
	adminID       int64
	whitelistPath string
	attemptsPath  string

	mu             sync.Mutex
	allowed        map[int64]struct{}
	attempts       map[int64]struct{}
	attemptsLoaded bool
}

// NewGate builds a gate. staticIDs is the configured inline allow-list;
// the whitelist file is read immediately, tolerating commas and
// whitespace between ids.
func NewGate(enabled bool, adminID int64, staticIDs []int64, whitelistPath, attemptsPath string) *Gate {
	g := &Gate{
		enabled:       enabled,
		adminID:       adminID,
		whitelistPath: whitelistPath,
		attemptsPath:  attemptsPath,
		allowed:       make(map[int64]struct{}),
		attempts:      make(map[int64]struct{}),
	}
	for _, id := range staticIDs {
		g.allowed[id] = struct{}{}
	}
	for _, id := range readIDFile(whitelistPath) {
		g.allowed[id] = struct{}{}
	}
	return g
}

// Enabled reports whether gating is active at all.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// IsAdmin reports whether the principal is the configured administrator,
// matching either its user id or its chat id.
func (g *Gate) IsAdmin(p Principal) bool {
	if g.adminID == 0 {
		return false
	}
	return p.UserID == g.adminID || p.ChatID == g.adminID
}

// IsAllowed decides whether the principal may proceed. Always true when
// gating is disabled; the admin is always allowed.
func (g *Gate) IsAllowed(p Principal) bool {
	if !g.enabled {
		return true
	}
	if g.IsAdmin(p) {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.allowed[p.UserID]; ok {
		return true
	}
	_, ok := g.allowed[p.ChatID]
	return ok
}

// RecordAttempt notes that the principal triggered an access check and
// reports whether this is its first attempt ever. Membership test and
// persisted insert happen atomically: a principal is "new" exactly once,
// even across process restarts, so exactly one admin notification goes
// out per first-seen principal.
func (g *Gate) RecordAttempt(ctx context.Context, p Principal) bool {
	id := p.ID()
	if id == 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.loadAttemptsLocked(ctx)

	if _, seen := g.attempts[id]; seen {
		return false
	}
	if err := appendLine(g.attemptsPath, id); err != nil {
		zaplog.WarnC(ctx, "failed to write attempts file", zap.String("path", g.attemptsPath), zap.Error(err))
		return false
	}
	g.attempts[id] = struct{}{}
	return true
}

// Approve adds the user to the runtime allow-list and appends it to the
// whitelist file. Approval never removes anything.
func (g *Gate) Approve(ctx context.Context, userID int64) error {
	g.mu.Lock()
	g.allowed[userID] = struct{}{}
	g.mu.Unlock()

	existing := readIDFile(g.whitelistPath)
	for _, id := range existing {
		if id == userID {
			return nil
		}
	}
	if err := appendLine(g.whitelistPath, userID); err != nil {
		zaplog.WarnC(ctx, "failed to update whitelist file", zap.String("path", g.whitelistPath), zap.Error(err))
		return fmt.Errorf("failed to update whitelist file: %w", err)
	}
	return nil
}

// loadAttemptsLocked reads the attempts log once per process lifetime.
func (g *Gate) loadAttemptsLocked(ctx context.Context) {
	if g.attemptsLoaded {
		return
	}
	g.attemptsLoaded = true

	file, err := os.Open(g.attemptsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			zaplog.WarnC(ctx, "failed to read attempts file", zap.String("path", g.attemptsPath), zap.Error(err))
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			zaplog.WarnC(ctx, "invalid id in attempts file", zap.String("line", line))
			continue
		}
		g.attempts[id] = struct{}{}
	}
}

// readIDFile parses principal ids from a line-oriented file, tolerating
// commas and surrounding whitespace. Missing files read as empty.
func readIDFile(path string) []int64 {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var ids []int64
	for _, field := range strings.FieldsFunc(string(raw), func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ' ' || r == '\t'
	}) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func appendLine(path string, id int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = fmt.Fprintf(file, "%d\n", id)
	return err
}
