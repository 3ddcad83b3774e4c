package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
)

// FlushInterval is the minimum gap between non-forced status edits. This
// is a leaky-bucket discipline, not a timer: bursts collapse to the most
// recent snapshot and the next callback after the quiet period delivers it.
const FlushInterval = 2 * time.Second

const defaultStatus = "Downloading…"

// EditFunc pushes rendered status text to the chat transport.
type EditFunc func(ctx context.Context, text string) error

// Bridge collects status, progress and detail callbacks coming from the
// worker goroutine and republishes them as rate-limited message edits.
// Latest values only; there is no event queue.
type Bridge struct {
	edit EditFunc

	mu        sync.Mutex
	status    string
	percent   float64
	hasPct    bool
	details   string
	lastFlush time.Time
	now       func() time.Time
}

func NewBridge(edit EditFunc) *Bridge {
	return &Bridge{edit: edit, now: time.Now}
}

// Status records the latest worker status line and attempts a flush.
func (b *Bridge) Status(ctx context.Context, text string) {
	b.mu.Lock()
	b.status = text
	b.mu.Unlock()
	b.tryFlush(ctx)
}

// Progress records the latest percentage (0-100) and attempts a flush.
func (b *Bridge) Progress(ctx context.Context, percent float64) {
	b.mu.Lock()
	b.percent = percent
	b.hasPct = true
	b.mu.Unlock()
	b.tryFlush(ctx)
}

// Details records the latest detail line and attempts a flush.
func (b *Bridge) Details(ctx context.Context, text string) {
	b.mu.Lock()
	b.details = text
	b.mu.Unlock()
	b.tryFlush(ctx)
}

// ForceUpdate bypasses the debounce and delivers the given text now.
// Used for terminal states which must never be suppressed.
func (b *Bridge) ForceUpdate(ctx context.Context, text string) {
	b.mu.Lock()
	b.lastFlush = b.now()
	b.mu.Unlock()
	if err := b.edit(ctx, text); err != nil {
		zaplog.WarnC(ctx, "failed to push forced status update", zap.Error(err))
	}
}

// tryFlush pushes the current snapshot unless a flush happened inside the
// last FlushInterval. The slot is claimed under the lock so concurrent
// callbacks cannot double-flush.
func (b *Bridge) tryFlush(ctx context.Context) {
	b.mu.Lock()
	nowTime := b.now()
	if nowTime.Sub(b.lastFlush) < FlushInterval {
		b.mu.Unlock()
		return
	}
	b.lastFlush = nowTime
	text := b.renderLocked()
	b.mu.Unlock()

	if err := b.edit(ctx, text); err != nil {
		zaplog.WarnC(ctx, "failed to push status update", zap.Error(err))
	}
}

// renderLocked composes the outgoing text: status line, progress line when
// known, details line when present, in that fixed order.
func (b *Bridge) renderLocked() string {
	status := b.status
	if status == "" {
		status = defaultStatus
	}
	parts := []string{status}
	if b.hasPct {
		parts = append(parts, fmt.Sprintf("Progress: %.1f%%", b.percent))
	}
	if b.details != "" {
		parts = append(parts, b.details)
	}
	return strings.Join(parts, "\n")
}
