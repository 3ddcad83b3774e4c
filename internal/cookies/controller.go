package cookies

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
)

// refreshTimeout bounds the external refresh command; the long-running
// download itself is never bounded here.
const refreshTimeout = 2 * time.Minute

// Controller decides whether stored credentials are usable and refreshes
// them when stale or rejected. Refresh is mutually excluded process-wide
// so concurrent jobs never race external commands on the same file.
type Controller struct {
	File           string
	Enabled        bool
	MaxAge         time.Duration
	Domains        []string
	RefreshCommand string
	Browser        string
	Profile        string

	// runCommand and exportBrowser are swappable for tests.
	runCommand    func(ctx context.Context, command string) error
	exportBrowser func(ctx context.Context) error

	refreshMu sync.Mutex
}

// NewController builds a controller for the given credential artifact.
// browserSpec is the raw "browser[:profile]" value from configuration.
func NewController(file string, enabled bool, maxAge time.Duration, refreshCommand, browserSpec string) *Controller {
	browser, profile := ParseBrowserSpec(browserSpec)
	c := &Controller{
		File:           file,
		Enabled:        enabled,
		MaxAge:         maxAge,
		Domains:        DefaultDomains,
		RefreshCommand: refreshCommand,
		Browser:        browser,
		Profile:        profile,
	}
	c.runCommand = c.runShellCommand
	c.exportBrowser = c.exportFromBrowser
	return c
}

// Expired reports whether the credential artifact currently needs a refresh.
func (c *Controller) Expired() bool {
	return IsExpired(c.File, c.MaxAge, c.Domains)
}

// EnsureFresh refreshes the credential file when it is stale. A no-op when
// refresh is disabled or no file is configured. Refresh failure is
// non-fatal: the caller proceeds with whatever state the file is in.
func (c *Controller) EnsureFresh(ctx context.Context) {
	if !c.Enabled || c.File == "" {
		return
	}
	if !c.Expired() {
		return
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another job may have refreshed while this one waited on the lock.
	if !c.Expired() {
		return
	}

	reason := "expired"
	if _, err := os.Stat(c.File); err != nil {
		reason = "missing"
	}
	zaplog.InfoC(ctx, "cookie file needs refresh", zap.String("file", c.File), zap.String("reason", reason))

	result := c.refresh(ctx)
	if result.Refreshed {
		zaplog.InfoC(ctx, "cookie file refreshed", zap.String("strategy", result.Strategy))
		return
	}
	zaplog.WarnC(ctx, "cookie refresh failed, proceeding with previous credentials",
		zap.String("strategy", result.Strategy), zap.Error(result.Err))
}

// ForceRefresh refreshes unconditionally, bypassing the staleness check.
// Used by the job retry protocol after a credentials-rejected failure.
func (c *Controller) ForceRefresh(ctx context.Context) RefreshResult {
	if c.File == "" {
		return RefreshResult{Err: errors.New("no cookie file configured")}
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) RefreshResult {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if c.RefreshCommand != "" {
		return c.refreshViaCommand(ctx)
	}
	if c.Browser != "" {
		return c.refreshViaBrowser(ctx)
	}
	return RefreshResult{Err: errors.New("no refresh method configured")}
}

// refreshViaCommand runs the configured external command with templated
// substitution; success iff exit code 0 and a non-empty file results.
func (c *Controller) refreshViaCommand(ctx context.Context) RefreshResult {
	command := expandCommand(c.RefreshCommand, c.File, c.Browser, c.Profile)
	zaplog.InfoC(ctx, "refreshing cookies using configured command")

	if err := c.runCommand(ctx, command); err != nil {
		return RefreshResult{Strategy: "command", Err: err}
	}
	info, err := os.Stat(c.File)
	if err != nil || info.Size() == 0 {
		return RefreshResult{Strategy: "command", Err: errors.New("command finished but cookie file is empty")}
	}
	return RefreshResult{Refreshed: true, Strategy: "command"}
}

// refreshViaBrowser exports cookies from the local browser store into the
// jar and keeps only entries for the configured domain suffixes; success
// iff at least one entry survives the filter.
func (c *Controller) refreshViaBrowser(ctx context.Context) RefreshResult {
	zaplog.InfoC(ctx, "refreshing cookies from browser store", zap.String("browser", c.Browser))

	if err := c.exportBrowser(ctx); err != nil {
		return RefreshResult{Strategy: "browser", Err: err}
	}
	kept, err := FilterJar(c.File, c.Domains)
	if err != nil {
		return RefreshResult{Strategy: "browser", Err: err}
	}
	if kept == 0 {
		return RefreshResult{Strategy: "browser", Err: errors.New("no matching cookies found in browser")}
	}
	return RefreshResult{Refreshed: true, Strategy: "browser"}
}

func (c *Controller) runShellCommand(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return err
		}
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}

// exportFromBrowser shells out to the download engine's browser cookie
// extraction, which writes a standard jar to the configured file.
func (c *Controller) exportFromBrowser(ctx context.Context) error {
	spec := c.Browser
	if c.Profile != "" {
		spec = c.Browser + ":" + c.Profile
	}
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--cookies-from-browser", spec,
		"--cookies", c.File,
		"--skip-download", "--no-warnings",
		"--print", "cookies_exported",
		"https://www.youtube.com")
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return err
		}
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}
