package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/media"
	"go.uber.org/zap"
)

// DiscoverTimeout bounds format discovery; downloads themselves run
// unbounded and report their own terminal state.
const DiscoverTimeout = 45 * time.Second

const outputTemplate = "%(title)s [%(id)s].%(ext)s"

var (
	progressRe    = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+~?\s*(\S+)(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)
	destinationRe = regexp.MustCompile(`\[download\] Destination: (.+)`)
	mergerRe      = regexp.MustCompile(`\[Merger\] Merging formats into "(.+)"`)
	extractRe     = regexp.MustCompile(`\[ExtractAudio\] Destination: (.+)`)
	alreadyRe     = regexp.MustCompile(`\[download\] (.+) has already been downloaded`)
)

// Discover runs the engine's metadata dump for a URL and returns the
// parsed result. The call is bounded by DiscoverTimeout.
func (c *Client) Discover(ctx context.Context, url, cookieFile, browserCookies string) (*VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, DiscoverTimeout)
	defer cancel()

	args := []string{"-J", "--no-warnings"}
	args = appendCookieArgs(args, cookieFile, browserCookies)
	args = append(args, url)

	zaplog.InfoC(ctx, "running format discovery", zap.String("url", url))
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("format discovery timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("format discovery failed: %s", msg)
	}

	var info VideoInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("failed to decode discovery output: %w", err)
	}
	return &info, nil
}

// Run executes one download job and returns the final file path. Events
// stream to the callbacks while the engine runs; the terminal state is
// the returned value.
func (c *Client) Run(ctx context.Context, job Job, cb Callbacks) (string, error) {
	args := c.buildArgs(job)

	zaplog.InfoC(ctx, "starting engine job", zap.String("url", job.URL), zap.String("selector", job.FormatSelector))
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start engine: %w", err)
	}

	parser := newOutputParser(cb)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		parser.line(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.New(msg)
	}

	path := parser.finalPath()
	if path == "" {
		return "", errors.New("download finished but file was not reported")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(job.Dir, path)
	}
	return normalizeFinalPath(path), nil
}

// normalizeFinalPath renames the engine's output when the title smuggled
// characters through that downstream tools choke on. The directory comes
// from configuration and is left alone.
func normalizeFinalPath(path string) string {
	dir, base := filepath.Split(path)
	clean := media.SanitizePath(base)
	if clean == base {
		return path
	}
	target := filepath.Join(dir, clean)
	if err := os.Rename(path, target); err != nil {
		return path
	}
	return target
}

func (c *Client) buildArgs(job Job) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(job.Dir, outputTemplate),
	}
	if job.FormatSelector != "" {
		args = append(args, "-f", job.FormatSelector)
	}
	if job.AudioOnly {
		args = append(args, "-x")
		if job.ForceAudioFormat && job.PreferredAudioFormat != "" && job.PreferredAudioFormat != "best" {
			args = append(args, "--audio-format", job.PreferredAudioFormat)
		}
	} else if job.ForceOutputFormat && job.PreferredOutputFormat != "" {
		args = append(args, "--merge-output-format", job.PreferredOutputFormat)
	}
	args = appendCookieArgs(args, job.CookieFile, job.BrowserCookies)
	if job.JSRuntime != "" {
		args = append(args, "--extractor-args", "youtube:player_client=default;jsruntime="+job.JSRuntime)
	}
	args = append(args, job.URL)
	return args
}

func appendCookieArgs(args []string, cookieFile, browserCookies string) []string {
	if cookieFile != "" {
		return append(args, "--cookies", cookieFile)
	}
	if browserCookies != "" {
		return append(args, "--cookies-from-browser", browserCookies)
	}
	return args
}

// FormatSelector builds the declarative fallback expression used when the
// user picked a quality but the engine should still degrade gracefully.
// An explicit format id wins; audio-only jobs select bestaudio.
func FormatSelector(formatID string, audioOnly, hasAudio bool) string {
	if audioOnly {
		if formatID != "" {
			return formatID + "/bestaudio/best"
		}
		return "bestaudio/best"
	}
	if formatID == "" {
		return "best"
	}
	if hasAudio {
		return formatID + "/best"
	}
	// Video-only pick: mux with the best m4a audio, degrading to best.
	return formatID + "+bestaudio[ext=m4a]/" + formatID + "+bestaudio/best"
}

// ForcedMP4Selector is the expression used when output container forcing
// is on: progressive avc1 capped at the default resolution, degrading to
// any mp4, then anything.
func ForcedMP4Selector(maxHeight string) string {
	heightFilter := ""
	if _, err := strconv.Atoi(strings.TrimSpace(maxHeight)); err == nil {
		heightFilter = fmt.Sprintf("[height<=%s]", strings.TrimSpace(maxHeight))
	}
	return fmt.Sprintf("bestvideo[vcodec~='avc1']%s+bestaudio[ext=m4a]/best[ext=mp4]/best", heightFilter)
}

// outputParser tracks engine stdout lines, forwarding progress events and
// remembering the last file path the engine reported.
type outputParser struct {
	cb       Callbacks
	lastFile string
	phase    string
}

func newOutputParser(cb Callbacks) *outputParser {
	return &outputParser{cb: cb}
}

func (p *outputParser) line(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	if m := destinationRe.FindStringSubmatch(line); m != nil {
		p.lastFile = strings.TrimSpace(m[1])
		if p.phase != "downloading" {
			p.phase = "downloading"
			p.cb.status("Downloading…")
		}
		return
	}
	if m := mergerRe.FindStringSubmatch(line); m != nil {
		p.lastFile = strings.TrimSpace(m[1])
		p.phase = "merging"
		p.cb.status("Merging audio and video…")
		return
	}
	if m := extractRe.FindStringSubmatch(line); m != nil {
		p.lastFile = strings.TrimSpace(m[1])
		p.phase = "extracting"
		p.cb.status("Extracting audio…")
		return
	}
	if m := alreadyRe.FindStringSubmatch(line); m != nil {
		p.lastFile = strings.TrimSpace(m[1])
		p.cb.progress(100)
		return
	}
	if m := progressRe.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.cb.progress(pct)
		}
		details := progressDetails(m[3], m[4])
		if details != "" {
			p.cb.details(details)
		}
		return
	}
}

func (p *outputParser) finalPath() string {
	return p.lastFile
}

func progressDetails(speed, eta string) string {
	var parts []string
	if speed != "" && speed != "Unknown" {
		parts = append(parts, "Speed: "+speed)
	}
	if eta != "" && eta != "Unknown" {
		parts = append(parts, "ETA: "+eta)
	}
	return strings.Join(parts, ", ")
}
