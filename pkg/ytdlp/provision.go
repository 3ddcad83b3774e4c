package ytdlp

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/retry"
	"go.uber.org/zap"
)

const (
	releaseBaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/"
	checksumsURL   = releaseBaseURL + "SHA2-256SUMS"

	denoBaseURL = "https://github.com/denoland/deno/releases/latest/download/"
)

// EnsureBinary resolves a usable engine binary. Resolution tiers: the
// managed binary in BinDir; the system PATH (logged as an operational
// warning, since its version is outside our control); a fresh download
// verified against the published sha256 checksums.
func (c *Client) EnsureBinary(ctx context.Context) error {
	if c.execPath != "" {
		return nil
	}

	managed := filepath.Join(c.BinDir, binaryName())
	if info, err := os.Stat(managed); err == nil && !info.IsDir() {
		if err := os.Chmod(managed, 0755); err != nil {
			zaplog.WarnC(ctx, "could not set executable permissions", zap.String("path", managed), zap.Error(err))
		}
		c.execPath = managed
		zaplog.InfoC(ctx, "using managed engine binary", zap.String("path", managed))
		return nil
	}

	if path, err := exec.LookPath("yt-dlp"); err == nil {
		c.execPath = path
		zaplog.WarnC(ctx, "managed engine binary absent, falling back to system PATH; version is not managed",
			zap.String("path", path))
		return nil
	}

	zaplog.InfoC(ctx, "engine binary not found, downloading", zap.String("dest", managed))
	if err := c.downloadBinary(ctx, managed); err != nil {
		return fmt.Errorf("failed to provision engine binary: %w", err)
	}
	c.execPath = managed
	return nil
}

// binary returns the resolved engine path, degrading to the bare command
// name so a missing EnsureBinary call still surfaces a clear exec error.
func (c *Client) binary() string {
	if c.execPath != "" {
		return c.execPath
	}
	return "yt-dlp"
}

func (c *Client) downloadBinary(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	url := releaseBaseURL + binaryName()
	if _, err := retry.Retry(retry.NewAlgSimpleDefault(), 3, c.fetchFile, ctx, url, dest); err != nil {
		return err
	}

	ok, err := c.verifySHA256(ctx, dest, binaryName())
	if err != nil || !ok {
		_ = os.Remove(dest)
		if err != nil {
			return fmt.Errorf("checksum verification failed: %w", err)
		}
		return errors.New("checksum verification failed")
	}
	return os.Chmod(dest, 0755)
}

func (c *Client) fetchFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s fetching %s", resp.Status, url)
	}

	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, resp.Body)
	return err
}

// verifySHA256 checks the downloaded file against the published checksum
// list, which holds "hash filename" pairs one per line.
func (c *Client) verifySHA256(ctx context.Context, path, filename string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumsURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %s fetching checksums", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	expected := ""
	for _, line := range strings.Split(string(body), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == filename {
			expected = fields[0]
			break
		}
	}
	if expected == "" {
		return false, fmt.Errorf("no checksum published for %s", filename)
	}

	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(actual, expected) {
		zaplog.ErrorC(ctx, "sha256 mismatch", zap.String("expected", expected), zap.String("actual", actual))
		return false, nil
	}
	return true, nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func binaryName() string {
	switch runtime.GOOS {
	case "windows":
		return "yt-dlp.exe"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp"
	}
}

// EnsureFFmpeg verifies a transcoder is reachable on the PATH. Its absence
// is non-fatal for plain downloads; merging and container forcing need it.
func EnsureFFmpeg() (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errors.New("ffmpeg not found on PATH")
	}
	return path, nil
}

// EnsureDeno resolves a JS runtime: managed binary, then PATH, then a
// fresh download when auto-provisioning is enabled. Returns the runtime
// spec to hand to the engine, or empty when none could be resolved.
func (c *Client) EnsureDeno(ctx context.Context, autoSetup bool) (string, error) {
	managed := filepath.Join(c.BinDir, denoBinaryName())
	if info, err := os.Stat(managed); err == nil && !info.IsDir() {
		return "deno:" + managed, nil
	}
	if path, err := exec.LookPath("deno"); err == nil {
		zaplog.WarnC(ctx, "using deno from system PATH; version is not managed", zap.String("path", path))
		return "deno:" + path, nil
	}
	if !autoSetup {
		return "", errors.New("deno not found and auto-provisioning is disabled")
	}

	zaplog.InfoC(ctx, "deno not found, downloading", zap.String("dest", managed))
	archive := managed + ".zip"
	if _, err := retry.Retry(retry.NewAlgSimpleDefault(), 3, c.fetchFile, ctx, denoBaseURL+denoArchiveName(), archive); err != nil {
		return "", fmt.Errorf("failed to download deno: %w", err)
	}
	defer os.Remove(archive)

	if err := unzipSingle(archive, managed); err != nil {
		return "", fmt.Errorf("failed to extract deno: %w", err)
	}
	if err := os.Chmod(managed, 0755); err != nil {
		return "", err
	}
	return "deno:" + managed, nil
}

// EnsureJSRuntime resolves the runtime spec for extractor JS challenges.
// An explicitly configured spec wins; otherwise deno is located or
// provisioned.
func (c *Client) EnsureJSRuntime(ctx context.Context, configured string, autoSetup bool) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return c.EnsureDeno(ctx, autoSetup)
}

func denoBinaryName() string {
	if runtime.GOOS == "windows" {
		return "deno.exe"
	}
	return "deno"
}

func denoArchiveName() string {
	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "deno-aarch64-apple-darwin.zip"
		}
		return "deno-x86_64-apple-darwin.zip"
	case "windows":
		return "deno-x86_64-pc-windows-msvc.zip"
	default:
		if runtime.GOARCH == "arm64" {
			return "deno-aarch64-unknown-linux-gnu.zip"
		}
		return "deno-x86_64-unknown-linux-gnu.zip"
	}
}

// unzipSingle extracts the first regular file of a zip archive to dest.
func unzipSingle(archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		src, err := entry.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, src)
		return err
	}
	return errors.New("archive contains no files")
}
