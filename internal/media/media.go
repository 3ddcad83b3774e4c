package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
)

// telegramVideoExts are containers Telegram plays inline without a
// transcode.
var telegramVideoExts = map[string]bool{
	"mp4": true,
	"m4v": true,
	"mov": true,
}

// IsTelegramPlayable reports whether the file can be sent as a streaming
// video as-is. The chosen option's container tag wins over the file
// extension when known.
func IsTelegramPlayable(path, optionExt string) bool {
	ext := strings.ToLower(strings.TrimSpace(optionExt))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	}
	return telegramVideoExts[ext]
}

// ConvertToMP4 re-encodes a file into an mp4 Telegram can stream and
// returns the output path. The source is left untouched.
func ConvertToMP4(ctx context.Context, src string) (string, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available: %w", err)
	}

	target := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp4"
	if target == src {
		return src, nil
	}

	args := []string{
		"-y",
		"-i", src,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		target,
	}
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		zaplog.WarnC(ctx, "ffmpeg conversion failed", zap.String("stderr", strings.TrimSpace(stderr.String())), zap.Error(err))
		return "", fmt.Errorf("conversion failed: %w", err)
	}
	return target, nil
}

// ProbeDimensions reads the width and height of the first video stream
// via ffprobe. Zero values mean the probe failed; callers treat that as
// "unknown", not an error.
func ProbeDimensions(ctx context.Context, path string) (width, height int) {
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return 0, 0
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0
	}

	var result struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &result); err != nil || len(result.Streams) == 0 {
		return 0, 0
	}
	return result.Streams[0].Width, result.Streams[0].Height
}

var invalidPathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// SanitizePath rewrites each path component so the whole path is safe on
// every filesystem we care about.
func SanitizePath(path string) string {
	components := strings.Split(filepath.ToSlash(path), "/")
	for i, component := range components {
		if component == "" {
			continue
		}
		safe := invalidPathChars.ReplaceAllString(component, "_")
		safe = strings.Trim(safe, " .")
		const maxLength = 255
		if len(safe) > maxLength {
			safe = safe[:maxLength]
		}
		components[i] = safe
	}
	return filepath.Join(components...)
}
