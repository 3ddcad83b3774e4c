package youtube

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"
)

var urlRe = regexp.MustCompile(`(?i)https?://\S+`)

// ExtractURL pulls the first http(s) URL out of free-form message text.
func ExtractURL(text string) string {
	return urlRe.FindString(text)
}

// IsVideoURL reports whether the URL points at the supported video host
// and carries something resolvable: a parseable video id, or a playlist
// reference. Playlist links have no video id but must still reach
// discovery so the rejection can name the real reason.
func IsVideoURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	supported := host == "youtu.be" || host == "youtube.com" ||
		strings.HasSuffix(host, ".youtube.com") || strings.HasSuffix(host, ".youtu.be")
	if !supported {
		return false
	}
	if ExtractVideoID(raw) != "" {
		return true
	}
	return parsed.Query().Get("list") != "" || strings.Contains(parsed.Path, "/playlist")
}

// ExtractVideoID resolves the canonical video id for a URL, or an empty
// string when none can be derived.
func ExtractVideoID(raw string) string {
	id, err := youtube.ExtractVideoID(raw)
	if err != nil {
		return ""
	}
	return id
}
