package ytdlp

import (
	"net/http"
	"time"

	"github.com/gruzd1sok/YTSage-telegram-bot/internal/formats"
)

// Client drives the external yt-dlp engine. BinDir holds the managed
// binary; when it is absent the client falls back to the system PATH.
type Client struct {
	BinDir     string
	HTTPClient *http.Client

	// execPath is resolved once by EnsureBinary.
	execPath string
}

func NewClient(binDir string) *Client {
	return &Client{
		BinDir:     binDir,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// VideoInfo is the discovery result for a single URL.
type VideoInfo struct {
	ID       string           `json:"id"`
	Type     string           `json:"_type"`
	Title    string           `json:"title"`
	Duration float64          `json:"duration"`
	Formats  []formats.Record `json:"formats"`
}

// IsPlaylist reports whether discovery resolved to a playlist rather than
// a single video.
func (v *VideoInfo) IsPlaylist() bool {
	return v.Type == "playlist" || v.Type == "multi_video"
}

// Job describes one download run handed to the engine.
type Job struct {
	URL            string
	Dir            string
	FormatSelector string // explicit format id or a declarative fallback expression
	AudioOnly      bool
	CookieFile     string
	BrowserCookies string // browser[:profile], used when no cookie file is set

	ForceAudioFormat     bool
	PreferredAudioFormat string

	ForceOutputFormat     bool
	PreferredOutputFormat string

	JSRuntime string
}

// Callbacks receive status, progress and detail events while a job runs.
// All callbacks are invoked from the job's own goroutine. Nil callbacks
// are skipped.
type Callbacks struct {
	OnStatus   func(text string)
	OnProgress func(percent float64)
	OnDetails  func(text string)
}

func (c Callbacks) status(text string) {
	if c.OnStatus != nil {
		c.OnStatus(text)
	}
}

func (c Callbacks) progress(percent float64) {
	if c.OnProgress != nil {
		c.OnProgress(percent)
	}
}

func (c Callbacks) details(text string) {
	if c.OnDetails != nil {
		c.OnDetails(text)
	}
}
