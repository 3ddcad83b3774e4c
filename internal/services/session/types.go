package session

import (
	"context"
	"sync"

	"github.com/gcottom/semaphore"
	"github.com/gruzd1sok/YTSage-telegram-bot/config"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/cookies"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/selection"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/telegram"
	"github.com/gruzd1sok/YTSage-telegram-bot/pkg/ytdlp"
)

// Engine is the download engine surface the orchestrator drives.
// *ytdlp.Client is the production implementation.
type Engine interface {
	EnsureBinary(ctx context.Context) error
	EnsureJSRuntime(ctx context.Context, configured string, autoSetup bool) (string, error)
	Discover(ctx context.Context, url, cookieFile, browserCookies string) (*ytdlp.VideoInfo, error)
	Run(ctx context.Context, job ytdlp.Job, cb ytdlp.Callbacks) (string, error)
}

// Refresher keeps session credentials fresh. *cookies.Controller is the
// production implementation.
type Refresher interface {
	EnsureFresh(ctx context.Context)
	ForceRefresh(ctx context.Context) cookies.RefreshResult
}

type Service struct {
	Config          *config.Config
	Sink            telegram.Sink
	Engine          Engine
	Selections      *selection.Store
	Cookies         Refresher
	DownloadLimiter *semaphore.Semaphore
	StatusMap       *sync.Map
}

type StatusUpdate struct {
	ID       string  `json:"id"`
	URL      string  `json:"url,omitempty"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress,omitempty"`
	Quality  string  `json:"quality,omitempty"`
	Error    string  `json:"error,omitempty"`
}

const (
	StatusDiscovering       = "discovering"
	StatusAwaitingSelection = "awaiting_selection"
	StatusDownloading       = "downloading"
	StatusPostProcessing    = "post_processing"
	StatusDelivering        = "delivering"
	StatusComplete          = "complete"
	StatusFailed            = "failed"
)
