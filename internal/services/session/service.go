package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gcottom/go-zaplog"
	"github.com/google/uuid"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/formats"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/media"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/progress"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/selection"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/telegram"
	"github.com/gruzd1sok/YTSage-telegram-bot/pkg/ytdlp"
	"github.com/gruzd1sok/YTSage-telegram-bot/pkg/youtube"
	"go.uber.org/zap"
)

const pickPrefix = "fmt"

// PickData encodes a quality pick into a callback payload.
func PickData(token string, index int) string {
	return fmt.Sprintf("%s:%s:%d", pickPrefix, token, index)
}

// ParsePickData decodes a callback payload produced by PickData.
func ParsePickData(data string) (string, int, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != pickPrefix || parts[1] == "" {
		return "", 0, false
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, false
	}
	return parts[1], index, true
}

// IsPickData reports whether a callback payload is a quality pick.
func IsPickData(data string) bool {
	return strings.HasPrefix(data, pickPrefix+":")
}

// HandleURL runs discovery for a link and posts the quality selection
// prompt. The heavy lifting happens synchronously; callers dispatch each
// update on its own goroutine.
func (s *Service) HandleURL(ctx context.Context, chatID, userID int64, rawURL string) error {
	if !youtube.IsVideoURL(rawURL) {
		if _, err := s.Sink.Send(ctx, chatID, "That does not look like a YouTube link. Send me a video URL.", nil); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}

	messageID, err := s.Sink.Send(ctx, chatID, "Checking the link and available qualities…", nil)
	if err != nil {
		return fmt.Errorf("failed to send status message: %w", err)
	}

	id := uuid.NewString()
	s.PutStatus(ctx, StatusUpdate{ID: id, URL: rawURL, Status: StatusDiscovering})

	if err = s.Engine.EnsureBinary(ctx); err != nil {
		s.fail(ctx, id, chatID, messageID, fmt.Errorf("downloader unavailable: %w", err))
		return err
	}
	if s.Config.CookieAutoRefresh && s.Cookies != nil {
		s.Cookies.EnsureFresh(ctx)
	}

	info, err := s.Engine.Discover(ctx, rawURL, s.Config.CookieFile, s.Config.BrowserCookies)
	if err != nil {
		s.fail(ctx, id, chatID, messageID, err)
		return err
	}
	list, err := formats.Rank(info.Title, info.Duration, info.IsPlaylist(), info.Formats)
	if err != nil {
		s.fail(ctx, id, chatID, messageID, err)
		return err
	}

	token, err := s.Selections.Put(selection.Selection{
		URL:       rawURL,
		Options:   list.Options,
		OwnerID:   userID,
		ChatID:    chatID,
		MessageID: messageID,
		SessionID: id,
	})
	if err != nil {
		s.fail(ctx, id, chatID, messageID, err)
		return err
	}

	prompt := fmt.Sprintf("%s\nDuration: %s\n\nChoose a quality:", list.Title, list.Duration)
	if err = s.Sink.Edit(ctx, chatID, messageID, prompt, selectionKeyboard(token, list.Options)); err != nil {
		zaplog.WarnC(ctx, "failed to post selection prompt", zap.String("id", id), zap.Error(err))
	}
	s.PutStatus(ctx, StatusUpdate{ID: id, URL: rawURL, Status: StatusAwaitingSelection})
	return nil
}

// HandleAudio downloads the best audio track directly, skipping the
// quality selection prompt.
func (s *Service) HandleAudio(ctx context.Context, chatID, userID int64, rawURL string) error {
	if !youtube.IsVideoURL(rawURL) {
		if _, err := s.Sink.Send(ctx, chatID, "That does not look like a YouTube link. Send me a video URL.", nil); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}

	messageID, err := s.Sink.Send(ctx, chatID, "Preparing the audio download…", nil)
	if err != nil {
		return fmt.Errorf("failed to send status message: %w", err)
	}

	id := uuid.NewString()
	s.PutStatus(ctx, StatusUpdate{ID: id, URL: rawURL, Status: StatusDiscovering})

	if err = s.Engine.EnsureBinary(ctx); err != nil {
		s.fail(ctx, id, chatID, messageID, fmt.Errorf("downloader unavailable: %w", err))
		return err
	}
	if s.Config.CookieAutoRefresh && s.Cookies != nil {
		s.Cookies.EnsureFresh(ctx)
	}

	info, err := s.Engine.Discover(ctx, rawURL, s.Config.CookieFile, s.Config.BrowserCookies)
	if err != nil {
		s.fail(ctx, id, chatID, messageID, err)
		return err
	}
	list, err := formats.Rank(info.Title, info.Duration, info.IsPlaylist(), info.Formats)
	if err != nil {
		s.fail(ctx, id, chatID, messageID, err)
		return err
	}

	option, ok := audioOption(list.Options)
	if !ok {
		s.fail(ctx, id, chatID, messageID, formats.ErrNoSuitableFormats)
		return formats.ErrNoSuitableFormats
	}

	started := fmt.Sprintf("Download started: %s%s\nI will send the file when it is ready.", option.Label, sizeHint(option))
	if err = s.Sink.Edit(ctx, chatID, messageID, started, nil); err != nil {
		zaplog.WarnC(ctx, "failed to acknowledge audio download", zap.String("id", id), zap.Error(err))
	}
	s.PutStatus(ctx, StatusUpdate{ID: id, URL: rawURL, Status: StatusDownloading, Quality: option.Label})

	go s.runDownload(context.Background(), id, rawURL, chatID, messageID, option)
	return nil
}

// HandlePick resolves a quality pick, acknowledges it in the prompt
// message and starts the download in the background. A pick by anyone
// but the requester returns selection.ErrNotOwner and leaves the
// selection intact; callers answer those with an alert.
func (s *Service) HandlePick(ctx context.Context, chatID int64, messageID int, userID int64, token string, optionIndex int) error {
	sel, err := s.Selections.TakeFor(token, userID)
	if errors.Is(err, selection.ErrNotOwner) {
		return err
	}
	if err != nil {
		if editErr := s.Sink.Edit(ctx, chatID, messageID, "This choice has expired. Send the link again.", nil); editErr != nil {
			zaplog.WarnC(ctx, "failed to report expired selection", zap.Error(editErr))
		}
		return err
	}
	if optionIndex < 0 || optionIndex >= len(sel.Options) {
		if editErr := s.Sink.Edit(ctx, chatID, messageID, UserMessage(ErrMalformedPick), nil); editErr != nil {
			zaplog.WarnC(ctx, "failed to report malformed pick", zap.Error(editErr))
		}
		return ErrMalformedPick
	}

	option := sel.Options[optionIndex]
	started := fmt.Sprintf("Download started: %s%s\nI will send the file when it is ready.", option.Label, sizeHint(option))
	if err = s.Sink.Edit(ctx, chatID, messageID, started, nil); err != nil {
		zaplog.WarnC(ctx, "failed to acknowledge pick", zap.String("id", sel.SessionID), zap.Error(err))
	}
	s.PutStatus(ctx, StatusUpdate{ID: sel.SessionID, URL: sel.URL, Status: StatusDownloading, Quality: option.Label})

	go s.runDownload(context.Background(), sel.SessionID, sel.URL, chatID, messageID, option)
	return nil
}

func (s *Service) runDownload(ctx context.Context, id, url string, chatID int64, messageID int, option formats.Option) {
	bridge := progress.NewBridge(func(ctx context.Context, text string) error {
		return s.Sink.Edit(ctx, chatID, messageID, text, nil)
	})

	path, err := s.download(ctx, id, url, option, bridge)
	if err != nil {
		zaplog.ErrorC(ctx, "download failed", zap.String("id", id), zap.Error(err))
		s.PutStatus(ctx, StatusUpdate{ID: id, URL: url, Status: StatusFailed, Error: UserMessage(err)})
		bridge.ForceUpdate(ctx, UserMessage(err))
		return
	}
	s.deliver(ctx, id, chatID, messageID, path, option, bridge)
}

// download runs the engine with the credential pre-flight and the
// refresh-and-retry protocol: an auth-rejected first attempt triggers a
// forced refresh and at most one more attempt.
func (s *Service) download(ctx context.Context, id, url string, option formats.Option, bridge *progress.Bridge) (string, error) {
	if err := s.Engine.EnsureBinary(ctx); err != nil {
		return "", fmt.Errorf("downloader unavailable: %w", err)
	}
	jsRuntime, err := s.Engine.EnsureJSRuntime(ctx, s.Config.JSRuntime, s.Config.AutoSetupDeno)
	if err != nil {
		zaplog.WarnC(ctx, "js runtime unavailable, continuing without one", zap.String("id", id), zap.Error(err))
	}
	if s.Config.CookieAutoRefresh && s.Cookies != nil {
		s.Cookies.EnsureFresh(ctx)
	}

	job := s.buildJob(url, option, jsRuntime)
	cb := ytdlp.Callbacks{
		OnStatus:   func(text string) { bridge.Status(ctx, text) },
		OnProgress: func(percent float64) { bridge.Progress(ctx, percent); s.setProgress(id, percent) },
		OnDetails:  func(text string) { bridge.Details(ctx, text) },
	}

	s.DownloadLimiter.Acquire()
	defer s.DownloadLimiter.Release()

	path, err := s.Engine.Run(ctx, job, cb)
	if err != nil && IsAuthRejection(err) && s.Config.CookieAutoRefresh && s.Cookies != nil {
		bridge.ForceUpdate(ctx, "Refreshing YouTube credentials…")
		if result := s.Cookies.ForceRefresh(ctx); result.Refreshed {
			zaplog.InfoC(ctx, "credentials refreshed, retrying download", zap.String("id", id), zap.String("strategy", result.Strategy))
			path, err = s.Engine.Run(ctx, job, cb)
		} else {
			zaplog.WarnC(ctx, "credential refresh failed", zap.String("id", id), zap.Error(result.Err))
		}
	}
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", ErrFileMissing
	}
	if info.Size() > s.Config.MaxUploadBytes() {
		if s.Config.CleanupAfterSend {
			_ = os.Remove(path)
		}
		return "", ErrUploadTooLarge
	}
	return path, nil
}

func (s *Service) deliver(ctx context.Context, id string, chatID int64, messageID int, path string, option formats.Option, bridge *progress.Bridge) {
	s.PutStatus(ctx, StatusUpdate{ID: id, Status: StatusPostProcessing, Quality: option.Label})

	sendPath := path
	var cleanup []string
	if s.Config.CleanupAfterSend {
		cleanup = append(cleanup, path)
	}

	kind := telegram.FileDocument
	switch {
	case option.IsAudioOnly:
		kind = telegram.FileAudio
	case media.IsTelegramPlayable(path, option.Ext):
		kind = telegram.FileVideo
	default:
		bridge.ForceUpdate(ctx, "Converting to MP4 for Telegram…")
		converted, err := media.ConvertToMP4(ctx, path)
		if err != nil {
			// Conversion failure is not fatal, the raw file still goes
			// out as a document.
			zaplog.WarnC(ctx, "conversion failed, sending as document", zap.String("id", id), zap.Error(err))
		} else {
			sendPath = converted
			kind = telegram.FileVideo
			if s.Config.CleanupAfterSend {
				cleanup = append(cleanup, converted)
			}
			if info, statErr := os.Stat(converted); statErr == nil && info.Size() > s.Config.MaxUploadBytes() {
				zaplog.WarnC(ctx, "converted file exceeds upload ceiling", zap.String("id", id), zap.Int64("size", info.Size()))
				s.PutStatus(ctx, StatusUpdate{ID: id, Status: StatusFailed, Error: UserMessage(ErrUploadTooLarge)})
				bridge.ForceUpdate(ctx, UserMessage(ErrUploadTooLarge))
				removeFiles(cleanup)
				return
			}
		}
	}

	s.PutStatus(ctx, StatusUpdate{ID: id, Status: StatusDelivering, Quality: option.Label})
	bridge.ForceUpdate(ctx, "Uploading to Telegram…")

	err := s.Sink.SendFile(ctx, chatID, kind, sendPath, caption(option))
	if err != nil && kind == telegram.FileVideo {
		zaplog.WarnC(ctx, "video send failed, retrying as document", zap.String("id", id), zap.Error(err))
		err = s.Sink.SendFile(ctx, chatID, telegram.FileDocument, sendPath, caption(option))
	}
	if err != nil {
		zaplog.ErrorC(ctx, "file delivery failed", zap.String("id", id), zap.Error(err))
		s.PutStatus(ctx, StatusUpdate{ID: id, Status: StatusFailed, Error: UserMessage(ErrDeliveryFailed)})
		bridge.ForceUpdate(ctx, UserMessage(ErrDeliveryFailed))
		removeFiles(cleanup)
		return
	}

	if delErr := s.Sink.Delete(ctx, chatID, messageID); delErr != nil {
		bridge.ForceUpdate(ctx, "Done ✅")
	}
	removeFiles(cleanup)
	s.PutStatus(ctx, StatusUpdate{ID: id, Status: StatusComplete, Progress: 100, Quality: option.Label})
}

func (s *Service) buildJob(url string, option formats.Option, jsRuntime string) ytdlp.Job {
	selector := ytdlp.FormatSelector(option.FormatID, option.IsAudioOnly, option.HasAudio)
	if !option.IsAudioOnly && s.Config.ForceOutputFormat && strings.EqualFold(s.Config.PreferredOutputFormat, "mp4") {
		if _, err := ytdlp.EnsureFFmpeg(); err == nil {
			height := pickHeight(option.Label)
			if height == "" {
				height = s.Config.DefaultResolution
			}
			selector = ytdlp.ForcedMP4Selector(height)
		}
	}
	return ytdlp.Job{
		URL:                   url,
		Dir:                   s.Config.DownloadDir,
		FormatSelector:        selector,
		AudioOnly:             option.IsAudioOnly,
		CookieFile:            s.Config.CookieFile,
		BrowserCookies:        s.Config.BrowserCookies,
		ForceAudioFormat:      s.Config.ForceAudioFormat,
		PreferredAudioFormat:  s.Config.PreferredAudioFormat,
		ForceOutputFormat:     s.Config.ForceOutputFormat,
		PreferredOutputFormat: s.Config.PreferredOutputFormat,
		JSRuntime:             jsRuntime,
	}
}

func (s *Service) fail(ctx context.Context, id string, chatID int64, messageID int, err error) {
	zaplog.ErrorC(ctx, "session failed", zap.String("id", id), zap.Error(err))
	s.PutStatus(ctx, StatusUpdate{ID: id, Status: StatusFailed, Error: UserMessage(err)})
	if editErr := s.Sink.Edit(ctx, chatID, messageID, UserMessage(err), nil); editErr != nil {
		zaplog.WarnC(ctx, "failed to report error", zap.String("id", id), zap.Error(editErr))
	}
}

func (s *Service) GetStatus(ctx context.Context, id string) (*StatusUpdate, error) {
	data, ok := s.StatusMap.Load(id)
	if !ok {
		return nil, errors.New("status not found")
	}
	out, ok := data.(StatusUpdate)
	if !ok {
		return nil, errors.New("status not found")
	}
	return &out, nil
}

func (s *Service) PutStatus(ctx context.Context, status StatusUpdate) {
	zaplog.InfoC(ctx, "status update", zap.String("id", status.ID), zap.String("status", status.Status))
	s.StatusMap.Store(status.ID, status)
}

// setProgress mirrors engine progress into the status map without the
// per-event log line PutStatus emits.
func (s *Service) setProgress(id string, percent float64) {
	data, ok := s.StatusMap.Load(id)
	if !ok {
		return
	}
	status, ok := data.(StatusUpdate)
	if !ok {
		return
	}
	status.Progress = percent
	s.StatusMap.Store(id, status)
}

func audioOption(options []formats.Option) (formats.Option, bool) {
	for _, option := range options {
		if option.IsAudioOnly {
			return option, true
		}
	}
	return formats.Option{}, false
}

func selectionKeyboard(token string, options []formats.Option) [][]telegram.Button {
	rows := make([][]telegram.Button, 0, len(options))
	for i, option := range options {
		rows = append(rows, []telegram.Button{{Label: buttonLabel(option), Data: PickData(token, i)}})
	}
	return rows
}

func buttonLabel(option formats.Option) string {
	if option.Filesize > 0 {
		return fmt.Sprintf("%s (~%s)", option.Label, formats.HumanSize(option.Filesize))
	}
	return option.Label
}

func sizeHint(option formats.Option) string {
	if option.Filesize > 0 {
		return fmt.Sprintf(" (~%s)", formats.HumanSize(option.Filesize))
	}
	return ""
}

func caption(option formats.Option) string {
	quality := option.QualityLabel
	if quality == "" {
		quality = option.Label
	}
	if quality == "" {
		return "via YTSage"
	}
	return quality + " · via YTSage"
}

// pickHeight extracts the leading height digits from a quality label
// like "720p 60fps".
func pickHeight(label string) string {
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	return label[:end]
}

func removeFiles(paths []string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}
