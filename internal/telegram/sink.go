package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/media"
)

// FileKind selects the delivery method for a finished file.
type FileKind string

const (
	FileAudio    FileKind = "audio"
	FileVideo    FileKind = "video"
	FileDocument FileKind = "document"
)

// Button is one inline keyboard button; Data is the callback payload.
type Button struct {
	Label string
	Data  string
}

// Sink is the notification surface the orchestrator talks to. All calls
// may fail; failures are non-fatal except the final file delivery.
type Sink interface {
	Send(ctx context.Context, chatID int64, text string, buttons [][]Button) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, buttons [][]Button) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	SendFile(ctx context.Context, chatID int64, kind FileKind, path, caption string) error
	Pin(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// BotSink implements Sink over the Telegram Bot API.
type BotSink struct {
	api *tgbotapi.BotAPI
}

// NewBotSink logs in to the Bot API. mediaClient, when non-nil, is used
// for uploads so large file writes get their own timeout.
func NewBotSink(token string, mediaClient *http.Client) (*BotSink, error) {
	var api *tgbotapi.BotAPI
	var err error
	if mediaClient != nil {
		api, err = tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, mediaClient)
	} else {
		api, err = tgbotapi.NewBotAPI(token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api client: %w", err)
	}
	return &BotSink{api: api}, nil
}

// API exposes the underlying client for the update long-poll loop.
func (s *BotSink) API() *tgbotapi.BotAPI {
	return s.api
}

func (s *BotSink) Send(ctx context.Context, chatID int64, text string, buttons [][]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := keyboard(buttons); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

func (s *BotSink) Edit(ctx context.Context, chatID int64, messageID int, text string, buttons [][]Button) error {
	var err error
	if markup := keyboard(buttons); markup != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
		_, err = s.api.Send(edit)
	} else {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		_, err = s.api.Send(edit)
	}
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (s *BotSink) Delete(ctx context.Context, chatID int64, messageID int) error {
	if _, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (s *BotSink) SendFile(ctx context.Context, chatID int64, kind FileKind, path, caption string) error {
	var payload tgbotapi.Chattable
	switch kind {
	case FileAudio:
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
		audio.Caption = caption
		payload = audio
	case FileVideo:
		return s.sendVideo(ctx, chatID, path, caption)
	default:
		document := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
		document.Caption = caption
		payload = document
	}

	if _, err := s.api.Send(payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	return nil
}

// sendVideo uploads through the raw sendVideo endpoint. VideoConfig has
// no width or height fields, and without them Telegram renders the
// preview with a guessed aspect ratio.
func (s *BotSink) sendVideo(ctx context.Context, chatID int64, path, caption string) error {
	params := videoParams(ctx, chatID, path, caption)
	files := []tgbotapi.RequestFile{{Name: "video", Data: tgbotapi.FilePath(path)}}
	if _, err := s.api.UploadFiles("sendVideo", params, files); err != nil {
		return fmt.Errorf("failed to send video: %w", err)
	}
	return nil
}

func (s *BotSink) Pin(ctx context.Context, chatID int64, messageID int) error {
	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           messageID,
		DisableNotification: true,
	}
	if _, err := s.api.Request(pin); err != nil {
		return fmt.Errorf("failed to pin message: %w", err)
	}
	return nil
}

func (s *BotSink) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	answer := tgbotapi.NewCallback(callbackID, text)
	answer.ShowAlert = alert
	if _, err := s.api.Request(answer); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

func videoParams(ctx context.Context, chatID int64, path, caption string) tgbotapi.Params {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", chatID)
	params.AddNonEmpty("caption", caption)
	params.AddBool("supports_streaming", true)
	if width, height := media.ProbeDimensions(ctx, path); width > 0 && height > 0 {
		params.AddNonZero("width", width)
		params.AddNonZero("height", height)
	}
	return params
}

func keyboard(buttons [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		cells := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			cells = append(cells, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data))
		}
		rows = append(rows, cells)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
