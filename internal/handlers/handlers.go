package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gcottom/go-zaplog"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gruzd1sok/YTSage-telegram-bot/config"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/access"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/selection"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/services/session"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/telegram"
	"github.com/gruzd1sok/YTSage-telegram-bot/pkg/youtube"
	"go.uber.org/zap"
)

const betaPrefix = "beta"

const welcomeText = "Hi! Send me a YouTube link and I will download the video for you.\n\n" +
	"Commands:\n" +
	"/download <url> — download a video\n" +
	"/audio <url> — download the audio track only\n" +
	"/help — show this message"

// Dispatcher routes incoming Telegram updates to the session service and
// the access gate. Each update is handled on its own goroutine.
type Dispatcher struct {
	Config  *config.Config
	Sink    telegram.Sink
	Gate    *access.Gate
	Session *session.Service
}

// BetaData encodes an admin moderation action into a callback payload.
func BetaData(action string, userID int64) string {
	return fmt.Sprintf("%s:%s:%d", betaPrefix, action, userID)
}

func parseBetaData(data string) (string, int64, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != betaPrefix {
		return "", 0, false
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || userID == 0 {
		return "", 0, false
	}
	return parts[1], userID, true
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	principal := messagePrincipal(msg)
	if !d.ensureAllowed(ctx, principal, msg.Chat.ID) {
		return
	}

	if msg.IsCommand() {
		d.handleCommand(ctx, msg, principal)
		return
	}

	if url := youtube.ExtractURL(msg.Text); url != "" {
		if err := d.Session.HandleURL(ctx, msg.Chat.ID, principal.UserID, url); err != nil {
			zaplog.WarnC(ctx, "failed to handle url message", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
		return
	}

	if msg.Chat.IsPrivate() && strings.TrimSpace(msg.Text) != "" {
		if _, err := d.Sink.Send(ctx, msg.Chat.ID, "Send me a YouTube link, or /help for the command list.", nil); err != nil {
			zaplog.WarnC(ctx, "failed to send hint", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg *tgbotapi.Message, principal access.Principal) {
	switch msg.Command() {
	case "start":
		d.handleStart(ctx, msg.Chat.ID)
	case "help":
		if _, err := d.Sink.Send(ctx, msg.Chat.ID, welcomeText, nil); err != nil {
			zaplog.WarnC(ctx, "failed to send help", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	case "download":
		d.handleLinkCommand(ctx, msg, principal, false)
	case "audio":
		d.handleLinkCommand(ctx, msg, principal, true)
	default:
		if _, err := d.Sink.Send(ctx, msg.Chat.ID, "Unknown command. Try /help.", nil); err != nil {
			zaplog.WarnC(ctx, "failed to send unknown command reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	}
}

// handleStart posts the welcome message and pins it. Pinning fails in
// chats where the bot lacks rights; that is not an error.
func (d *Dispatcher) handleStart(ctx context.Context, chatID int64) {
	messageID, err := d.Sink.Send(ctx, chatID, welcomeText, nil)
	if err != nil {
		zaplog.WarnC(ctx, "failed to send welcome", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	if err = d.Sink.Pin(ctx, chatID, messageID); err != nil {
		zaplog.InfoC(ctx, "could not pin welcome message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) handleLinkCommand(ctx context.Context, msg *tgbotapi.Message, principal access.Principal, audioOnly bool) {
	url := youtube.ExtractURL(msg.CommandArguments())
	if url == "" {
		url = youtube.ExtractURL(msg.Text)
	}
	if url == "" {
		usage := fmt.Sprintf("Usage: /%s <youtube url>", msg.Command())
		if _, err := d.Sink.Send(ctx, msg.Chat.ID, usage, nil); err != nil {
			zaplog.WarnC(ctx, "failed to send usage", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
		return
	}

	var err error
	if audioOnly {
		err = d.Session.HandleAudio(ctx, msg.Chat.ID, principal.UserID, url)
	} else {
		err = d.Session.HandleURL(ctx, msg.Chat.ID, principal.UserID, url)
	}
	if err != nil {
		zaplog.WarnC(ctx, "failed to handle link command", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	switch {
	case session.IsPickData(cb.Data):
		d.handlePickCallback(ctx, cb)
	case strings.HasPrefix(cb.Data, betaPrefix+":"):
		d.handleBetaCallback(ctx, cb)
	default:
		d.answer(ctx, cb.ID, "", false)
	}
}

func (d *Dispatcher) handlePickCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		d.answer(ctx, cb.ID, "", false)
		return
	}
	chatID := cb.Message.Chat.ID
	principal := access.Principal{UserID: cb.From.ID, ChatID: chatID}
	if d.Gate.Enabled() && !d.Gate.IsAllowed(principal) {
		d.answer(ctx, cb.ID, "You do not have access to the bot.", true)
		return
	}

	token, index, ok := session.ParsePickData(cb.Data)
	if !ok {
		d.answer(ctx, cb.ID, "Could not process the selection.", false)
		return
	}

	err := d.Session.HandlePick(ctx, chatID, cb.Message.MessageID, cb.From.ID, token, index)
	switch {
	case errors.Is(err, selection.ErrNotOwner):
		d.answer(ctx, cb.ID, "This menu belongs to another user.", true)
	case err != nil:
		d.answer(ctx, cb.ID, "", false)
	default:
		d.answer(ctx, cb.ID, "Starting the download…", false)
	}
}

func (d *Dispatcher) handleBetaCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		d.answer(ctx, cb.ID, "", false)
		return
	}
	chatID := cb.Message.Chat.ID
	// The keyboard lives in the admin's chat, so the chat id must not
	// count toward moderator identity; only the pressing user does.
	if !d.Gate.IsAdmin(access.Principal{UserID: cb.From.ID}) {
		d.answer(ctx, cb.ID, "Only the admin can do that.", true)
		return
	}

	action, userID, ok := parseBetaData(cb.Data)
	if !ok {
		d.answer(ctx, cb.ID, "", false)
		return
	}

	switch action {
	case "approve":
		if err := d.Gate.Approve(ctx, userID); err != nil {
			zaplog.ErrorC(ctx, "failed to approve user", zap.Int64("user_id", userID), zap.Error(err))
			d.answer(ctx, cb.ID, "Failed to save the approval.", true)
			return
		}
		d.editModeration(ctx, chatID, cb.Message.MessageID, fmt.Sprintf("Approved user %d ✅", userID))
		if _, err := d.Sink.Send(ctx, userID, "You have been granted access!\n\n"+welcomeText, nil); err != nil {
			zaplog.WarnC(ctx, "failed to notify approved user", zap.Int64("user_id", userID), zap.Error(err))
		}
		d.answer(ctx, cb.ID, "Approved", false)
	case "decline":
		d.editModeration(ctx, chatID, cb.Message.MessageID, fmt.Sprintf("Declined user %d ❌", userID))
		d.answer(ctx, cb.ID, "Declined", false)
	default:
		d.answer(ctx, cb.ID, "", false)
	}
}

// ensureAllowed applies the access gate to an inbound message. The first
// attempt by a new principal notifies the admin with moderation buttons;
// repeats only remind the requester.
func (d *Dispatcher) ensureAllowed(ctx context.Context, principal access.Principal, chatID int64) bool {
	if !d.Gate.Enabled() || d.Gate.IsAllowed(principal) {
		return true
	}

	first := d.Gate.RecordAttempt(ctx, principal)
	if _, err := d.Sink.Send(ctx, chatID, "The bot is in closed beta. Your access request was sent to the admin.", nil); err != nil {
		zaplog.WarnC(ctx, "failed to send pending notice", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if first && d.Config.AdminChatID != 0 {
		buttons := [][]telegram.Button{{
			{Label: "Approve ✅", Data: BetaData("approve", principal.ID())},
			{Label: "Decline ❌", Data: BetaData("decline", principal.ID())},
		}}
		notice := fmt.Sprintf("Beta access request from user %d.", principal.ID())
		if _, err := d.Sink.Send(ctx, d.Config.AdminChatID, notice, buttons); err != nil {
			zaplog.WarnC(ctx, "failed to notify admin", zap.Error(err))
		}
	}
	return false
}

func (d *Dispatcher) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := d.Sink.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		zaplog.WarnC(ctx, "failed to answer callback", zap.Error(err))
	}
}

func (d *Dispatcher) editModeration(ctx context.Context, chatID int64, messageID int, text string) {
	if err := d.Sink.Edit(ctx, chatID, messageID, text, nil); err != nil {
		zaplog.WarnC(ctx, "failed to edit moderation message", zap.Error(err))
	}
}

func messagePrincipal(msg *tgbotapi.Message) access.Principal {
	principal := access.Principal{ChatID: msg.Chat.ID}
	if msg.From != nil {
		principal.UserID = msg.From.ID
	}
	return principal
}
