// Package telegram is the bot surface: commands, callbacks, and the
// persisted conversation state machine behind free-text input.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sol-gate/internal/auth"
	"github.com/suspectuso/sol-gate/internal/config"
	"github.com/suspectuso/sol-gate/internal/referral"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot       *bot.Bot
	cfg       *config.Config
	store     *storage.Storage
	referrals *referral.Engine
	auth      *auth.Service
	sm        *StateMachine
	log       *slog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, store *storage.Storage, referrals *referral.Engine, authSvc *auth.Service, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:       cfg,
		store:     store,
		referrals: referrals,
		auth:      authSvc,
		sm:        NewStateMachine(store, referrals, cfg.BotUsername),
		log:       log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/myid", bot.MatchTypeExact, b.myidHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/referral", bot.MatchTypeExact, b.referralHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/admin_stats", bot.MatchTypeExact, b.adminStatsHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// SendNotification sends a message to a user outside any update flow; the
// notifier uses this to relay payment outcomes.
func (b *Bot) SendNotification(ctx context.Context, userID int64, text string, keyboard *models.InlineKeyboardMarkup) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}
