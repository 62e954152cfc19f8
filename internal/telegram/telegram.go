// Package telegram hosts the Telegram client adapter. Every outbound API
// call goes through the retry policy before its error reaches the caller.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/logging"
	"tg_storefront_bot/internal/retry"
)

// On a conflict from a concurrent poller the client backs off for
// pollConflictDelay and lets the framework resume instead of exiting.
const pollConflictDelay = 10 * time.Second

type botAPI interface {
	Start(ctx context.Context)
	ProcessUpdate(ctx context.Context, update *models.Update)
	GetMe(ctx context.Context) (*models.User, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	GetWebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// UpdateHandler receives every decoded update after the client has logged it.
type UpdateHandler func(ctx context.Context, update *models.Update)

// Client wraps the Telegram bot instance with retry and logging.
type Client struct {
	api     botAPI
	logger  *logrus.Entry
	retry   retry.Policy
	handler UpdateHandler

	mu      sync.Mutex
	pollCtx context.Context
}

// NewClient initializes the Telegram API client. Update routing is attached
// later with OnUpdate so the router can hold a reference to the client.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("bot token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger: logger,
		retry:  retry.NewPolicy(logger),
	}

	api, err := createBot(cfg.BotToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			client.handleUpdate(ctx, update)
		}),
		bot.WithErrorsHandler(func(err error) {
			client.handleClientError(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.api = api
	return client, nil
}

// OnUpdate installs the routing function invoked for each decoded update.
func (c *Client) OnUpdate(handler UpdateHandler) {
	c.handler = handler
}

// Dispatch hands one decoded update to the framework, which routes it to the
// installed handler. Used by the webhook endpoint.
func (c *Client) Dispatch(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	c.api.ProcessUpdate(ctx, update)
}

// GetMe fetches the bot's own account, confirming the token is valid.
func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	var me *models.User
	err := c.retry.Do(ctx, "getMe", func(ctx context.Context) error {
		var err error
		me, err = c.api.GetMe(ctx)
		return err
	})
	return me, err
}

// SetWebhook registers the callback URL with the platform.
func (c *Client) SetWebhook(ctx context.Context, url string, dropPending bool) error {
	return c.retry.Do(ctx, "setWebhook", func(ctx context.Context) error {
		_, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:                url,
			DropPendingUpdates: dropPending,
		})
		return err
	})
}

// DeleteWebhook clears any existing callback registration.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.retry.Do(ctx, "deleteWebhook", func(ctx context.Context) error {
		_, err := c.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{
			DropPendingUpdates: dropPending,
		})
		return err
	})
}

// WebhookInfo queries the current registration back from the platform.
func (c *Client) WebhookInfo(ctx context.Context) (*models.WebhookInfo, error) {
	var info *models.WebhookInfo
	err := c.retry.Do(ctx, "getWebhookInfo", func(ctx context.Context) error {
		var err error
		info, err = c.api.GetWebhookInfo(ctx)
		return err
	})
	return info, err
}

// SendMessage sends a text message through the retry policy.
func (c *Client) SendMessage(ctx context.Context, params *bot.SendMessageParams) error {
	return c.retry.Do(ctx, "sendMessage", func(ctx context.Context) error {
		_, err := c.api.SendMessage(ctx, params)
		return err
	})
}

// SendPhoto sends a photo message through the retry policy.
func (c *Client) SendPhoto(ctx context.Context, params *bot.SendPhotoParams) error {
	return c.retry.Do(ctx, "sendPhoto", func(ctx context.Context) error {
		_, err := c.api.SendPhoto(ctx, params)
		return err
	})
}

// AnswerCallbackQuery acknowledges an inline-button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) error {
	return c.retry.Do(ctx, "answerCallbackQuery", func(ctx context.Context) error {
		_, err := c.api.AnswerCallbackQuery(ctx, params)
		return err
	})
}

// Poll receives updates via long polling until the context is canceled. The
// framework owns the getUpdates loop; its polling errors arrive through
// handleClientError, where a conflict triggers a cool-down instead of an exit.
func (c *Client) Poll(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	c.mu.Lock()
	c.pollCtx = ctx
	c.mu.Unlock()

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.api.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
	return nil
}

// handleClientError runs on the framework's polling goroutine, so blocking
// here delays the next getUpdates attempt. A conflict means another poller
// holds the token; the cool-down gives it time to release before we resume.
func (c *Client) handleClientError(err error) {
	if err == nil {
		return
	}

	if isConflict(err) {
		c.logger.WithField("event", "telegram_poll_conflict").
			Warn("another poller holds this token, backing off")
		_ = wait(c.pollContext(), pollConflictDelay)
		return
	}

	c.logger.WithField("event", "telegram_error").WithError(err).Error("telegram client error")
}

func (c *Client) pollContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pollCtx != nil {
		return c.pollCtx
	}
	return context.Background()
}

// wait is overridable for tests.
var wait = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bot.ErrorConflict) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "conflict")
}

func (c *Client) handleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}
	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	c.logger.WithFields(fields).Info("telegram update received")

	if c.handler != nil {
		c.handler(ctx, update)
	}
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
