// Package feature routes incoming updates to the storefront and admin
// handlers and registers users on every interaction.
package feature

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/logging"
)

// ShopHandler serves customer-facing updates.
type ShopHandler interface {
	HandleCommand(ctx context.Context, msg *models.Message, cmd, args string) bool
	HandleText(ctx context.Context, msg *models.Message) bool
	HandleCallback(ctx context.Context, cb *models.CallbackQuery) bool
}

// AdminHandler serves management updates.
type AdminHandler interface {
	HandleCommand(ctx context.Context, msg *models.Message, cmd, args string) bool
	HandleText(ctx context.Context, msg *models.Message) bool
}

// UserRegistry upserts users so every interaction refreshes the record.
type UserRegistry interface {
	EnsureUser(ctx context.Context, userID int64, username string) error
}

// Router decides which handler serves each update. Admin commands are only
// reachable for configured admin ids; everything else falls through to the
// shop.
type Router struct {
	cfg    config.Config
	shop   ShopHandler
	admin  AdminHandler
	users  UserRegistry
	logger *logrus.Entry
}

// NewRouter wires the routing table.
func NewRouter(cfg config.Config, shopHandler ShopHandler, adminHandler AdminHandler, users UserRegistry, logger *logrus.Entry) *Router {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Router{
		cfg:    cfg,
		shop:   shopHandler,
		admin:  adminHandler,
		users:  users,
		logger: logger,
	}
}

// Dispatch serves one update. Handler errors are logged by the handlers
// themselves and never propagate.
func (r *Router) Dispatch(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"event": "handler_panic",
				"panic": fmt.Sprint(rec),
			}).Error("recovered from handler panic")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		r.ensureUser(ctx, &update.CallbackQuery.From)
		if !r.shop.HandleCallback(ctx, update.CallbackQuery) {
			r.logger.WithFields(logging.Fields{
				"event": "callback_unrouted",
				"data":  update.CallbackQuery.Data,
			}).Warn("no handler for callback")
		}
	case update.Message != nil:
		r.dispatchMessage(ctx, update.Message)
	}
}

func (r *Router) dispatchMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}
	r.ensureUser(ctx, msg.From)

	isAdmin := r.cfg.IsAdmin(msg.From.ID)

	if cmd, args, ok := parseCommand(msg.Text); ok {
		if isAdmin && r.admin.HandleCommand(ctx, msg, cmd, args) {
			return
		}
		if r.shop.HandleCommand(ctx, msg, cmd, args) {
			return
		}

		r.logger.WithFields(logging.Fields{
			"event":   "command_unrouted",
			"command": cmd,
			"user_id": msg.From.ID,
		}).Warn("no handler for command")
		return
	}

	if isAdmin && r.admin.HandleText(ctx, msg) {
		return
	}
	if r.shop.HandleText(ctx, msg) {
		return
	}

	r.logger.WithFields(logging.Fields{
		"event":   "text_ignored",
		"user_id": msg.From.ID,
	}).Debug("plain text outside any flow")
}

func (r *Router) ensureUser(ctx context.Context, from *models.User) {
	if from == nil || from.ID == 0 || r.users == nil {
		return
	}

	if err := r.users.EnsureUser(ctx, from.ID, from.Username); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "user_register_error",
			"user_id": from.ID,
		}).WithError(err).Error("failed to register user")
	}
}

// parseCommand splits "/cmd@botname args" into its command and argument
// parts. The bot-name suffix Telegram appends in groups is dropped.
func parseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	rest := strings.TrimPrefix(text, "/")
	if rest == "" {
		return "", "", false
	}

	cmd = rest
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		cmd = rest[:i]
		args = strings.TrimSpace(rest[i+1:])
	}
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}

	return strings.ToLower(cmd), args, cmd != ""
}
