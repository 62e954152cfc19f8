// Package lifecycle brings the bot into a receiving-ready state, in either
// webhook or long-poll mode, and keeps a truthful initialization record
// throughout.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/logging"
	"tg_storefront_bot/internal/session"
)

// Webhook registration retry budget. Each attempt re-clears the webhook
// before registering, so a retry is idempotent.
const (
	registerAttempts       = 3
	registerInitialBackoff = 1 * time.Second

	dbCheckTimeout   = 10 * time.Second
	webhookOpTimeout = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// sleep is overridable for tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Messenger is the slice of the Telegram client the lifecycle needs.
type Messenger interface {
	SetWebhook(ctx context.Context, url string, dropPending bool) error
	DeleteWebhook(ctx context.Context, dropPending bool) error
	WebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
	Poll(ctx context.Context) error
}

// Pinger is the database reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Manager runs the startup sequence and owns the initialization record.
type Manager struct {
	cfg      config.Config
	client   Messenger
	db       Pinger
	sessions session.Store
	status   *Status
	logger   *logrus.Entry
}

// NewManager wires the lifecycle dependencies. The caller may share a status
// record that started ticking before the heavy startup phases ran; passing
// nil creates a fresh one.
func NewManager(cfg config.Config, client Messenger, db Pinger, sessions session.Store, status *Status, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logging.Logger()
	}
	if status == nil {
		status = NewStatus()
	}

	return &Manager{
		cfg:      cfg,
		client:   client,
		db:       db,
		sessions: sessions,
		status:   status,
		logger:   logger,
	}
}

// Status exposes the initialization record for the health endpoints.
func (m *Manager) Status() *Status {
	return m.status
}

// Run performs the startup sequence (env check, database check, webhook
// clear/register/verify or poll-loop start) and then blocks until the
// context is canceled. Startup failures are fatal and returned to the
// caller so the process can exit non-zero.
func (m *Manager) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := m.checkEnv(); err != nil {
		return err
	}
	if err := m.checkDatabase(ctx); err != nil {
		return err
	}

	if m.cfg.WebhookMode() {
		if err := m.registerWebhook(ctx); err != nil {
			return err
		}
		m.status.MarkInitialized()
		m.logger.WithFields(logging.Fields{
			"event": "startup_complete",
			"mode":  "webhook",
			"url":   m.cfg.WebhookURL(),
		}).Info("bot is ready")

		<-ctx.Done()
		return nil
	}

	if err := m.clearWebhook(ctx); err != nil {
		m.status.AppendError(err.Error())
		return err
	}
	m.status.MarkInitialized()
	m.logger.WithFields(logging.Fields{
		"event": "startup_complete",
		"mode":  "polling",
	}).Info("bot is ready")

	return m.client.Poll(ctx)
}

// Shutdown clears the webhook registration and closes the session store.
// Each step is attempted even when an earlier one fails.
func (m *Manager) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if m.cfg.WebhookMode() {
		if err := m.client.DeleteWebhook(ctx, false); err != nil {
			m.logger.WithField("event", "shutdown_webhook").
				WithError(err).Warn("failed to clear webhook on shutdown")
		} else {
			m.logger.WithField("event", "shutdown_webhook").Info("webhook cleared")
		}
	}

	if m.sessions != nil {
		if err := m.sessions.Close(); err != nil {
			m.logger.WithField("event", "shutdown_sessions").
				WithError(err).Warn("failed to close session store")
		}
	}
}

func (m *Manager) checkEnv() error {
	if m.cfg.BotToken == "" {
		m.status.SetEnvStatus(StatusMissingToken)
		m.status.AppendError("bot token is not configured")
		return errors.New("bot token is not configured")
	}

	m.status.SetEnvStatus(StatusOK)
	return nil
}

func (m *Manager) checkDatabase(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, dbCheckTimeout)
	defer cancel()

	if err := m.db.Ping(checkCtx); err != nil {
		m.status.SetDBStatus(fmt.Sprintf("failed: %v", err))
		m.status.AppendError(fmt.Sprintf("database check failed: %v", err))
		return fmt.Errorf("database check: %w", err)
	}

	m.status.SetDBStatus(StatusOK)
	return nil
}

func (m *Manager) clearWebhook(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, webhookOpTimeout)
	defer cancel()

	return m.client.DeleteWebhook(opCtx, true)
}

// registerWebhook clears, registers, and verifies the callback URL, with a
// doubling backoff between attempts. Exhausting the budget is fatal: a
// half-registered bot should not serve traffic.
func (m *Manager) registerWebhook(ctx context.Context) error {
	url := m.cfg.WebhookURL()
	backoff := registerInitialBackoff

	var lastErr error
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		lastErr = m.tryRegister(ctx, url)
		if lastErr == nil {
			m.status.SetWebhookURL(url)
			return nil
		}

		m.status.AppendError(fmt.Sprintf("webhook registration attempt %d failed: %v", attempt, lastErr))
		m.logger.WithFields(logging.Fields{
			"event":   "webhook_register_retry",
			"attempt": attempt,
			"url":     url,
		}).WithError(lastErr).Warn("webhook registration failed")

		if attempt == registerAttempts {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}

	return fmt.Errorf("webhook registration failed after %d attempts: %w", registerAttempts, lastErr)
}

func (m *Manager) tryRegister(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, webhookOpTimeout)
	defer cancel()

	if err := m.client.DeleteWebhook(opCtx, true); err != nil {
		return fmt.Errorf("clear webhook: %w", err)
	}
	if err := m.client.SetWebhook(opCtx, url, true); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := m.client.WebhookInfo(opCtx)
	if err != nil {
		return fmt.Errorf("verify webhook: %w", err)
	}
	if info == nil || info.URL != url {
		got := ""
		if info != nil {
			got = info.URL
		}
		return fmt.Errorf("webhook verification mismatch: registered %q, platform reports %q", url, got)
	}

	return nil
}
