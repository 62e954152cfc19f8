package lifecycle

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/session"
)

type fakeMessenger struct {
	setCalls    []string
	deleteCalls []bool
	pollCalls   int

	setErr      error
	setErrTimes int
	infoURL     string
	infoErr     error

	onInfo func()
	onPoll func(ctx context.Context)
}

func (f *fakeMessenger) SetWebhook(_ context.Context, url string, _ bool) error {
	f.setCalls = append(f.setCalls, url)
	if f.setErr != nil && (f.setErrTimes == 0 || len(f.setCalls) <= f.setErrTimes) {
		return f.setErr
	}
	return nil
}

func (f *fakeMessenger) DeleteWebhook(_ context.Context, dropPending bool) error {
	f.deleteCalls = append(f.deleteCalls, dropPending)
	return nil
}

func (f *fakeMessenger) WebhookInfo(context.Context) (*models.WebhookInfo, error) {
	if f.onInfo != nil {
		f.onInfo()
	}
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &models.WebhookInfo{URL: f.infoURL}, nil
}

func (f *fakeMessenger) Poll(ctx context.Context) error {
	f.pollCalls++
	if f.onPoll != nil {
		f.onPoll(ctx)
	}
	return nil
}

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	return f.err
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()

	var slept []time.Duration
	old := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { sleep = old })

	return &slept
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newManager(cfg config.Config, client *fakeMessenger, db *fakePinger) *Manager {
	return NewManager(cfg, client, db, session.NewMemoryStore(), nil, testLogger())
}

func TestRunFailsFastWithoutToken(t *testing.T) {
	client := &fakeMessenger{}
	db := &fakePinger{}
	manager := newManager(config.Config{}, client, db)

	err := manager.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error for missing token")
	}

	snap := manager.Status().Snapshot()
	if snap.EnvStatus != StatusMissingToken {
		t.Fatalf("expected env status %q, got %q", StatusMissingToken, snap.EnvStatus)
	}
	if snap.Initialized {
		t.Fatal("expected uninitialized status")
	}
	if len(snap.Errors) == 0 {
		t.Fatal("expected recorded error")
	}
	if db.calls != 0 {
		t.Fatal("expected no database check before env check passes")
	}
	if len(client.setCalls) != 0 || len(client.deleteCalls) != 0 {
		t.Fatal("expected no network calls before env check passes")
	}
}

func TestRunRecordsDatabaseFailure(t *testing.T) {
	client := &fakeMessenger{}
	db := &fakePinger{err: errors.New("connection refused")}
	manager := newManager(config.Config{BotToken: "t"}, client, db)

	err := manager.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error for database failure")
	}

	snap := manager.Status().Snapshot()
	if snap.EnvStatus != StatusOK {
		t.Fatalf("expected env ok, got %q", snap.EnvStatus)
	}
	if !strings.HasPrefix(snap.DBStatus, "failed:") {
		t.Fatalf("expected failed db status, got %q", snap.DBStatus)
	}
	if snap.Initialized {
		t.Fatal("expected uninitialized status")
	}
}

func TestRunWebhookModeRegistersAndVerifies(t *testing.T) {
	stubSleep(t)

	cfg := config.Config{BotToken: "t", PublicDomain: "shop.example.com"}
	wantURL := cfg.WebhookURL()

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeMessenger{infoURL: wantURL, onInfo: cancel}
	manager := newManager(cfg, client, &fakePinger{})

	if err := manager.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(client.setCalls) != 1 || client.setCalls[0] != wantURL {
		t.Fatalf("expected one setWebhook with %q, got %v", wantURL, client.setCalls)
	}
	if len(client.deleteCalls) != 1 || !client.deleteCalls[0] {
		t.Fatalf("expected one clearing delete with drop_pending, got %v", client.deleteCalls)
	}
	if client.pollCalls != 0 {
		t.Fatal("expected no polling in webhook mode")
	}

	snap := manager.Status().Snapshot()
	if !snap.Initialized {
		t.Fatal("expected initialized status")
	}
	if snap.WebhookURL != wantURL {
		t.Fatalf("expected webhook url %q, got %q", wantURL, snap.WebhookURL)
	}
}

func TestRegisterWebhookRetriesWithDoublingBackoff(t *testing.T) {
	slept := stubSleep(t)

	cfg := config.Config{BotToken: "t", PublicDomain: "shop.example.com"}
	client := &fakeMessenger{
		setErr:      errors.New("bad gateway"),
		setErrTimes: 2,
		infoURL:     cfg.WebhookURL(),
	}
	manager := newManager(cfg, client, &fakePinger{})

	if err := manager.registerWebhook(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(client.setCalls) != 3 {
		t.Fatalf("expected 3 register attempts, got %d", len(client.setCalls))
	}
	// Each attempt re-clears the webhook first.
	if len(client.deleteCalls) != 3 {
		t.Fatalf("expected 3 clearing deletes, got %d", len(client.deleteCalls))
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoffs %v, got %v", want, *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("backoff %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestRegisterWebhookTreatsVerificationMismatchAsFailure(t *testing.T) {
	stubSleep(t)

	cfg := config.Config{BotToken: "t", PublicDomain: "shop.example.com"}
	client := &fakeMessenger{infoURL: "https://stale.example.com/webhook"}
	manager := newManager(cfg, client, &fakePinger{})

	err := manager.registerWebhook(context.Background())
	if err == nil {
		t.Fatal("expected verification mismatch to be fatal")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if len(client.setCalls) != registerAttempts {
		t.Fatalf("expected %d attempts, got %d", registerAttempts, len(client.setCalls))
	}

	snap := manager.Status().Snapshot()
	if len(snap.Errors) != registerAttempts {
		t.Fatalf("expected %d recorded errors, got %d", registerAttempts, len(snap.Errors))
	}
}

func TestRunPollingModeNeverRegistersWebhook(t *testing.T) {
	cfg := config.Config{BotToken: "t"}
	client := &fakeMessenger{}
	manager := newManager(cfg, client, &fakePinger{})

	if err := manager.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(client.setCalls) != 0 {
		t.Fatalf("expected no setWebhook calls in polling mode, got %v", client.setCalls)
	}
	if len(client.deleteCalls) != 1 {
		t.Fatalf("expected a single webhook clear at startup, got %d", len(client.deleteCalls))
	}
	if client.pollCalls != 1 {
		t.Fatalf("expected the poll loop to start, got %d calls", client.pollCalls)
	}
	if !manager.Status().Initialized() {
		t.Fatal("expected initialized status before polling begins")
	}
}

type closableSessions struct {
	session.Store
	closed int
}

func (c *closableSessions) Close() error {
	c.closed++
	return nil
}

func TestShutdownClearsWebhookAndClosesSessions(t *testing.T) {
	cfg := config.Config{BotToken: "t", PublicDomain: "shop.example.com"}
	client := &fakeMessenger{}
	sessions := &closableSessions{Store: session.NewMemoryStore()}
	manager := NewManager(cfg, client, &fakePinger{}, sessions, nil, testLogger())

	manager.Shutdown()

	if len(client.deleteCalls) != 1 {
		t.Fatalf("expected webhook cleared on shutdown, got %d deletes", len(client.deleteCalls))
	}
	if sessions.closed != 1 {
		t.Fatalf("expected session store closed once, got %d", sessions.closed)
	}
}

func TestShutdownInPollingModeSkipsWebhookClear(t *testing.T) {
	client := &fakeMessenger{}
	sessions := &closableSessions{Store: session.NewMemoryStore()}
	manager := NewManager(config.Config{BotToken: "t"}, client, &fakePinger{}, sessions, nil, testLogger())

	manager.Shutdown()

	if len(client.deleteCalls) != 0 {
		t.Fatalf("expected no webhook calls, got %d", len(client.deleteCalls))
	}
	if sessions.closed != 1 {
		t.Fatalf("expected session store closed even without a webhook, got %d", sessions.closed)
	}
}

func TestStatusSnapshotUsesISOTimestamps(t *testing.T) {
	status := NewStatus()
	snap := status.Snapshot()

	if _, err := time.Parse(time.RFC3339, snap.StartTime); err != nil {
		t.Fatalf("expected RFC3339 start_time, got %q: %v", snap.StartTime, err)
	}
	if snap.EnvStatus != StatusNotChecked || snap.DBStatus != StatusNotChecked {
		t.Fatalf("expected pending checks, got env=%q db=%q", snap.EnvStatus, snap.DBStatus)
	}
}
