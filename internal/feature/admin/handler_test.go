package admin

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/domain"
	"tg_storefront_bot/internal/session"
)

type fakeSender struct {
	messages []*bot.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) error {
	f.messages = append(f.messages, params)
	return nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	if len(f.messages) == 0 {
		t.Fatal("expected at least one message")
	}
	return f.messages[len(f.messages)-1].Text
}

type fakeStore struct {
	products   []domain.Product
	added      []domain.Product
	deleted    []string
	categories []struct{ id, title string }
	open       []domain.Order
	advanced   []int64
	cancelled  []int64
	questions  []domain.Question
	answers    map[int64]string
	userCount  int64
}

func (f *fakeStore) Categories(context.Context) ([]domain.Category, error) { return nil, nil }

func (f *fakeStore) AddCategory(_ context.Context, id, title string) error {
	f.categories = append(f.categories, struct{ id, title string }{id, title})
	return nil
}

func (f *fakeStore) Products(context.Context) ([]domain.Product, error) {
	return f.products, nil
}

func (f *fakeStore) AddProduct(_ context.Context, p domain.Product) error {
	f.added = append(f.added, p)
	return nil
}

func (f *fakeStore) DeleteProduct(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) OpenOrders(context.Context) ([]domain.Order, error) {
	return f.open, nil
}

func (f *fakeStore) OrderItems(context.Context, int64) ([]domain.OrderItem, error) {
	return nil, nil
}

func (f *fakeStore) AdvanceOrder(_ context.Context, orderID int64) (string, error) {
	f.advanced = append(f.advanced, orderID)
	return domain.OrderConfirmed, nil
}

func (f *fakeStore) CancelOrder(_ context.Context, orderID int64) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeStore) UnansweredQuestions(context.Context) ([]domain.Question, error) {
	return f.questions, nil
}

func (f *fakeStore) AnswerQuestion(_ context.Context, questionID int64, answer string) (int64, error) {
	if f.answers == nil {
		f.answers = make(map[int64]string)
	}
	f.answers[questionID] = answer
	return 7, nil
}

func (f *fakeStore) CountUsers(context.Context) (int64, error) {
	return f.userCount, nil
}

func newTestHandler(store *fakeStore) (*Handler, *fakeSender, *session.MemoryStore) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sender := &fakeSender{}
	sessions := session.NewMemoryStore()
	return NewHandler(sender, store, sessions, logrus.NewEntry(logger)), sender, sessions
}

func msg(userID int64, text string) *models.Message {
	return &models.Message{
		From: &models.User{ID: userID},
		Chat: models.Chat{ID: userID},
		Text: text,
	}
}

func TestAdminMenu(t *testing.T) {
	handler, sender, _ := newTestHandler(&fakeStore{})

	if !handler.HandleCommand(context.Background(), msg(42, "/admin"), "admin", "") {
		t.Fatal("expected /admin handled")
	}
	if !strings.Contains(sender.lastText(t), "/addproduct") {
		t.Fatalf("unexpected menu: %q", sender.lastText(t))
	}
}

func TestUnknownCommandIsNotHandled(t *testing.T) {
	handler, _, _ := newTestHandler(&fakeStore{})

	if handler.HandleCommand(context.Background(), msg(42, "/catalog"), "catalog", "") {
		t.Fatal("expected shop command declined by admin handler")
	}
}

func TestAddProductFlow(t *testing.T) {
	store := &fakeStore{}
	handler, sender, sessions := newTestHandler(store)
	ctx := context.Background()

	handler.HandleCommand(ctx, msg(42, "/addproduct"), "addproduct", "")

	steps := []string{"flower-og", "OG Kush", "Classic indica.", "3500", "flower", "skip"}
	for _, step := range steps {
		if !handler.HandleText(ctx, msg(42, step)) {
			t.Fatalf("expected %q consumed by the flow", step)
		}
	}

	if len(store.added) != 1 {
		t.Fatalf("expected 1 product added, got %d", len(store.added))
	}
	p := store.added[0]
	if p.ID != "flower-og" || p.Title != "OG Kush" || p.PriceCents != 3500 || p.CategoryID != "flower" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if p.Image != "" {
		t.Fatalf("expected skipped image, got %q", p.Image)
	}
	if _, ok, _ := sessions.Get(ctx, 42); ok {
		t.Fatal("expected session cleared after save")
	}
	if !strings.Contains(sender.lastText(t), "$35.00") {
		t.Fatalf("unexpected confirmation: %q", sender.lastText(t))
	}
}

func TestAddProductRejectsBadPrice(t *testing.T) {
	store := &fakeStore{}
	handler, sender, _ := newTestHandler(store)
	ctx := context.Background()

	handler.HandleCommand(ctx, msg(42, "/addproduct"), "addproduct", "")
	for _, step := range []string{"p1", "Title", "Body"} {
		handler.HandleText(ctx, msg(42, step))
	}

	handler.HandleText(ctx, msg(42, "thirty five bucks"))

	if !strings.Contains(sender.lastText(t), "whole number of cents") {
		t.Fatalf("expected price validation, got %q", sender.lastText(t))
	}
	if len(store.added) != 0 {
		t.Fatal("expected no product added")
	}
}

func TestHandleTextOutsideFlowIsIgnored(t *testing.T) {
	handler, _, _ := newTestHandler(&fakeStore{})

	if handler.HandleText(context.Background(), msg(42, "hello")) {
		t.Fatal("expected text outside flow declined")
	}
}

func TestDeleteProduct(t *testing.T) {
	store := &fakeStore{}
	handler, sender, _ := newTestHandler(store)

	handler.HandleCommand(context.Background(), msg(42, "/delproduct p1"), "delproduct", "p1")

	if len(store.deleted) != 1 || store.deleted[0] != "p1" {
		t.Fatalf("expected p1 deleted, got %v", store.deleted)
	}
	if !strings.Contains(sender.lastText(t), "Deleted p1") {
		t.Fatalf("unexpected reply: %q", sender.lastText(t))
	}
}

func TestAddCategoryParsesIDAndTitle(t *testing.T) {
	store := &fakeStore{}
	handler, _, _ := newTestHandler(store)

	handler.HandleCommand(context.Background(), msg(42, "/addcategory vapes Vapes and Carts"), "addcategory", "vapes Vapes and Carts")

	if len(store.categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(store.categories))
	}
	if store.categories[0].id != "vapes" || store.categories[0].title != "Vapes and Carts" {
		t.Fatalf("unexpected category: %+v", store.categories[0])
	}
}

func TestAdvanceOrder(t *testing.T) {
	store := &fakeStore{}
	handler, sender, _ := newTestHandler(store)

	handler.HandleCommand(context.Background(), msg(42, "/advance 5"), "advance", "5")

	if len(store.advanced) != 1 || store.advanced[0] != 5 {
		t.Fatalf("expected order 5 advanced, got %v", store.advanced)
	}
	if !strings.Contains(sender.lastText(t), domain.OrderConfirmed) {
		t.Fatalf("unexpected reply: %q", sender.lastText(t))
	}
}

func TestAdvanceOrderRejectsBadID(t *testing.T) {
	store := &fakeStore{}
	handler, sender, _ := newTestHandler(store)

	handler.HandleCommand(context.Background(), msg(42, "/advance five"), "advance", "five")

	if len(store.advanced) != 0 {
		t.Fatal("expected no advance for bad id")
	}
	if !strings.Contains(sender.lastText(t), "Usage") {
		t.Fatalf("unexpected reply: %q", sender.lastText(t))
	}
}

func TestAnswerRelaysToAskingUser(t *testing.T) {
	store := &fakeStore{}
	handler, sender, _ := newTestHandler(store)

	handler.HandleCommand(context.Background(), msg(42, "/answer 3 next week"), "answer", "3 next week")

	if store.answers[3] != "next week" {
		t.Fatalf("expected answer stored, got %v", store.answers)
	}
	if len(sender.messages) != 2 {
		t.Fatalf("expected relay plus confirmation, got %d messages", len(sender.messages))
	}

	relay := sender.messages[0]
	if relay.ChatID != int64(7) {
		t.Fatalf("expected relay to user 7, got %v", relay.ChatID)
	}
	if !strings.Contains(relay.Text, "next week") {
		t.Fatalf("unexpected relay text: %q", relay.Text)
	}
}

func TestStats(t *testing.T) {
	store := &fakeStore{userCount: 12, open: []domain.Order{{ID: 1}, {ID: 2}}}
	handler, sender, _ := newTestHandler(store)

	handler.HandleCommand(context.Background(), msg(42, "/stats"), "stats", "")

	text := sender.lastText(t)
	if !strings.Contains(text, "Known users: 12") || !strings.Contains(text, "Open orders: 2") {
		t.Fatalf("unexpected stats: %q", text)
	}
}
