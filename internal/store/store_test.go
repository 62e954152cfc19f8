package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/domain"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &Manager{db: db}, mock
}

func TestNewManagerPingsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	oldOpen := sqlOpen
	sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
		if driverName != "postgres" {
			t.Fatalf("expected postgres driver, got %s", driverName)
		}
		return db, nil
	}
	t.Cleanup(func() { sqlOpen = oldOpen })

	mock.ExpectPing()

	manager, err := NewManager(context.Background(), config.Config{DatabaseURL: "postgres://x"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if manager.DB() == nil {
		t.Fatal("expected pool handle")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewManagerFailsWhenPingFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	oldOpen := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { sqlOpen = oldOpen })

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if _, err := NewManager(context.Background(), config.Config{DatabaseURL: "postgres://x"}); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestEnsureSchema(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := manager.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPingRunsTrivialQuery(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	if err := manager.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnError(sql.ErrConnDone)
	if err := manager.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure")
	}
}

func TestEnsureUserUpserts(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users(user_id, username, role)")).
		WithArgs(int64(42), "alice", domain.RoleUser).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := manager.EnsureUser(context.Background(), 42, "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	if err := manager.EnsureUser(context.Background(), 0, ""); err == nil {
		t.Fatal("expected error for zero user id")
	}
}

func TestGetProductHandlesMissingRow(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectQuery("FROM products p").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := manager.GetProduct(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if ok {
		t.Fatal("expected missing product")
	}
}

func TestCartItemsAndTotal(t *testing.T) {
	manager, mock := newMockManager(t)

	rows := sqlmock.NewRows([]string{"idx", "title", "price", "quantity"}).
		AddRow("p1", "OG Kush", int64(3500), 2).
		AddRow("p2", "Gummies", int64(1500), 1)

	mock.ExpectQuery("SELECT p.idx, p.title, p.price, c.quantity").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	items, err := manager.CartItems(context.Background(), 7)
	if err != nil {
		t.Fatalf("cart items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if got := domain.CartTotal(items); got != 8500 {
		t.Fatalf("expected total 8500, got %d", got)
	}
}

func TestAddToCartIncrements(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart(user_id, product_id, quantity)")).
		WithArgs(int64(7), "p1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := manager.AddToCart(context.Background(), 7, "p1"); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateOrderIsTransactional(t *testing.T) {
	manager, mock := newMockManager(t)

	items := []domain.CartItem{
		{ProductID: "p1", PriceCents: 3500, Quantity: 2},
		{ProductID: "p2", PriceCents: 1500, Quantity: 1},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders(user_id, status, shipping_address, total_amount)")).
		WithArgs(int64(7), domain.OrderPending, "221B Baker Street", int64(8500)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(int64(99)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items(order_id, product_id, quantity, price)")).
		WithArgs(int64(99), "p1", 2, int64(3500)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items(order_id, product_id, quantity, price)")).
		WithArgs(int64(99), "p2", 1, int64(1500)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart WHERE user_id=$1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	orderID, err := manager.CreateOrder(context.Background(), 7, "221B Baker Street", items)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if orderID != 99 {
		t.Fatalf("expected order id 99, got %d", orderID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	manager, _ := newMockManager(t)

	if _, err := manager.CreateOrder(context.Background(), 7, "addr", nil); err == nil {
		t.Fatal("expected error for empty cart")
	}
}

func TestCreateOrderRollsBackOnItemFailure(t *testing.T) {
	manager, mock := newMockManager(t)

	items := []domain.CartItem{{ProductID: "p1", PriceCents: 100, Quantity: 1}}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders(user_id, status, shipping_address, total_amount)")).
		WithArgs(int64(7), domain.OrderPending, "addr", int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(int64(5)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items(order_id, product_id, quantity, price)")).
		WithArgs(int64(5), "p1", 1, int64(100)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if _, err := manager.CreateOrder(context.Background(), 7, "addr", items); err == nil {
		t.Fatal("expected item insert failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceOrder(t *testing.T) {
	manager, mock := newMockManager(t)
	created := time.Now()

	mock.ExpectQuery("SELECT order_id, user_id, status").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "status", "shipping_address", "total_amount", "created_at"}).
			AddRow(int64(5), int64(7), domain.OrderPending, "addr", int64(100), created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status=$1 WHERE order_id=$2")).
		WithArgs(domain.OrderConfirmed, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status, err := manager.AdvanceOrder(context.Background(), 5)
	if err != nil {
		t.Fatalf("advance order: %v", err)
	}
	if status != domain.OrderConfirmed {
		t.Fatalf("expected %s, got %s", domain.OrderConfirmed, status)
	}
}

func TestAdvanceOrderTerminalStatusIsNoop(t *testing.T) {
	manager, mock := newMockManager(t)
	created := time.Now()

	mock.ExpectQuery("SELECT order_id, user_id, status").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "status", "shipping_address", "total_amount", "created_at"}).
			AddRow(int64(5), int64(7), domain.OrderDelivered, "addr", int64(100), created))

	status, err := manager.AdvanceOrder(context.Background(), 5)
	if err != nil {
		t.Fatalf("advance order: %v", err)
	}
	if status != domain.OrderDelivered {
		t.Fatalf("expected terminal status to stay, got %s", status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO questions(user_id, text)")).
		WithArgs(int64(7), "when do you restock?").
		WillReturnRows(sqlmock.NewRows([]string{"question_id"}).AddRow(int64(3)))

	id, err := manager.AddQuestion(context.Background(), 7, "when do you restock?")
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected question id 3, got %d", id)
	}

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE questions SET answer=$1, answered=TRUE")).
		WithArgs("next week", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(7)))

	userID, err := manager.AnswerQuestion(context.Background(), 3, "next week")
	if err != nil {
		t.Fatalf("answer question: %v", err)
	}
	if userID != 7 {
		t.Fatalf("expected asking user 7, got %d", userID)
	}
}

func TestSeedIsIdempotentInserts(t *testing.T) {
	manager, mock := newMockManager(t)

	for range seedCategories {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO categories(idx, title)")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	for range seedProducts {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products(idx, title, body, image, price, tag)")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := manager.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
