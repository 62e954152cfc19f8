// Package admin implements the management commands: catalog upkeep, open
// order processing, and answering customer questions.
package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/domain"
	"tg_storefront_bot/internal/logging"
	"tg_storefront_bot/internal/session"
)

// Product draft fields collected by the /addproduct flow.
const (
	fieldStage    = "stage"
	fieldID       = "id"
	fieldTitle    = "title"
	fieldBody     = "body"
	fieldPrice    = "price"
	fieldCategory = "category"

	stageID       = "id"
	stageTitle    = "title"
	stageBody     = "body"
	stagePrice    = "price"
	stageCategory = "category"
	stageImage    = "image"
)

// Sender is the slice of the Telegram client the admin features need.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) error
}

// Store is the slice of the storefront repositories the admin features need.
type Store interface {
	Categories(ctx context.Context) ([]domain.Category, error)
	AddCategory(ctx context.Context, id, title string) error
	Products(ctx context.Context) ([]domain.Product, error)
	AddProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	OpenOrders(ctx context.Context) ([]domain.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error)
	AdvanceOrder(ctx context.Context, orderID int64) (string, error)
	CancelOrder(ctx context.Context, orderID int64) error
	UnansweredQuestions(ctx context.Context) ([]domain.Question, error)
	AnswerQuestion(ctx context.Context, questionID int64, answer string) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
}

// Handler serves admin commands and the product-entry flow.
type Handler struct {
	sender   Sender
	store    Store
	sessions session.Store
	logger   *logrus.Entry
}

// NewHandler constructs the admin handler.
func NewHandler(sender Sender, store Store, sessions session.Store, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		sender:   sender,
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleCommand serves one admin command. It reports whether the command was
// recognized.
func (h *Handler) HandleCommand(ctx context.Context, msg *models.Message, cmd, args string) bool {
	if msg == nil || msg.From == nil {
		return false
	}

	switch cmd {
	case "admin":
		h.reply(ctx, msg.Chat.ID, "Admin commands:\n"+
			"/products - list catalog\n"+
			"/addproduct - add a product\n"+
			"/delproduct <id> - remove a product\n"+
			"/addcategory <id> <title> - add a category\n"+
			"/open - open orders\n"+
			"/advance <order id> - move an order forward\n"+
			"/cancelorder <order id> - cancel an order\n"+
			"/questions - unanswered questions\n"+
			"/answer <question id> <text> - reply to a question\n"+
			"/stats - shop statistics")
	case "products":
		h.sendProducts(ctx, msg.Chat.ID)
	case "addproduct":
		h.startProductFlow(ctx, msg)
	case "delproduct":
		h.deleteProduct(ctx, msg, args)
	case "addcategory":
		h.addCategory(ctx, msg, args)
	case "open":
		h.sendOpenOrders(ctx, msg.Chat.ID)
	case "advance":
		h.advanceOrder(ctx, msg, args)
	case "cancelorder":
		h.cancelOrder(ctx, msg, args)
	case "questions":
		h.sendQuestions(ctx, msg.Chat.ID)
	case "answer":
		h.answerQuestion(ctx, msg, args)
	case "stats":
		h.sendStats(ctx, msg.Chat.ID)
	default:
		return false
	}

	return true
}

// HandleText consumes plain text while the admin is inside the product-entry
// flow. It reports whether the text was part of a flow.
func (h *Handler) HandleText(ctx context.Context, msg *models.Message) bool {
	if msg == nil || msg.From == nil {
		return false
	}

	state, ok, err := h.sessions.Get(ctx, msg.From.ID)
	if err != nil {
		h.logError("session_get", err)
		return false
	}
	if !ok || state.Step != session.StepProductDraft {
		return false
	}

	h.continueProductFlow(ctx, msg, state)
	return true
}

func (h *Handler) startProductFlow(ctx context.Context, msg *models.Message) {
	state := session.State{Step: session.StepProductDraft}.WithField(fieldStage, stageID)
	if err := h.sessions.Set(ctx, msg.From.ID, state); err != nil {
		h.logError("session_set", err)
		h.reply(ctx, msg.Chat.ID, "Something went wrong, please try again.")
		return
	}

	h.reply(ctx, msg.Chat.ID, "New product. Send a short id (e.g. flower-og). /cancel to abort.")
}

func (h *Handler) continueProductFlow(ctx context.Context, msg *models.Message, state session.State) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		h.reply(ctx, msg.Chat.ID, "Please send plain text.")
		return
	}

	switch state.Field(fieldStage) {
	case stageID:
		h.advanceFlow(ctx, msg, state.WithField(fieldID, text).WithField(fieldStage, stageTitle),
			"Now send the product title.")
	case stageTitle:
		h.advanceFlow(ctx, msg, state.WithField(fieldTitle, text).WithField(fieldStage, stageBody),
			"Now send the description.")
	case stageBody:
		h.advanceFlow(ctx, msg, state.WithField(fieldBody, text).WithField(fieldStage, stagePrice),
			"Now send the price in cents (e.g. 3500 for $35.00).")
	case stagePrice:
		cents, err := strconv.ParseInt(text, 10, 64)
		if err != nil || cents <= 0 {
			h.reply(ctx, msg.Chat.ID, "Price must be a positive whole number of cents.")
			return
		}
		h.advanceFlow(ctx, msg, state.WithField(fieldPrice, text).WithField(fieldStage, stageCategory),
			"Now send the category id.")
	case stageCategory:
		h.advanceFlow(ctx, msg, state.WithField(fieldCategory, text).WithField(fieldStage, stageImage),
			"Finally, send an image URL, or \"skip\".")
	case stageImage:
		h.finishProductFlow(ctx, msg, state, text)
	default:
		h.clearSession(ctx, msg.From.ID)
		h.reply(ctx, msg.Chat.ID, "Product entry aborted, unknown step.")
	}
}

func (h *Handler) advanceFlow(ctx context.Context, msg *models.Message, next session.State, prompt string) {
	if err := h.sessions.Set(ctx, msg.From.ID, next); err != nil {
		h.logError("session_set", err)
		h.reply(ctx, msg.Chat.ID, "Something went wrong, please try again.")
		return
	}
	h.reply(ctx, msg.Chat.ID, prompt)
}

func (h *Handler) finishProductFlow(ctx context.Context, msg *models.Message, state session.State, image string) {
	if strings.EqualFold(image, "skip") {
		image = ""
	}

	cents, err := strconv.ParseInt(state.Field(fieldPrice), 10, 64)
	if err != nil {
		h.clearSession(ctx, msg.From.ID)
		h.reply(ctx, msg.Chat.ID, "Product entry aborted, invalid price.")
		return
	}

	product := domain.Product{
		ID:         state.Field(fieldID),
		Title:      state.Field(fieldTitle),
		Body:       state.Field(fieldBody),
		Image:      image,
		PriceCents: cents,
		CategoryID: state.Field(fieldCategory),
	}

	if err := h.store.AddProduct(ctx, product); err != nil {
		h.logError("add_product", err)
		h.reply(ctx, msg.Chat.ID, "Could not save the product: "+err.Error())
		return
	}

	h.clearSession(ctx, msg.From.ID)
	h.logger.WithFields(logging.Fields{
		"event":      "product_added",
		"product_id": product.ID,
		"admin_id":   msg.From.ID,
	}).Info("product added")

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Saved %s (%s).", product.Title, domain.PriceLabel(product.PriceCents)))
}

func (h *Handler) sendProducts(ctx context.Context, chatID int64) {
	products, err := h.store.Products(ctx)
	if err != nil {
		h.logError("products", err)
		h.reply(ctx, chatID, "Could not list products.")
		return
	}
	if len(products) == 0 {
		h.reply(ctx, chatID, "The catalog is empty. /addproduct to add one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Catalog:\n\n")
	for _, p := range products {
		fmt.Fprintf(&sb, "%s  %s  %s  [%s]\n", p.ID, p.Title, domain.PriceLabel(p.PriceCents), p.CategoryID)
	}

	h.reply(ctx, chatID, sb.String())
}

func (h *Handler) deleteProduct(ctx context.Context, msg *models.Message, args string) {
	id := strings.TrimSpace(args)
	if id == "" {
		h.reply(ctx, msg.Chat.ID, "Usage: /delproduct <id>")
		return
	}

	if err := h.store.DeleteProduct(ctx, id); err != nil {
		h.logError("delete_product", err)
		h.reply(ctx, msg.Chat.ID, "Could not delete the product: "+err.Error())
		return
	}

	h.reply(ctx, msg.Chat.ID, "Deleted "+id+".")
}

func (h *Handler) addCategory(ctx context.Context, msg *models.Message, args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		h.reply(ctx, msg.Chat.ID, "Usage: /addcategory <id> <title>")
		return
	}

	id := parts[0]
	title := strings.Join(parts[1:], " ")
	if err := h.store.AddCategory(ctx, id, title); err != nil {
		h.logError("add_category", err)
		h.reply(ctx, msg.Chat.ID, "Could not add the category: "+err.Error())
		return
	}

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Category %s (%s) added.", id, title))
}

func (h *Handler) sendOpenOrders(ctx context.Context, chatID int64) {
	orders, err := h.store.OpenOrders(ctx)
	if err != nil {
		h.logError("open_orders", err)
		h.reply(ctx, chatID, "Could not list open orders.")
		return
	}
	if len(orders) == 0 {
		h.reply(ctx, chatID, "No open orders.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Open orders:\n\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "#%d  user %d  %s  %s\n  deliver to: %s\n",
			o.ID, o.UserID, domain.PriceLabel(o.TotalCents), o.Status, o.ShippingAddress)

		items, err := h.store.OrderItems(ctx, o.ID)
		if err != nil {
			h.logError("order_items", err)
			continue
		}
		for _, item := range items {
			fmt.Fprintf(&sb, "    %s x%d  %s\n", item.Title, item.Quantity, domain.PriceLabel(item.PriceCents))
		}
	}

	h.reply(ctx, chatID, sb.String())
}

func (h *Handler) advanceOrder(ctx context.Context, msg *models.Message, args string) {
	orderID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, "Usage: /advance <order id>")
		return
	}

	status, err := h.store.AdvanceOrder(ctx, orderID)
	if err != nil {
		h.logError("advance_order", err)
		h.reply(ctx, msg.Chat.ID, "Could not advance the order: "+err.Error())
		return
	}

	h.logger.WithFields(logging.Fields{
		"event":    "order_advanced",
		"order_id": orderID,
		"status":   status,
		"admin_id": msg.From.ID,
	}).Info("order advanced")

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Order #%d is now %s.", orderID, status))
}

func (h *Handler) cancelOrder(ctx context.Context, msg *models.Message, args string) {
	orderID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, "Usage: /cancelorder <order id>")
		return
	}

	if err := h.store.CancelOrder(ctx, orderID); err != nil {
		h.logError("cancel_order", err)
		h.reply(ctx, msg.Chat.ID, "Could not cancel the order: "+err.Error())
		return
	}

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Order #%d cancelled.", orderID))
}

func (h *Handler) sendQuestions(ctx context.Context, chatID int64) {
	questions, err := h.store.UnansweredQuestions(ctx)
	if err != nil {
		h.logError("questions", err)
		h.reply(ctx, chatID, "Could not list questions.")
		return
	}
	if len(questions) == 0 {
		h.reply(ctx, chatID, "No unanswered questions.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Unanswered questions:\n\n")
	for _, q := range questions {
		fmt.Fprintf(&sb, "#%d from user %d:\n  %s\n", q.ID, q.UserID, q.Text)
	}

	h.reply(ctx, chatID, sb.String())
}

// answerQuestion stores the reply and relays it to the asking user.
func (h *Handler) answerQuestion(ctx context.Context, msg *models.Message, args string) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		h.reply(ctx, msg.Chat.ID, "Usage: /answer <question id> <text>")
		return
	}

	questionID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, "Usage: /answer <question id> <text>")
		return
	}

	userID, err := h.store.AnswerQuestion(ctx, questionID, parts[1])
	if err != nil {
		h.logError("answer_question", err)
		h.reply(ctx, msg.Chat.ID, "Could not answer the question: "+err.Error())
		return
	}

	h.reply(ctx, userID, "The shop replied to your question:\n\n"+parts[1])
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("Answer sent to user %d.", userID))
}

func (h *Handler) sendStats(ctx context.Context, chatID int64) {
	users, err := h.store.CountUsers(ctx)
	if err != nil {
		h.logError("count_users", err)
		h.reply(ctx, chatID, "Could not load statistics.")
		return
	}

	open, err := h.store.OpenOrders(ctx)
	if err != nil {
		h.logError("open_orders", err)
		h.reply(ctx, chatID, "Could not load statistics.")
		return
	}

	h.reply(ctx, chatID, fmt.Sprintf("Known users: %d\nOpen orders: %d", users, len(open)))
}

func (h *Handler) clearSession(ctx context.Context, userID int64) {
	if err := h.sessions.Clear(ctx, userID); err != nil {
		h.logError("session_clear", err)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	err := h.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logError("send_message", err)
	}
}

func (h *Handler) logError(event string, err error) {
	h.logger.WithField("event", event).WithError(err).Error("admin handler error")
}
