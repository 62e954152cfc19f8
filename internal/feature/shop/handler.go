// Package shop implements the customer-facing storefront flows: catalog
// browsing, cart management, checkout, order history, and questions.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_storefront_bot/internal/domain"
	"tg_storefront_bot/internal/logging"
	"tg_storefront_bot/internal/session"
)

// Callback data prefixes used by the inline keyboards.
const (
	cbCategory   = "cat:"
	cbProduct    = "prod:"
	cbCartAdd    = "cart:add:"
	cbCartDec    = "cart:dec:"
	cbCartDel    = "cart:del:"
	cbCartClear  = "cart:clear"
	cbCheckout   = "checkout"
	cbConfirm    = "order:confirm"
	cbAbort      = "order:abort"
	fieldAddress = "address"
)

// Sender is the slice of the Telegram client the shop needs.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) error
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) error
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) error
}

// Store is the slice of the storefront repositories the shop needs.
type Store interface {
	Categories(ctx context.Context) ([]domain.Category, error)
	ProductsByCategory(ctx context.Context, categoryID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)
	CartItems(ctx context.Context, userID int64) ([]domain.CartItem, error)
	AddToCart(ctx context.Context, userID int64, productID string) error
	DecrementCartItem(ctx context.Context, userID int64, productID string) error
	RemoveFromCart(ctx context.Context, userID int64, productID string) error
	ClearCart(ctx context.Context, userID int64) error
	CreateOrder(ctx context.Context, userID int64, address string, items []domain.CartItem) (int64, error)
	OrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	AddQuestion(ctx context.Context, userID int64, text string) (int64, error)
}

// Handler serves customer commands, callbacks, and checkout flow text.
type Handler struct {
	sender   Sender
	store    Store
	sessions session.Store
	logger   *logrus.Entry
}

// NewHandler constructs the storefront handler.
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

// HandleCommand serves one customer command. It reports whether the command
// was recognized.
func (h *Handler) HandleCommand(ctx context.Context, msg *models.Message, cmd, args string) bool {
	if msg == nil || msg.From == nil {
		return false
	}

	switch cmd {
	case "start":
		h.sendMenu(ctx, msg.Chat.ID, "Welcome to the shop! Browse the catalog and order right here in the chat.")
	case "menu", "help":
		h.sendMenu(ctx, msg.Chat.ID, "What would you like to do?")
	case "catalog":
		h.sendCatalog(ctx, msg.Chat.ID)
	case "cart":
		h.sendCart(ctx, msg.Chat.ID, msg.From.ID)
	case "orders":
		h.sendOrders(ctx, msg.Chat.ID, msg.From.ID)
	case "ask":
		h.handleAsk(ctx, msg, args)
	case "cancel":
		h.clearSession(ctx, msg.From.ID)
		h.reply(ctx, msg.Chat.ID, "Okay, cancelled.", nil)
	default:
		return false
	}

	return true
}

// HandleText consumes plain text while the user is inside the checkout flow.
// It reports whether the text was part of a flow.
func (h *Handler) HandleText(ctx context.Context, msg *models.Message) bool {
	if msg == nil || msg.From == nil {
		return false
	}

	state, ok, err := h.sessions.Get(ctx, msg.From.ID)
	if err != nil {
		h.logError("session_get", msg.From.ID, err)
		return false
	}
	if !ok || state.Step != session.StepAwaitingAddress {
		return false
	}

	address := strings.TrimSpace(msg.Text)
	if address == "" {
		h.reply(ctx, msg.Chat.ID, "Please send a delivery address as plain text.", nil)
		return true
	}

	next := session.State{Step: session.StepConfirmingOrder}.WithField(fieldAddress, address)
	if err := h.sessions.Set(ctx, msg.From.ID, next); err != nil {
		h.logError("session_set", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, "Something went wrong, please try again.", nil)
		return true
	}

	items, err := h.store.CartItems(ctx, msg.From.ID)
	if err != nil {
		h.logError("cart_items", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, "Something went wrong, please try again.", nil)
		return true
	}

	var sb strings.Builder
	sb.WriteString("Please confirm your order:\n\n")
	writeCartLines(&sb, items)
	sb.WriteString("\nDeliver to: ")
	sb.WriteString(address)

	h.reply(ctx, msg.Chat.ID, sb.String(), inlineKeyboard([][]models.InlineKeyboardButton{
		{
			{Text: "Confirm", CallbackData: cbConfirm},
			{Text: "Cancel", CallbackData: cbAbort},
		},
	}))

	return true
}

// HandleCallback serves one inline-button press.
func (h *Handler) HandleCallback(ctx context.Context, cb *models.CallbackQuery) bool {
	if cb == nil {
		return false
	}

	chatID := callbackChatID(cb)
	userID := cb.From.ID
	data := cb.Data

	handled := true
	switch {
	case strings.HasPrefix(data, cbCategory):
		h.sendProducts(ctx, chatID, strings.TrimPrefix(data, cbCategory))
	case strings.HasPrefix(data, cbCartAdd):
		h.addToCart(ctx, chatID, userID, strings.TrimPrefix(data, cbCartAdd))
	case strings.HasPrefix(data, cbCartDec):
		h.mutateCart(ctx, chatID, userID, strings.TrimPrefix(data, cbCartDec), h.store.DecrementCartItem)
	case strings.HasPrefix(data, cbCartDel):
		h.mutateCart(ctx, chatID, userID, strings.TrimPrefix(data, cbCartDel), h.store.RemoveFromCart)
	case strings.HasPrefix(data, cbProduct):
		h.sendProduct(ctx, chatID, strings.TrimPrefix(data, cbProduct))
	case data == cbCartClear:
		if err := h.store.ClearCart(ctx, userID); err != nil {
			h.logError("cart_clear", userID, err)
		}
		h.sendCart(ctx, chatID, userID)
	case data == cbCheckout:
		h.startCheckout(ctx, chatID, userID)
	case data == cbConfirm:
		h.confirmOrder(ctx, chatID, userID)
	case data == cbAbort:
		h.clearSession(ctx, userID)
		h.reply(ctx, chatID, "Checkout cancelled. Your cart is untouched.", nil)
	default:
		handled = false
	}

	if handled {
		h.ack(ctx, cb.ID)
	}

	return handled
}

func (h *Handler) sendMenu(ctx context.Context, chatID int64, text string) {
	h.reply(ctx, chatID, text+"\n\n"+
		"/catalog - browse products\n"+
		"/cart - view your cart\n"+
		"/orders - your order history\n"+
		"/ask <question> - ask the shop a question", nil)
}

func (h *Handler) sendCatalog(ctx context.Context, chatID int64) {
	categories, err := h.store.Categories(ctx)
	if err != nil {
		h.logError("categories", chatID, err)
		h.reply(ctx, chatID, "The catalog is unavailable right now, please try again later.", nil)
		return
	}
	if len(categories) == 0 {
		h.reply(ctx, chatID, "The catalog is empty right now. Check back soon!", nil)
		return
	}

	var rows [][]models.InlineKeyboardButton
	for _, c := range categories {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: c.Title, CallbackData: cbCategory + c.ID},
		})
	}

	h.reply(ctx, chatID, "Pick a category:", inlineKeyboard(rows))
}

func (h *Handler) sendProducts(ctx context.Context, chatID int64, categoryID string) {
	products, err := h.store.ProductsByCategory(ctx, categoryID)
	if err != nil {
		h.logError("products_by_category", chatID, err)
		h.reply(ctx, chatID, "The catalog is unavailable right now, please try again later.", nil)
		return
	}
	if len(products) == 0 {
		h.reply(ctx, chatID, "Nothing in this category yet.", nil)
		return
	}

	var rows [][]models.InlineKeyboardButton
	for _, p := range products {
		label := fmt.Sprintf("%s (%s)", p.Title, domain.PriceLabel(p.PriceCents))
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: label, CallbackData: cbProduct + p.ID},
		})
	}

	h.reply(ctx, chatID, "Pick a product:", inlineKeyboard(rows))
}

func (h *Handler) sendProduct(ctx context.Context, chatID int64, productID string) {
	product, ok, err := h.store.GetProduct(ctx, productID)
	if err != nil {
		h.logError("get_product", chatID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}
	if !ok {
		h.reply(ctx, chatID, "That product is no longer available.", nil)
		return
	}

	text := fmt.Sprintf("%s\n%s\n\nPrice: %s", product.Title, product.Body, domain.PriceLabel(product.PriceCents))
	markup := inlineKeyboard([][]models.InlineKeyboardButton{
		{{Text: "Add to cart", CallbackData: cbCartAdd + product.ID}},
	})

	if product.Image != "" {
		err = h.sender.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:      chatID,
			Photo:       &models.InputFileString{Data: product.Image},
			Caption:     text,
			ReplyMarkup: markup,
		})
		if err != nil {
			h.logError("send_photo", chatID, err)
		}
		return
	}

	h.reply(ctx, chatID, text, markup)
}

func (h *Handler) addToCart(ctx context.Context, chatID, userID int64, productID string) {
	if _, ok, err := h.store.GetProduct(ctx, productID); err != nil || !ok {
		if err != nil {
			h.logError("get_product", userID, err)
		}
		h.reply(ctx, chatID, "That product is no longer available.", nil)
		return
	}

	if err := h.store.AddToCart(ctx, userID, productID); err != nil {
		h.logError("cart_add", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}

	h.reply(ctx, chatID, "Added to your cart. /cart to review or /catalog to keep browsing.", nil)
}

func (h *Handler) mutateCart(ctx context.Context, chatID, userID int64, productID string, op func(context.Context, int64, string) error) {
	if err := op(ctx, userID, productID); err != nil {
		h.logError("cart_update", userID, err)
	}
	h.sendCart(ctx, chatID, userID)
}

func (h *Handler) sendCart(ctx context.Context, chatID, userID int64) {
	items, err := h.store.CartItems(ctx, userID)
	if err != nil {
		h.logError("cart_items", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}
	if len(items) == 0 {
		h.reply(ctx, chatID, "Your cart is empty. /catalog to start shopping.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("Your cart:\n\n")
	writeCartLines(&sb, items)

	var rows [][]models.InlineKeyboardButton
	for _, item := range items {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "- " + item.Title, CallbackData: cbCartDec + item.ProductID},
			{Text: "Remove", CallbackData: cbCartDel + item.ProductID},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "Checkout", CallbackData: cbCheckout},
		{Text: "Clear cart", CallbackData: cbCartClear},
	})

	h.reply(ctx, chatID, sb.String(), inlineKeyboard(rows))
}

func (h *Handler) startCheckout(ctx context.Context, chatID, userID int64) {
	items, err := h.store.CartItems(ctx, userID)
	if err != nil {
		h.logError("cart_items", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}
	if len(items) == 0 {
		h.reply(ctx, chatID, "Your cart is empty. /catalog to start shopping.", nil)
		return
	}

	if err := h.sessions.Set(ctx, userID, session.State{Step: session.StepAwaitingAddress}); err != nil {
		h.logError("session_set", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}

	h.reply(ctx, chatID, "Where should we deliver? Send your address as a message. /cancel to abort.", nil)
}

func (h *Handler) confirmOrder(ctx context.Context, chatID, userID int64) {
	state, ok, err := h.sessions.Get(ctx, userID)
	if err != nil {
		h.logError("session_get", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}
	if !ok || state.Step != session.StepConfirmingOrder || state.Field(fieldAddress) == "" {
		h.reply(ctx, chatID, "There is no checkout in progress. /cart to start one.", nil)
		return
	}

	items, err := h.store.CartItems(ctx, userID)
	if err != nil {
		h.logError("cart_items", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}
	if len(items) == 0 {
		h.clearSession(ctx, userID)
		h.reply(ctx, chatID, "Your cart is empty. /catalog to start shopping.", nil)
		return
	}

	orderID, err := h.store.CreateOrder(ctx, userID, state.Field(fieldAddress), items)
	if err != nil {
		h.logError("create_order", userID, err)
		h.reply(ctx, chatID, "We could not place your order, please try again.", nil)
		return
	}

	h.clearSession(ctx, userID)
	h.logger.WithFields(logging.Fields{
		"event":    "order_placed",
		"user_id":  userID,
		"order_id": orderID,
		"total":    domain.CartTotal(items),
	}).Info("order placed")

	h.reply(ctx, chatID, fmt.Sprintf("Order #%d placed! Total %s. /orders to track it.",
		orderID, domain.PriceLabel(domain.CartTotal(items))), nil)
}

func (h *Handler) sendOrders(ctx context.Context, chatID, userID int64) {
	orders, err := h.store.OrdersByUser(ctx, userID)
	if err != nil {
		h.logError("orders_by_user", userID, err)
		h.reply(ctx, chatID, "Something went wrong, please try again.", nil)
		return
	}
	if len(orders) == 0 {
		h.reply(ctx, chatID, "You have no orders yet. /catalog to place the first one.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("Your orders:\n\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "#%d  %s  %s\n", o.ID, domain.PriceLabel(o.TotalCents), o.Status)
	}

	h.reply(ctx, chatID, sb.String(), nil)
}

func (h *Handler) handleAsk(ctx context.Context, msg *models.Message, args string) {
	question := strings.TrimSpace(args)
	if question == "" {
		h.reply(ctx, msg.Chat.ID, "Usage: /ask <your question>", nil)
		return
	}

	id, err := h.store.AddQuestion(ctx, msg.From.ID, question)
	if err != nil {
		h.logError("add_question", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, "We could not record your question, please try again.", nil)
		return
	}

	h.logger.WithFields(logging.Fields{
		"event":       "question_asked",
		"user_id":     msg.From.ID,
		"question_id": id,
	}).Info("customer question recorded")

	h.reply(ctx, msg.Chat.ID, "Thanks! The shop will reply here as soon as possible.", nil)
}

func (h *Handler) clearSession(ctx context.Context, userID int64) {
	if err := h.sessions.Clear(ctx, userID); err != nil {
		h.logError("session_clear", userID, err)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	err := h.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		h.logError("send_message", chatID, err)
	}
}

func (h *Handler) ack(ctx context.Context, callbackID string) {
	err := h.sender.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logError("answer_callback", 0, err)
	}
}

func (h *Handler) logError(event string, id int64, err error) {
	entry := h.logger.WithField("event", event)
	if id != 0 {
		entry = entry.WithField("id", id)
	}
	entry.WithError(err).Error("shop handler error")
}

func writeCartLines(sb *strings.Builder, items []domain.CartItem) {
	for _, item := range items {
		fmt.Fprintf(sb, "%s x%d  %s\n", item.Title, item.Quantity, domain.PriceLabel(item.Subtotal()))
	}
	fmt.Fprintf(sb, "\nTotal: %s", domain.PriceLabel(domain.CartTotal(items)))
	sb.WriteString("\n")
}

func inlineKeyboard(rows [][]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func callbackChatID(cb *models.CallbackQuery) int64 {
	msg := cb.Message
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message != nil {
			return msg.Message.Chat.ID
		}
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage != nil {
			return msg.InaccessibleMessage.Chat.ID
		}
	}
	return cb.From.ID
}
