package handlers

import (
	"context"
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"xui-vpn-shop/internal/commands"
	"xui-vpn-shop/internal/models"
	"xui-vpn-shop/internal/permissions"
)

const customerHelp = "Hi! I manage VPN keys.\n" +
	"Commands:\n" +
	"/add_key login - Create a new VPN key (after payment)\n" +
	"/renew - Renew the subscription\n" +
	"/add_traffic - Buy extra traffic (limited plans only)\n" +
	"/get_id - Show your Telegram ID\n" +
	"/support - Contact support\n" +
	"/my_stats - Show subscription statistics"

// CustomerHandler handles shop customers
type CustomerHandler struct {
	BaseHandler
	commandHandlers  map[string]commandFunc
	callbackHandlers map[string]commandFunc
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(deps Dependencies) *CustomerHandler {
	handler := &CustomerHandler{
		BaseHandler: NewBaseHandler(deps),
	}

	handler.initializeCommands()
	return handler
}

// CanHandle checks if the handler can handle the given access type
func (h *CustomerHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.Customer
}

// Handle handles a message from Telegram
func (h *CustomerHandler) Handle(ctx context.Context, c telebot.Context) error {
	return h.dispatch(ctx, c, h.commandHandlers, h.callbackHandlers, h.handleLogin, h.handleStart)
}

// initializeCommands initializes the command handlers
func (h *CustomerHandler) initializeCommands() {
	h.commandHandlers = h.commonCommands()
	h.commandHandlers[commands.AddKey] = h.handleAddKey

	h.callbackHandlers = h.commonCallbacks()
}

func (h *CustomerHandler) handleLogin(ctx context.Context, c telebot.Context, state models.ConversationState, login string) error {
	return h.handleLoginInput(ctx, c, state, login, h.handleAddKey)
}

// handleStart handles the /start command
func (h *CustomerHandler) handleStart(c telebot.Context) error {
	h.stateService.ClearState(c.Sender().ID)
	return h.sendTextMessage(c, customerHelp, nil)
}

// handleAddKey remembers the wanted login and offers the plans. One chat account owns one key.
func (h *CustomerHandler) handleAddKey(ctx context.Context, c telebot.Context, args []string) error {
	userID := c.Sender().ID

	if existing, ok := h.storage.EmailFor(userID); ok {
		h.stateService.ClearState(userID)
		return h.sendTextMessage(c, fmt.Sprintf("⛔ You already have an active key: %s\n"+
			"One account can only have one key.", existing), nil)
	}

	login, ok, err := h.readLogin(c, args, models.AwaitingKeyLogin, "Enter a login for the new key, for example: user123")
	if !ok {
		return err
	}

	if err := h.storage.SetPreferredLogin(userID, login); err != nil {
		h.logger.Errorf("Failed to save preferred login of %d: %v", userID, err)
	}

	return h.sendTextMessage(c, fmt.Sprintf("Choose a plan for %s:", login), tariffKeyboard(commands.UserPlan, login))
}
