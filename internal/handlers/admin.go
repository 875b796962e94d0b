package handlers

import (
	"context"
	"errors"
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"xui-vpn-shop/internal/commands"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/helpers"
	"xui-vpn-shop/internal/models"
	"xui-vpn-shop/internal/permissions"
)

const adminHelp = "Hi! I manage VPN keys.\n" +
	"Commands:\n" +
	"/add_key login - Create a new VPN key\n" +
	"/renew - Renew the subscription\n" +
	"/add_traffic - Buy extra traffic (limited plans only)\n" +
	"/get_id - Show your Telegram ID\n" +
	"/support - Contact support\n" +
	"/my_stats - Show subscription statistics\n" +
	"/del_key login - Unbind a login (admin)"

// AdminHandler handles admin commands
type AdminHandler struct {
	BaseHandler
	commandHandlers  map[string]commandFunc
	callbackHandlers map[string]commandFunc
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deps Dependencies) *AdminHandler {
	handler := &AdminHandler{
		BaseHandler: NewBaseHandler(deps),
	}

	handler.initializeCommands()
	return handler
}

// CanHandle checks if the handler can handle the given access type
func (h *AdminHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.Admin
}

// Handle handles a message from Telegram
func (h *AdminHandler) Handle(ctx context.Context, c telebot.Context) error {
	return h.dispatch(ctx, c, h.commandHandlers, h.callbackHandlers, h.handleLogin, h.handleStart)
}

// initializeCommands initializes the command handlers
func (h *AdminHandler) initializeCommands() {
	h.commandHandlers = h.commonCommands()
	h.commandHandlers[commands.AddKey] = h.handleAddKey
	h.commandHandlers[commands.DelKey] = h.handleDelKey

	h.callbackHandlers = h.commonCallbacks()
	h.callbackHandlers[commands.AdminPlan] = h.handleAdminPlan
	h.callbackHandlers[commands.Approve] = h.handleApprove
	h.callbackHandlers[commands.Reject] = h.handleReject
	h.callbackHandlers[commands.ApproveTopUp] = h.handleApproveTopUp
	h.callbackHandlers[commands.RejectTopUp] = h.handleRejectTopUp
}

func (h *AdminHandler) handleLogin(ctx context.Context, c telebot.Context, state models.ConversationState, login string) error {
	return h.handleLoginInput(ctx, c, state, login, h.handleAddKey)
}

// handleStart handles the /start command
func (h *AdminHandler) handleStart(c telebot.Context) error {
	h.stateService.ClearState(c.Sender().ID)
	return h.sendTextMessage(c, adminHelp, nil)
}

// handleAddKey shows the plans for a login, or its link when the panel already has it
func (h *AdminHandler) handleAddKey(ctx context.Context, c telebot.Context, args []string) error {
	login, ok, err := h.readLogin(c, args, models.AwaitingKeyLogin, "Enter the login for the new key, for example: user123")
	if !ok {
		return err
	}

	exists, err := h.subscriptions.Exists(ctx, login)
	if err != nil {
		h.logger.Warnf("Failed to check whether %s exists: %v", login, err)
	}
	if exists {
		link, err := h.xrayService.ClientLink(ctx, login)
		if err != nil {
			return h.sendTextMessage(c, fmt.Sprintf("Client %s already exists in the panel.", login), nil)
		}
		return h.sendTextMessage(c, fmt.Sprintf("Client %s already exists, here is its link:\n%s", login, link), nil)
	}

	return h.sendTextMessage(c, fmt.Sprintf("Choose a plan for %s:", login), tariffKeyboard(commands.AdminPlan, login))
}

// handleDelKey drops the local binding of a login. The panel client is kept.
func (h *AdminHandler) handleDelKey(ctx context.Context, c telebot.Context, args []string) error {
	if len(args) == 0 {
		return h.sendTextMessage(c, "Usage: /del_key <login>", nil)
	}

	login := args[0]
	removed, err := h.subscriptions.Unbind(login)
	if err != nil {
		h.logger.Errorf("Failed to unbind %s: %v", login, err)
		return h.sendTextMessage(c, fmt.Sprintf("Failed to unbind %s: %v", login, err), nil)
	}
	if len(removed) == 0 {
		return h.sendTextMessage(c, fmt.Sprintf("No local binding for %s.", login), nil)
	}

	h.logger.Infof("Admin %d unbound %s from %v", c.Sender().ID, login, removed)
	return h.sendTextMessage(c, fmt.Sprintf("Local binding for %s removed. The panel client is kept.", login), nil)
}

// handleAdminPlan handles admin_plan|<tariff>|<login>
func (h *AdminHandler) handleAdminPlan(ctx context.Context, c telebot.Context, args []string) error {
	if len(args) < 2 {
		return c.Send("Invalid request.")
	}
	tariff, ok := models.FindTariff(args[0])
	if !ok {
		return c.Send("Unknown plan.")
	}
	login := args[1]

	result, err := h.subscriptions.AdminCreate(ctx, login, tariff)
	if err != nil {
		h.logger.Errorf("Admin %d failed to create %s: %v", c.Sender().ID, login, err)
		return h.sendTextMessage(c, fmt.Sprintf("❌ Failed to create client: %v", err), nil)
	}

	if !result.Created {
		return h.sendTextMessage(c, fmt.Sprintf("Client %s already exists, here is its link:\n%s", login, result.Link), nil)
	}

	summary := fmt.Sprintf("Valid: %s\nTraffic limit: %s", helpers.FormatExpiry(result.ExpiryMs), helpers.FormatLimitGB(result.LimitGB))
	if result.Link == "" {
		h.links.Deliver(ctx, c.Sender().ID, login)
		return h.sendTextMessage(c, fmt.Sprintf("Key %s created, the link will follow.\n%s", login, summary), nil)
	}

	if err := h.sendTextMessage(c, fmt.Sprintf("Key created:\n%s\n%s", result.Link, summary), nil); err != nil {
		return err
	}
	return h.sendQRCode(c, result.Link)
}

// handleApprove handles approve|<request id>
func (h *AdminHandler) handleApprove(ctx context.Context, c telebot.Context, args []string) error {
	request, ok := h.takeRequest(c, args, models.RequestPurchase)
	if !ok {
		return nil
	}

	tariff, ok := models.FindTariff(request.Code)
	if !ok {
		return h.sendTextMessage(c, fmt.Sprintf("Unknown plan code: %s", request.Code), nil)
	}

	result, err := h.subscriptions.Purchase(ctx, request.UserID, request.Email, tariff)
	if err != nil {
		h.payments.Restore(request)
		h.logger.Errorf("Failed to apply request %s: %v", request.ID, err)
		return h.sendTextMessage(c, fmt.Sprintf("❌ Failed to apply the payment: %v\nThe request is kept, you can retry.", err), nil)
	}

	if result.Created {
		if result.Link != "" {
			h.notifyUser(request.UserID, "✅ Payment confirmed.")
			if err := h.messenger.SendLink(request.UserID, result.Email, result.Link); err != nil {
				h.logger.Errorf("Failed to send link to %d: %v", request.UserID, err)
			}
			return h.sendTextMessage(c, "Client created, the key was sent to the user.", nil)
		}

		if err := h.sendTo(c, request.UserID, "✅ Payment confirmed. Press the button below to activate your key.", activateKeyboard(result.Email)); err != nil {
			h.logger.Errorf("Failed to notify user %d: %v", request.UserID, err)
		}
		return h.sendTextMessage(c, "Client created. The user got a button to activate the key.", nil)
	}

	link := result.Link
	if link == "" {
		link = "❌ Could not get the link after renewal."
	}
	h.notifyUser(request.UserID, fmt.Sprintf("✅ Subscription renewed for %d months.\nNew limit: %s\nNew expiry: %s\n\nYour key:\n%s",
		result.Months, helpers.FormatLimitGB(result.LimitGB), helpers.FormatExpiry(result.ExpiryMs), link))
	return h.sendTextMessage(c, "Renewal done.", nil)
}

// handleReject handles reject|<request id>
func (h *AdminHandler) handleReject(ctx context.Context, c telebot.Context, args []string) error {
	request, ok := h.takeRequest(c, args, models.RequestPurchase)
	if !ok {
		return nil
	}

	h.notifyUser(request.UserID, "❌ Payment was not confirmed. Check the transfer or contact support.")
	return h.sendTextMessage(c, "Rejection sent to the user.", nil)
}

// handleApproveTopUp handles approve_topup|<request id>
func (h *AdminHandler) handleApproveTopUp(ctx context.Context, c telebot.Context, args []string) error {
	request, ok := h.takeRequest(c, args, models.RequestTopUp)
	if !ok {
		return nil
	}

	addon, ok := models.FindAddon(request.Code)
	if !ok {
		return h.sendTextMessage(c, "Unknown top-up package.", nil)
	}

	if err := h.subscriptions.TopUp(ctx, request.Email, addon); err != nil {
		var unlimited *apperrors.UnlimitedPlanError
		if errors.As(err, &unlimited) {
			h.notifyUser(request.UserID, "You are on an unlimited plan, no top-up is needed. Contact support for a refund.")
			return h.sendTextMessage(c, fmt.Sprintf("%s is unlimited, nothing was added.", request.Email), nil)
		}

		h.payments.Restore(request)
		h.logger.Errorf("Failed to apply top-up %s: %v", request.ID, err)
		return h.sendTextMessage(c, fmt.Sprintf("❌ Top-up failed: %v\nThe request is kept, you can retry.", err), nil)
	}

	h.notifyUser(request.UserID, fmt.Sprintf("✅ Top-up credited: +%d GB.", addon.GB))
	return h.sendTextMessage(c, "Top-up done.", nil)
}

// handleRejectTopUp handles reject_topup|<request id>
func (h *AdminHandler) handleRejectTopUp(ctx context.Context, c telebot.Context, args []string) error {
	request, ok := h.takeRequest(c, args, models.RequestTopUp)
	if !ok {
		return nil
	}

	h.notifyUser(request.UserID, "❌ Top-up was not confirmed. If you paid, contact support: /support.")
	return h.sendTextMessage(c, "Top-up rejection sent to the user.", nil)
}

// takeRequest consumes the request named in the callback, replying when it is gone
func (h *AdminHandler) takeRequest(c telebot.Context, args []string, kind models.RequestKind) (*models.PaymentRequest, bool) {
	if len(args) < 1 {
		_ = c.Send("Invalid request.")
		return nil, false
	}

	request, ok := h.payments.Take(args[0])
	if !ok {
		_ = h.sendTextMessage(c, "Request not found or already processed.", nil)
		return nil, false
	}
	if request.Kind != kind {
		h.payments.Restore(request)
		_ = h.sendTextMessage(c, "Request type mismatch.", nil)
		return nil, false
	}

	h.logger.Infof("Admin %d decided %s request %s of user %d", c.Sender().ID, request.Kind, request.ID, request.UserID)
	return request, true
}

func (h *AdminHandler) notifyUser(userID int64, text string) {
	if err := h.messenger.SendText(userID, text); err != nil {
		h.logger.Errorf("Failed to notify user %d: %v", userID, err)
	}
}
