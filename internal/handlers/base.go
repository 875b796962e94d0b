package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"xui-vpn-shop/internal/commands"
	"xui-vpn-shop/internal/config"
	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
	"xui-vpn-shop/internal/permissions"
	"xui-vpn-shop/internal/services"
	"xui-vpn-shop/internal/validation"
)

type commandFunc func(ctx context.Context, c telebot.Context, args []string) error

// Dependencies holds the services every handler works with
type Dependencies struct {
	Xray          *services.XrayService
	Subscriptions *services.SubscriptionService
	Storage       *services.StorageService
	Payments      *services.PaymentService
	States        *services.UserStateService
	QR            *services.QRService
	Links         *services.LinkNotifier
	Messenger     services.Messenger
	Permissions   *permissions.PermissionController
	Config        *config.Config
	Logger        *logrus.Logger
}

// BaseHandler provides the commands and callbacks every user has
type BaseHandler struct {
	xrayService   *services.XrayService
	subscriptions *services.SubscriptionService
	storage       *services.StorageService
	payments      *services.PaymentService
	stateService  *services.UserStateService
	qrService     *services.QRService
	links         *services.LinkNotifier
	messenger     services.Messenger
	permCtrl      *permissions.PermissionController
	config        *config.Config
	logger        *logrus.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(deps Dependencies) BaseHandler {
	return BaseHandler{
		xrayService:   deps.Xray,
		subscriptions: deps.Subscriptions,
		storage:       deps.Storage,
		payments:      deps.Payments,
		stateService:  deps.States,
		qrService:     deps.QR,
		links:         deps.Links,
		messenger:     deps.Messenger,
		permCtrl:      deps.Permissions,
		config:        deps.Config,
		logger:        deps.Logger,
	}
}

// CanHandle checks if the handler can handle the given access type
func (h *BaseHandler) CanHandle(accessType permissions.AccessType) bool {
	// Base handler can't handle any access type directly
	return false
}

// commonCommands returns the commands available to everyone
func (h *BaseHandler) commonCommands() map[string]commandFunc {
	return map[string]commandFunc{
		commands.GetID:   h.handleGetID,
		commands.Support: h.handleSupport,
		commands.Renew:   h.handleRenew,
		commands.Traffic: h.handleAddTraffic,
		commands.MyStats: h.handleMyStats,
	}
}

// commonCallbacks returns the callbacks available to everyone
func (h *BaseHandler) commonCallbacks() map[string]commandFunc {
	return map[string]commandFunc{
		commands.UserPlan:    h.handleUserPlan,
		commands.TopUpPick:   h.handleTopUpPick,
		commands.ActivateKey: h.handleActivateKey,
	}
}

// dispatch routes an update: callbacks by prefix, slash commands by name, other text by state
func (h *BaseHandler) dispatch(
	ctx context.Context,
	c telebot.Context,
	commandHandlers map[string]commandFunc,
	callbackHandlers map[string]commandFunc,
	onLogin func(ctx context.Context, c telebot.Context, state models.ConversationState, login string) error,
	onStart func(c telebot.Context) error,
) error {
	if cb := c.Callback(); cb != nil {
		_ = c.Respond()
		prefix, args := parseCallback(cb.Data)
		if handler, ok := callbackHandlers[prefix]; ok {
			return handler(ctx, c, args)
		}
		h.logger.Warnf("Unknown callback %q from %d", cb.Data, c.Sender().ID)
		return c.Send("Unknown action.")
	}

	userID := c.Sender().ID
	command, args := parseCommand(c.Text())
	if command != "" {
		h.stateService.ClearState(userID)
		if command == commands.Start || command == commands.Cancel {
			return onStart(c)
		}
		if handler, ok := commandHandlers[command]; ok {
			return handler(ctx, c, args)
		}
		return onStart(c)
	}

	state := h.stateService.GetState(userID)
	if state.State == models.Default {
		return onStart(c)
	}
	return onLogin(ctx, c, state.State, strings.TrimSpace(c.Text()))
}

// handleLoginInput continues a command that was waiting for a typed login
func (h *BaseHandler) handleLoginInput(ctx context.Context, c telebot.Context, state models.ConversationState, login string, addKey commandFunc) error {
	args := []string{login}
	switch state {
	case models.AwaitingKeyLogin:
		return addKey(ctx, c, args)
	case models.AwaitingRenewLogin:
		return h.handleRenew(ctx, c, args)
	case models.AwaitingTopUpLogin:
		return h.handleAddTraffic(ctx, c, args)
	default:
		h.logger.Warnf("Unknown state: %d", state)
		h.stateService.ClearState(c.Sender().ID)
		return nil
	}
}

// handleGetID handles the /get_id command
func (h *BaseHandler) handleGetID(ctx context.Context, c telebot.Context, args []string) error {
	return h.sendTextMessage(c, fmt.Sprintf("Your Telegram ID: %d", c.Sender().ID), nil)
}

// handleSupport handles the /support command
func (h *BaseHandler) handleSupport(ctx context.Context, c telebot.Context, args []string) error {
	username := h.config.Shop.SupportUsername
	if username == "" {
		return h.sendTextMessage(c, "Support contact is not configured.", nil)
	}

	markup := &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{{
		{Text: "Contact support", URL: "https://t.me/" + username},
	}}}
	return h.sendTextMessage(c, "Press the button below to contact support:", markup)
}

// readLogin validates the login argument or asks for it and moves the user into state
func (h *BaseHandler) readLogin(c telebot.Context, args []string, state models.ConversationState, prompt string) (string, bool, error) {
	userID := c.Sender().ID
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		h.stateService.WithConversationState(userID, state)
		return "", false, h.sendTextMessage(c, prompt, nil)
	}

	login, err := validation.NormalizeLogin(args[0])
	if err != nil {
		h.stateService.WithConversationState(userID, state)
		return "", false, h.sendTextMessage(c, fmt.Sprintf("Invalid login: %v\nTry again:", validationMessage(err)), nil)
	}

	h.stateService.ClearState(userID)
	return login, true, nil
}

// handleRenew handles the /renew command
func (h *BaseHandler) handleRenew(ctx context.Context, c telebot.Context, args []string) error {
	login, ok := h.storage.KnownLogin(c.Sender().ID)
	if !ok {
		var err error
		login, ok, err = h.readLogin(c, args, models.AwaitingRenewLogin, "Enter the login to renew:")
		if !ok {
			return err
		}
	}

	return h.sendTextMessage(c, fmt.Sprintf("Choose a plan to renew %s:", login), tariffKeyboard(commands.UserPlan, login))
}

// handleAddTraffic handles the /add_traffic command
func (h *BaseHandler) handleAddTraffic(ctx context.Context, c telebot.Context, args []string) error {
	login, ok := "", false
	if len(args) == 0 {
		login, ok = h.storage.KnownLogin(c.Sender().ID)
	}
	if !ok {
		var err error
		login, ok, err = h.readLogin(c, args, models.AwaitingTopUpLogin, "Enter the login to top up:")
		if !ok {
			return err
		}
	}

	expiry := h.subscriptions.ExpiryText(ctx, login)
	text := fmt.Sprintf("⚠️ Extra traffic only counts until the end of the current subscription!\n"+
		"❗ Current subscription ends: %s\n\n"+
		"👇 Choose a package for %s:", expiry, login)
	return h.sendTextMessage(c, text, topUpKeyboard(login))
}

// handleMyStats handles the /my_stats command
func (h *BaseHandler) handleMyStats(ctx context.Context, c telebot.Context, args []string) error {
	text, err := h.subscriptions.Stats(ctx, c.Sender().ID)
	var notFound *apperrors.NotFoundError
	switch {
	case errors.Is(err, services.ErrNoSubscription):
		return h.sendTextMessage(c, "You have no active subscription.", nil)
	case errors.As(err, &notFound):
		return h.sendTextMessage(c, "Client not found in the panel.", nil)
	case err != nil:
		h.logger.Errorf("Failed to get stats of %d: %v", c.Sender().ID, err)
		return h.sendTextMessage(c, fmt.Sprintf("Panel error: %v", err), nil)
	}
	return h.sendTextMessage(c, text, nil)
}

// handleUserPlan handles user_plan|<tariff>|<login>: shows payment details and asks admins to confirm
func (h *BaseHandler) handleUserPlan(ctx context.Context, c telebot.Context, args []string) error {
	if len(args) < 2 {
		return c.Send("Invalid request.")
	}
	tariff, ok := models.FindTariff(args[0])
	if !ok {
		return c.Send("Unknown plan.")
	}
	login := args[1]

	request := h.payments.Create(models.RequestPurchase, c.Sender().ID, login, tariff.Code)

	if err := h.sendTextMessage(c, fmt.Sprintf("Pay %d₽ using:\n%s\nAfter payment wait for confirmation.",
		tariff.Price, h.config.Shop.PaymentDetails), nil); err != nil {
		return err
	}

	text := fmt.Sprintf("Key request #%s:\nUser %d\nLogin: %s\nPlan: %s (%s)",
		request.ID, request.UserID, login, tariff.Code, tariff.Title())
	h.notifyAdmins(c, text, approvalKeyboard(commands.Approve, commands.Reject, request.ID, "✅ Payment received"))
	return nil
}

// handleTopUpPick handles topup_pick|<addon>|<login>
func (h *BaseHandler) handleTopUpPick(ctx context.Context, c telebot.Context, args []string) error {
	if len(args) < 2 {
		return c.Send("Invalid request.")
	}
	addon, ok := models.FindAddon(args[0])
	if !ok {
		return c.Send("Unknown top-up package.")
	}
	login := args[1]

	limited, err := h.subscriptions.CanTopUp(ctx, c.Sender().ID, login)
	if err != nil {
		h.logger.Warnf("Failed to check plan of %s: %v", login, err)
	}
	if !limited {
		return h.sendTextMessage(c, "You are on an unlimited plan, no top-up is needed.", nil)
	}

	request := h.payments.Create(models.RequestTopUp, c.Sender().ID, login, addon.Code)

	if err := h.sendTextMessage(c, fmt.Sprintf("Top-up: +%d GB for %d₽.\n%s\nAfter payment wait for confirmation.",
		addon.GB, addon.Price, h.config.Shop.PaymentDetails), nil); err != nil {
		return err
	}

	text := fmt.Sprintf("Top-up request #%s:\nUser %d\nLogin: %s\nPackage: %s",
		request.ID, request.UserID, login, addon.Title())
	h.notifyAdmins(c, text, approvalKeyboard(commands.ApproveTopUp, commands.RejectTopUp, request.ID, "✅ Payment received, top up"))
	return nil
}

// handleActivateKey handles activate_key|<login>
func (h *BaseHandler) handleActivateKey(ctx context.Context, c telebot.Context, args []string) error {
	if len(args) < 1 {
		return c.Send("Invalid request.")
	}

	if err := h.sendTextMessage(c, "🔄 Your key will be sent shortly...", nil); err != nil {
		return err
	}
	h.links.Deliver(ctx, c.Sender().ID, args[0])
	return nil
}

// notifyAdmins sends a message with a keyboard to every admin
func (h *BaseHandler) notifyAdmins(c telebot.Context, text string, markup *telebot.ReplyMarkup) {
	for _, adminID := range h.permCtrl.AdminIDs() {
		if err := h.sendTo(c, adminID, text, markup); err != nil {
			h.logger.Warnf("Failed to notify admin %d: %v", adminID, err)
		}
	}
}

// sendTo sends a message to another chat
func (h *BaseHandler) sendTo(c telebot.Context, chatID int64, text string, markup *telebot.ReplyMarkup) error {
	opts := &telebot.SendOptions{DisableWebPagePreview: true}
	if markup != nil {
		opts.ReplyMarkup = markup
	}
	_, err := c.Bot().Send(&telebot.User{ID: chatID}, text, opts)
	return err
}

// sendTextMessage sends a text message with optional markup
func (h *BaseHandler) sendTextMessage(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	opts := &telebot.SendOptions{DisableWebPagePreview: true}

	if markup != nil {
		opts.ReplyMarkup = markup
	}

	_, err := c.Bot().Send(c.Recipient(), text, opts)
	if err != nil {
		h.logger.Errorf("Failed to send message: %v", err)
	}
	return err
}

// sendQRCode sends a QR code for the given URL
func (h *BaseHandler) sendQRCode(c telebot.Context, url string) error {
	// Generate QR code
	qrBytes, err := h.qrService.GenerateQR(url)
	if err != nil {
		h.logger.Errorf("Failed to generate QR code: %v", err)
		return err
	}

	photo := &telebot.Photo{File: telebot.FromReader(bytes.NewReader(qrBytes))}

	_, err = c.Bot().Send(c.Recipient(), photo)
	if err != nil {
		h.logger.Errorf("Failed to send QR code: %v", err)
	}
	return err
}

// tariffKeyboard lists the plans as <prefix>|<code>|<login> buttons
func tariffKeyboard(prefix, login string) *telebot.ReplyMarkup {
	var rows [][]telebot.InlineButton
	for _, t := range models.Tariffs {
		rows = append(rows, []telebot.InlineButton{{
			Text: t.Title(),
			Data: callbackData(prefix, t.Code, login),
		}})
	}
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

// topUpKeyboard lists the traffic packages for a login
func topUpKeyboard(login string) *telebot.ReplyMarkup {
	var rows [][]telebot.InlineButton
	for _, a := range models.Addons {
		rows = append(rows, []telebot.InlineButton{{
			Text: a.Title(),
			Data: callbackData(commands.TopUpPick, a.Code, login),
		}})
	}
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

// approvalKeyboard builds the admin approve/reject buttons of a request
func approvalKeyboard(approve, reject, requestID, approveText string) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{
		{{Text: approveText, Data: callbackData(approve, requestID)}},
		{{Text: "❌ Reject", Data: callbackData(reject, requestID)}},
	}}
}

// activateKeyboard offers to fetch the link of a freshly created key
func activateKeyboard(login string) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{
		{{Text: "🔑 Activate key", Data: callbackData(commands.ActivateKey, login)}},
	}}
}

func callbackData(prefix string, args ...string) string {
	return strings.Join(append([]string{prefix}, args...), commands.CallbackSeparator)
}

// parseCallback splits callback data into prefix and arguments.
// Data of buttons registered with a unique id starts with a form feed.
func parseCallback(data string) (string, []string) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "\f")
	parts := strings.Split(data, commands.CallbackSeparator)
	return parts[0], parts[1:]
}

// parseCommand splits "/cmd@bot arg1 arg2". Non-command text yields an empty command.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}

	command := strings.ToLower(fields[0])
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return command, fields[1:]
}

func validationMessage(err error) string {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Field + " " + validationErr.Message
	}
	return err.Error()
}
