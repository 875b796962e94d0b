package telegrambot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"xui-vpn-shop/internal/commands"
	"xui-vpn-shop/internal/config"
	"xui-vpn-shop/internal/handlers"
	"xui-vpn-shop/internal/permissions"
	"xui-vpn-shop/internal/services"
)

var _ services.Messenger = (*Bot)(nil)

// Bot represents a Telegram bot
type Bot struct {
	bot       *telebot.Bot
	config    *config.Config
	handlers  map[permissions.AccessType]handlers.MessageHandler
	qrService *services.QRService
	permCtrl  *permissions.PermissionController
	logger    *logrus.Logger
	ctx       context.Context
}

// NewBot creates a new Telegram bot. Handlers are attached later with Register,
// because they need the bot itself to message other users.
func NewBot(
	cfg *config.Config,
	qrService *services.QRService,
	permCtrl *permissions.PermissionController,
	logger *logrus.Logger,
) (*Bot, error) {
	// Create bot settings
	settings := telebot.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			logger.Errorf("Telegram bot error: %v", err)
			if c != nil {
				_ = c.Send("An error occurred. Please try again later.")
			}
		},
	}

	// Create bot instance
	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Bot{
		bot:       b,
		config:    cfg,
		handlers:  make(map[permissions.AccessType]handlers.MessageHandler),
		qrService: qrService,
		permCtrl:  permCtrl,
		logger:    logger,
		ctx:       context.Background(),
	}, nil
}

// Register creates the per-access handlers and routes updates to them
func (b *Bot) Register(factory *handlers.HandlerFactory) {
	b.handlers[permissions.Admin] = factory.CreateHandler(permissions.Admin)
	b.handlers[permissions.Customer] = factory.CreateHandler(permissions.Customer)

	b.setupMiddleware()
}

// Start starts the bot and blocks until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting Telegram bot")
	b.ctx = ctx

	if err := b.bot.SetCommands(menuCommands()); err != nil {
		b.logger.Warnf("Failed to set bot commands: %v", err)
	}

	// Setup context for graceful shutdown
	go func() {
		<-ctx.Done()
		b.logger.Info("Stopping Telegram bot")
		b.bot.Stop()
	}()

	b.bot.Start()
	return nil
}

// SendText sends a plain message to a chat
func (b *Bot) SendText(chatID int64, text string) error {
	_, err := b.bot.Send(&telebot.User{ID: chatID}, text, &telebot.SendOptions{DisableWebPagePreview: true})
	return err
}

// SendLink sends a connection link followed by its QR code
func (b *Bot) SendLink(chatID int64, email, link string) error {
	if err := b.SendText(chatID, fmt.Sprintf("✅ Your key %s is ready:\n%s", email, link)); err != nil {
		return err
	}

	png, err := b.qrService.GenerateQR(link)
	if err != nil {
		b.logger.Warnf("Sent link of %s without QR code: %v", email, err)
		return nil
	}
	photo := &telebot.Photo{File: telebot.FromReader(bytes.NewReader(png))}
	_, err = b.bot.Send(&telebot.User{ID: chatID}, photo)
	return err
}

// setupMiddleware sets up the bot middleware
func (b *Bot) setupMiddleware() {
	// Add middleware for all updates
	b.bot.Use(func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			if c.Sender() == nil {
				return nil
			}
			if cb := c.Callback(); cb != nil {
				b.logger.Infof("Received callback from %d: %s", c.Sender().ID, cb.Data)
			} else {
				b.logger.Infof("Received message from %d: %s", c.Sender().ID, c.Text())
			}

			// Pass to the next handler
			return next(c)
		}
	})

	// Handle all messages
	for _, cmd := range commands.Menu {
		b.bot.Handle(cmd.Command, b.handleUpdate)
	}
	b.bot.Handle(telebot.OnText, b.handleUpdate)
	b.bot.Handle(telebot.OnCallback, b.handleUpdate)
}

// handleUpdate handles an update from Telegram
func (b *Bot) handleUpdate(c telebot.Context) error {
	// Get user ID
	userID := c.Sender().ID

	// Get access type
	accessType := b.permCtrl.GetAccessType(userID)

	// Get handler for access type
	handler, ok := b.handlers[accessType]
	if !ok || handler == nil {
		b.logger.Warnf("No handler for access type %d", accessType)
		return c.Send("You don't have permission to use this bot.")
	}

	return handler.Handle(b.ctx, c)
}

func menuCommands() []telebot.Command {
	menu := make([]telebot.Command, 0, len(commands.Menu))
	for _, cmd := range commands.Menu {
		menu = append(menu, telebot.Command{
			Text:        strings.TrimPrefix(cmd.Command, "/"),
			Description: cmd.Description,
		})
	}
	return menu
}
