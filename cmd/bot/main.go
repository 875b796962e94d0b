package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/api"
	"xui-vpn-shop/internal/config"
	"xui-vpn-shop/internal/handlers"
	"xui-vpn-shop/internal/permissions"
	"xui-vpn-shop/internal/services"
	"xui-vpn-shop/pkg/telegrambot"
)

func main() {
	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}
	applyLogLevel(logger, cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("Failed to create data directory: ", err)
	}

	// Initialize services
	storageService := services.NewStorageService(filepath.Join(cfg.DataDir, "storage.json"), logger)
	stateService := services.NewUserStateService(logger)
	paymentService := services.NewPaymentService(logger)
	qrService := services.NewQRService(logger)
	xrayService := services.NewXrayService(cfg, logger)

	// Setup permission controller
	permController := permissions.NewController(cfg.Telegram.AdminIDs, storageService, logger)

	// Initialize bot
	bot, err := telegrambot.NewBot(cfg, qrService, permController, logger)
	if err != nil {
		logger.Fatal("Failed to create bot: ", err)
	}

	subscriptionService := services.NewSubscriptionService(xrayService, storageService, logger)
	notifier := services.NewLinkNotifier(xrayService, bot, cfg.Link, logger)
	reminders := services.NewReminderService(xrayService, storageService, bot, logger)

	bot.Register(handlers.NewHandlerFactory(handlers.Dependencies{
		Xray:          xrayService,
		Subscriptions: subscriptionService,
		Storage:       storageService,
		Payments:      paymentService,
		States:        stateService,
		QR:            qrService,
		Links:         notifier,
		Messenger:     bot,
		Permissions:   permController,
		Config:        cfg,
		Logger:        logger,
	}))

	// Setup context with cancellation
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reminders.Start(ctx, cfg.Shop.ReminderSchedule); err != nil {
		logger.Fatal("Failed to schedule reminders: ", err)
	}

	if cfg.HTTP.Addr != "" {
		server := api.NewServer(xrayService, cfg.HTTP.APIKey, logger)
		go func() {
			if err := server.Run(ctx, cfg.HTTP.Addr); err != nil {
				logger.Errorf("Ops API failed: %v", err)
			}
		}()
	}

	// Start bot
	logger.Info("Starting VPN shop bot")
	if err := bot.Start(ctx); err != nil {
		logger.Fatal("Bot failed: ", err)
	}

	logger.Info("Received shutdown signal")
	reminders.Stop()
	notifier.Wait()
}

// setupLogger sets up the logger
func setupLogger() *logrus.Logger {
	logger := logrus.New()
	applyLogLevel(logger, os.Getenv("LOG_LEVEL"))

	// Set formatter
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return logger
}

func applyLogLevel(logger *logrus.Logger, logLevel string) {
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
}
