package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
)

// Load loads the configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	// Missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("XRAY_INBOUND_ID", constants.DefaultInboundID)
	v.SetDefault("LINK_WAIT_SECONDS", constants.DefaultLinkWaitSeconds)
	v.SetDefault("LINK_POLL_INTERVAL_MS", constants.DefaultPollIntervalMs)
	v.SetDefault("LINK_RETRY_DELAY_SECONDS", constants.DefaultLinkRetryDelay)
	v.SetDefault("LINK_RETRY_ATTEMPTS", constants.DefaultLinkRetryAttempts)
	v.SetDefault("REMINDER_SCHEDULE", constants.DefaultReminderSchedule)
	v.SetDefault("DATA_DIR", constants.DefaultDataDir)
	v.SetDefault("PAYMENT_DETAILS", "Card: 1234 5678 9012 3456")

	// Define environment variables
	for _, key := range []string{
		"TG_TOKEN", "TG_ADMIN_IDS",
		"XRAY_USER", "XRAY_PASSWORD", "XRAY_API_URL", "XRAY_LINK_HOST",
		"SUPPORT_USERNAME", "HTTP_ADDR", "HTTP_API_KEY",
	} {
		_ = v.BindEnv(key)
	}

	// Create config instance
	cfg := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		DataDir:  strings.TrimSpace(v.GetString("DATA_DIR")),
		Telegram: TelegramConfig{
			Token:    strings.TrimSpace(v.GetString("TG_TOKEN")),
			AdminIDs: parseAdminIDs(v.GetString("TG_ADMIN_IDS")),
		},
		Server: ServerConfig{
			User:      strings.TrimSpace(v.GetString("XRAY_USER")),
			Password:  strings.TrimSpace(v.GetString("XRAY_PASSWORD")),
			APIURL:    strings.TrimRight(strings.TrimSpace(v.GetString("XRAY_API_URL")), "/"),
			InboundID: v.GetInt("XRAY_INBOUND_ID"),
			LinkHost:  strings.TrimSpace(v.GetString("XRAY_LINK_HOST")),
		},
		Link: LinkConfig{
			Wait:          time.Duration(v.GetInt("LINK_WAIT_SECONDS")) * time.Second,
			PollInterval:  time.Duration(v.GetInt("LINK_POLL_INTERVAL_MS")) * time.Millisecond,
			RetryDelay:    time.Duration(v.GetInt("LINK_RETRY_DELAY_SECONDS")) * time.Second,
			RetryAttempts: v.GetInt("LINK_RETRY_ATTEMPTS"),
		},
		Shop: ShopConfig{
			SupportUsername:  strings.TrimPrefix(strings.TrimSpace(v.GetString("SUPPORT_USERNAME")), "@"),
			PaymentDetails:   v.GetString("PAYMENT_DETAILS"),
			ReminderSchedule: v.GetString("REMINDER_SCHEDULE"),
		},
		HTTP: HTTPConfig{
			Addr:   strings.TrimSpace(v.GetString("HTTP_ADDR")),
			APIKey: strings.TrimSpace(v.GetString("HTTP_API_KEY")),
		},
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseAdminIDs parses a comma separated list of Telegram user IDs
func parseAdminIDs(raw string) []int64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	adminIDs := make([]int64, 0, len(parts))
	for _, idStr := range parts {
		var id int64
		if _, err := fmt.Sscanf(strings.TrimSpace(idStr), "%d", &id); err == nil {
			adminIDs = append(adminIDs, id)
		}
	}
	return adminIDs
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return &apperrors.ConfigError{Section: "telegram", Message: "TG_TOKEN is required"}
	}

	if len(cfg.Telegram.AdminIDs) == 0 {
		return &apperrors.ConfigError{Section: "telegram", Message: "TG_ADMIN_IDS is required"}
	}

	// Validate server configuration
	if cfg.Server.User == "" {
		return &apperrors.ConfigError{Section: "server", Message: "XRAY_USER is required"}
	}
	if cfg.Server.Password == "" {
		return &apperrors.ConfigError{Section: "server", Message: "XRAY_PASSWORD is required"}
	}
	if cfg.Server.APIURL == "" {
		return &apperrors.ConfigError{Section: "server", Message: "XRAY_API_URL is required"}
	}
	if cfg.Server.InboundID <= 0 {
		return &apperrors.ConfigError{Section: "server", Message: "XRAY_INBOUND_ID must be positive"}
	}

	if cfg.Link.Wait <= 0 || cfg.Link.PollInterval <= 0 {
		return &apperrors.ConfigError{Section: "link", Message: "wait and poll interval must be positive"}
	}
	if cfg.Link.RetryAttempts < 0 {
		return &apperrors.ConfigError{Section: "link", Message: "LINK_RETRY_ATTEMPTS cannot be negative"}
	}

	return nil
}
