package config

import "time"

// Config represents the application configuration
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Server   ServerConfig   `mapstructure:"server"`
	Link     LinkConfig     `mapstructure:"link"`
	Shop     ShopConfig     `mapstructure:"shop"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DataDir  string         `mapstructure:"data_dir"`
	LogLevel string         `mapstructure:"log_level"`
}

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

// ServerConfig holds the configuration for the 3x-ui panel
type ServerConfig struct {
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	APIURL    string `mapstructure:"api_url"`
	InboundID int    `mapstructure:"inbound_id"`
	// LinkHost overrides the host written into connection URIs.
	// Empty means the panel URL hostname.
	LinkHost string `mapstructure:"link_host"`
}

// LinkConfig controls how long link resolution waits and how it retries later
type LinkConfig struct {
	Wait          time.Duration `mapstructure:"wait"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// ShopConfig holds storefront texts
type ShopConfig struct {
	SupportUsername  string `mapstructure:"support_username"`
	PaymentDetails   string `mapstructure:"payment_details"`
	ReminderSchedule string `mapstructure:"reminder_schedule"`
}

// HTTPConfig holds the ops API configuration
type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}
