package constants

const (
	// Login validation constants
	MinLoginLength = 3
	MaxLoginLength = 32

	// Traffic constants
	BytesInGB = 1024 * 1024 * 1024

	// Duration constants
	DaysInMonth = 30

	// Network constants
	DefaultTimeout          = 15
	DefaultRetryCount       = 1
	DefaultRetryWaitTime    = 1
	DefaultRetryMaxWaitTime = 5

	// Cache constants
	CacheExpiration      = 30 // minutes
	CacheCleanupInterval = 10 // minutes

	// Payment request constants
	PaymentRequestTTL = 24 * 60 // minutes

	// Link resolution constants
	DefaultLinkWaitSeconds   = 15
	DefaultPollIntervalMs    = 400
	DefaultLinkRetryDelay    = 30 // seconds
	DefaultLinkRetryAttempts = 1
	DefaultFlow              = "xtls-rprx-vision"
	DefaultFingerprint       = "chrome"
	DefaultInboundID         = 2
	DefaultClientLimitIP     = 2
	DefaultReminderSchedule  = "0 0 0 * * *"
	DefaultDataDir           = "data"
	QRCodeSize               = 512

	// Formatting constants
	DateTimeFormat = "2006-01-02 15:04"
)

// ReminderThresholdsDays lists the days-left values that trigger an expiry reminder.
var ReminderThresholdsDays = []int{15, 7, 3, 1}
