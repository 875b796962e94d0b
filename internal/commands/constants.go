package commands

// TelegramCommands contains all commands for the Telegram bot
const (
	// Common commands
	Start    = "/start"
	GetID    = "/get_id"
	Support  = "/support"
	AddKey   = "/add_key"
	Renew    = "/renew"
	Traffic  = "/add_traffic"
	MyStats  = "/my_stats"
	Cancel   = "/cancel"
	DelKey   = "/del_key"
)

// Callback prefixes. Callback data is "<prefix>|<arg>|<arg>".
const (
	AdminPlan    = "admin_plan"
	UserPlan     = "user_plan"
	Approve      = "approve"
	Reject       = "reject"
	TopUpPick    = "topup_pick"
	ApproveTopUp = "approve_topup"
	RejectTopUp  = "reject_topup"
	ActivateKey  = "activate_key"
)

// CallbackSeparator joins callback data fields
const CallbackSeparator = "|"

// Menu lists the commands shown in the Telegram command menu
var Menu = []struct {
	Command     string
	Description string
}{
	{Start, "Start the bot"},
	{AddKey, "Create a new VPN key"},
	{Renew, "Renew the subscription"},
	{Traffic, "Buy extra traffic"},
	{GetID, "Show your Telegram ID"},
	{Support, "Contact support"},
	{MyStats, "Show subscription statistics"},
	{DelKey, "Unbind a login (admin)"},
}
