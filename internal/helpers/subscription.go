package helpers

import (
	"fmt"
	"math"
	"strings"
	"time"

	"xui-vpn-shop/internal/constants"
	"xui-vpn-shop/internal/models"
)

// CalculateExpiryTime returns the expiry in epoch ms for a plan bought now (0 = never)
func CalculateExpiryTime(now time.Time, months int) int64 {
	if months <= 0 {
		return 0
	}
	return now.AddDate(0, 0, constants.DaysInMonth*months).UnixMilli()
}

// RenewExpiry extends an expiry by the plan length, counting from now when it already passed
func RenewExpiry(now time.Time, currentMs int64, months int) int64 {
	base := now
	if currentMs > now.UnixMilli() {
		base = time.UnixMilli(currentMs)
	}
	return base.AddDate(0, 0, constants.DaysInMonth*months).UnixMilli()
}

// RenewedLimitGB returns the traffic ceiling after a renewal with the given plan.
// Unlimited plans reset the ceiling to unlimited; limited plans add on top of what is left.
func RenewedLimitGB(client models.Client, tariff models.Tariff) int64 {
	if tariff.IsUnlimited() {
		return 0
	}
	return client.TotalWholeGB() + tariff.TrafficLimit
}

// DaysLeft counts calendar days between today and the expiry date in now's location
func DaysLeft(now time.Time, expiryMs int64) int {
	expiry := time.UnixMilli(expiryMs).In(now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, now.Location())
	return int(math.Round(end.Sub(today).Hours() / 24))
}

// FormatExpiry renders an expiry time for chat messages
func FormatExpiry(expiryMs int64) string {
	if expiryMs == 0 {
		return "no expiry date"
	}
	return "until " + time.UnixMilli(expiryMs).Format(constants.DateTimeFormat)
}

// FormatTariff renders the plan summary shown in stats
func FormatTariff(tariff *models.Tariff) string {
	if tariff == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d mo, %s", tariff.Months, FormatLimitGB(tariff.TrafficLimit))
}

// FormatStats renders the /my_stats reply
func FormatStats(email string, tariff *models.Tariff, expiryMs, limitBytes, usedBytes int64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔹 Login: %s\n", email))
	sb.WriteString(fmt.Sprintf("🔹 Plan: %s\n", FormatTariff(tariff)))
	sb.WriteString(fmt.Sprintf("🔹 Valid: %s\n", FormatExpiry(expiryMs)))
	sb.WriteString(fmt.Sprintf("🔹 Traffic: %s", FormatUsage(usedBytes, limitBytes)))
	return sb.String()
}

// FormatReminder renders the expiry reminder text
func FormatReminder(email string, daysLeft int, expiryMs int64) string {
	return fmt.Sprintf("⚠️ Your subscription expires soon!\n\n"+
		"Login: %s\nDays left: %d\nExpiry date: %s\n\n"+
		"Use /renew to extend it or contact support.",
		email, daysLeft, time.UnixMilli(expiryMs).Format(constants.DateTimeFormat))
}
