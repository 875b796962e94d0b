package helpers

import (
	"fmt"

	"xui-vpn-shop/internal/constants"
)

// FormatUsage formats used traffic against the ceiling, both in bytes (limit 0 = unlimited)
func FormatUsage(usedBytes, limitBytes int64) string {
	usedGB := float64(usedBytes) / constants.BytesInGB
	if limitBytes == 0 {
		return fmt.Sprintf("%.2f GB of unlimited", usedGB)
	}
	return fmt.Sprintf("%.2f GB of %d GB", usedGB, limitBytes/constants.BytesInGB)
}

// FormatLimitGB formats a traffic ceiling given in whole gigabytes
func FormatLimitGB(gb int64) string {
	if gb == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d GB", gb)
}
