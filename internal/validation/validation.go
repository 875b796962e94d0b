package validation

import (
	"fmt"
	"strings"

	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
)

// ValidateLogin validates a client login (the panel email field)
func ValidateLogin(login string) error {
	if len(login) < constants.MinLoginLength || len(login) > constants.MaxLoginLength {
		return &apperrors.ValidationError{
			Field: "login",
			Message: fmt.Sprintf("must be between %d and %d characters",
				constants.MinLoginLength, constants.MaxLoginLength),
		}
	}

	for _, r := range login {
		if !isValidLoginChar(r) {
			return &apperrors.ValidationError{
				Field:   "login",
				Message: "can only contain Latin letters, digits, '_', '.' and '-'",
			}
		}
	}

	return nil
}

// NormalizeLogin trims the login and validates it
func NormalizeLogin(raw string) (string, error) {
	login := strings.TrimSpace(raw)
	if err := ValidateLogin(login); err != nil {
		return "", err
	}
	return login, nil
}

// isValidLoginChar checks if a character is valid for logins
func isValidLoginChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_' || r == '.' || r == '-'
}
