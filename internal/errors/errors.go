package errors

import (
	"fmt"
	"strings"
	"time"
)

// AuthError represents a failed login against the panel
type AuthError struct {
	URL     string
	Status  int
	Message string
}

// Error returns the error message
func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("panel login failed at %s (status %d): %s", e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("panel login failed at %s: %s", e.URL, e.Message)
}

// NotFoundError represents an inbound or client that the panel does not have
type NotFoundError struct {
	Resource  string
	Key       string
	Available []int
}

// Error returns the error message
func (e *NotFoundError) Error() string {
	if len(e.Available) > 0 {
		ids := make([]string, 0, len(e.Available))
		for _, id := range e.Available {
			ids = append(ids, fmt.Sprint(id))
		}
		return fmt.Sprintf("%s %s not found (available: %s)", e.Resource, e.Key, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// XrayAPIError represents a single failed call to the panel API
type XrayAPIError struct {
	Operation string
	Status    int
	Message   string
}

// Error returns the error message
func (e *XrayAPIError) Error() string {
	return fmt.Sprintf("X-ray API error during %s (status %d): %s", e.Operation, e.Status, e.Message)
}

// ProvisionError is returned when every add-client endpoint variant failed
type ProvisionError struct {
	InboundID    int
	Email        string
	LastResponse string
	Err          error
}

// Error returns the error message
func (e *ProvisionError) Error() string {
	return fmt.Sprintf("add client %s to inbound %d failed, last response: %s", e.Email, e.InboundID, e.LastResponse)
}

// Unwrap returns the aggregated variant failures
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// UpdateError is returned when the panel rejects an inbound update
type UpdateError struct {
	InboundID int
	Email     string
	Response  string
}

// Error returns the error message
func (e *UpdateError) Error() string {
	return fmt.Sprintf("update of client %s in inbound %d rejected: %s", e.Email, e.InboundID, e.Response)
}

// UnlimitedPlanError is returned when a traffic top-up targets an unlimited client
type UnlimitedPlanError struct {
	Email string
}

// Error returns the error message
func (e *UnlimitedPlanError) Error() string {
	return fmt.Sprintf("client %s has an unlimited plan, traffic cannot be added", e.Email)
}

// LinkResolutionTimeoutError is returned when a client did not show up within the poll window
type LinkResolutionTimeoutError struct {
	InboundID int
	Email     string
	Waited    time.Duration
}

// Error returns the error message
func (e *LinkResolutionTimeoutError) Error() string {
	return fmt.Sprintf("client %s did not appear in inbound %d within %s", e.Email, e.InboundID, e.Waited)
}

// ValidationError represents an error when validation fails
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Section string
	Message string
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
}
