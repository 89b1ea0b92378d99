package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError is bad user input. Fields maps a form field key (for
// example "country" or "billing.city") to a human message.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Message: "validation failed", Fields: fields}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := e.FieldKeys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, "input."+k+": "+e.Fields[k])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// FieldKeys returns the offending field keys in a stable order.
func (e *ValidationError) FieldKeys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GatewayError is a non-2xx answer from the backend or the payment provider.
// Message is the upstream text; it is logged, not shown to buyers.
type GatewayError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *GatewayError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500 || e.Status == 429
}

// WidgetUnavailableError means the hosted checkout script could not be loaded.
type WidgetUnavailableError struct {
	Cause error
}

func (e *WidgetUnavailableError) Error() string {
	return "payment widget unavailable: " + e.Cause.Error()
}

func (e *WidgetUnavailableError) Unwrap() error { return e.Cause }

// VerificationFailure is a signature mismatch for a payment attempt.
type VerificationFailure struct {
	PaymentOrderID string
	PaymentID      string
}

func (e *VerificationFailure) Error() string {
	return fmt.Sprintf("payment %s for order %s could not be verified", e.PaymentID, e.PaymentOrderID)
}

// NotificationFailure is an email that exhausted its retries.
type NotificationFailure struct {
	Recipient string
	Template  string
	Attempts  int
	Cause     error
}

func (e *NotificationFailure) Error() string {
	return fmt.Sprintf("notification %s to %s failed after %d attempts: %v", e.Template, e.Recipient, e.Attempts, e.Cause)
}

func (e *NotificationFailure) Unwrap() error { return e.Cause }
