package model

import (
	"fmt"
	"strings"
	"time"
)

// Provider is an external SMM vendor reached over HTTP. LegacyAPI switches
// between the two request/response shapes in the wild: the older
// form-encoded panel API and the JSON one.
type Provider struct {
	ID         int64     `json:"-"`
	ProviderID string    `json:"id"`
	Name       string    `json:"name"`
	APIURL     string    `json:"api_url"`
	APIKey     string    `json:"-"`
	LegacyAPI  bool      `json:"legacy_api"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProviderRequest is the add-order payload both API shapes understand.
type ProviderRequest struct {
	Key      string `json:"key"`
	Action   string `json:"action"`
	Service  string `json:"service,omitempty"`
	Link     string `json:"link,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
	Order    string `json:"order,omitempty"`
}

// ProviderResponse is the normalized union of both API shapes. Providers
// surface failures either as an HTTP error or as an `error` field in an
// otherwise-200 payload; both land in Error here.
type ProviderResponse struct {
	OrderID string  `json:"order,omitempty"`
	Status  string  `json:"status,omitempty"`
	Remains int64   `json:"remains,omitempty"`
	Charge  string  `json:"charge,omitempty"`
	Balance string  `json:"balance,omitempty"`
	Error   string  `json:"error,omitempty"`
	Raw     RawJSON `json:"-"`
}

// RawJSON preserves the exact provider payload for order metadata.
type RawJSON map[string]interface{}

// ProviderError is the single failure representation every provider call is
// normalized into.
type ProviderError struct {
	Message         string
	ConnectionError bool
}

func (e *ProviderError) Error() string {
	return e.Message
}

// Retryable reports whether the failure is worth an automatic retry.
// Connection-level failures are; business rejections need operator or
// customer action.
func (e *ProviderError) Retryable() bool {
	return e.ConnectionError
}

// IsBalanceError pattern-matches the one business error that has a
// well-known remedy, so admin tooling can give actionable guidance.
func (e *ProviderError) IsBalanceError() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "balance")
}

// NewConnectionError wraps a transport-level failure.
func NewConnectionError(err error) *ProviderError {
	return &ProviderError{Message: fmt.Sprintf("provider unreachable: %v", err), ConnectionError: true}
}

// NewBusinessError wraps a provider-reported rejection.
func NewBusinessError(message string) *ProviderError {
	return &ProviderError{Message: message}
}
