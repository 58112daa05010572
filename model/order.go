package model

import "time"

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderFailed     = "failed"
	OrderCanceled   = "canceled"
	OrderPartial    = "partial"
	OrderNeedsRetry = "needs_retry"
)

// Order is one provider-facing delivery request derived from a transaction,
// scoped to a single target. MetaData keeps the exact request sent and the
// raw response received so operators can inspect and resend.
type Order struct {
	ID              int64                  `json:"-"`
	OrderID         string                 `json:"id"`
	TransactionID   string                 `json:"transaction_id"`
	ProviderID      string                 `json:"provider_id"`
	ExternalID      string                 `json:"external_id,omitempty"`
	Status          string                 `json:"status"`
	Quantity        int64                  `json:"quantity"`
	Link            string                 `json:"link"`
	PostCode        string                 `json:"post_code,omitempty"`
	Username        string                 `json:"username,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ConnectionError bool                   `json:"connection_error,omitempty"`
	NeedsAttention  bool                   `json:"needs_attention,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	MetaData        map[string]interface{} `json:"meta_data,omitempty"`
}

// OrderResult is the per-target outcome of a dispatch batch. A failed target
// still yields a result entry so the batch always reports one entry per
// attempted target.
type OrderResult struct {
	Success          bool                   `json:"success"`
	Skipped          bool                   `json:"skipped,omitempty"`
	Order            *Order                 `json:"order,omitempty"`
	ProviderResponse map[string]interface{} `json:"provider_response,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// ProcessResult is the terminal outcome of one transaction processing
// attempt. NeedsRetry distinguishes transient failures the scheduler may
// re-feed from data errors that require operator intervention.
type ProcessResult struct {
	Success    bool          `json:"success"`
	Orders     []OrderResult `json:"orders,omitempty"`
	Error      string        `json:"error,omitempty"`
	NeedsRetry bool          `json:"needs_retry"`
}

// DuplicatePost records one dropped duplicate for audit: which target was
// kept, which was dropped, and the identifier key that matched.
type DuplicatePost struct {
	ID            int64     `json:"-"`
	TransactionID string    `json:"transaction_id"`
	KeptKey       string    `json:"kept_key"`
	DroppedKey    string    `json:"dropped_key"`
	MatchedOn     string    `json:"matched_on"`
	CreatedAt     time.Time `json:"created_at"`
}
