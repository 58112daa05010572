package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	PaymentPending    = "pending"
	PaymentApproved   = "approved"
	PaymentRejected   = "rejected"
	PaymentCancelled  = "cancelled"
	PaymentRefunded   = "refunded"
	PaymentChargeback = "chargeback"
)

// ServiceKind is the enumerated service classification stored on the
// transaction at intake time. Name-substring matching only happens in
// ServiceKindFromName as a back-compat shim for rows created before the
// column existed.
type ServiceKind string

const (
	ServiceLikes     ServiceKind = "likes"
	ServiceComments  ServiceKind = "comments"
	ServiceReels     ServiceKind = "reels"
	ServiceFollowers ServiceKind = "followers"
	ServiceGeneric   ServiceKind = "generic"
)

type Transaction struct {
	ID            int64                  `json:"-"`
	TransactionID string                 `json:"id"`
	PaymentID     string                 `json:"payment_id"`
	ServiceID     string                 `json:"service_id"`
	ServiceName   string                 `json:"service_name"`
	ServiceKind   ServiceKind            `json:"service_kind"`
	Status        string                 `json:"status"`
	OrderCreated  bool                   `json:"order_created"`
	DuplicateOf   string                 `json:"duplicate_of,omitempty"`
	Username      string                 `json:"username"`
	Link          string                 `json:"link"`
	Quantity      int64                  `json:"quantity"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

// TransactionLog is one append-only audit entry for a transaction. The log is
// the primary debugging surface for the multi-hour asynchronous pipeline, so
// every state transition and notable branch writes one.
type TransactionLog struct {
	ID            int64                  `json:"-"`
	TransactionID string                 `json:"transaction_id"`
	Stage         string                 `json:"stage"`
	Message       string                 `json:"message"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ServiceSpec is the canonical resolution of "what was purchased", computed
// once at intake. Metadata wins over the stored column when the two disagree
// on kind; the caller logs the disagreement.
type ServiceSpec struct {
	Kind     ServiceKind
	Quantity int64
	Targets  []Target
}

// ServiceKindFromName classifies a service by name substrings. Kept only for
// rows predating the service_kind column; new services set the column
// explicitly.
func ServiceKindFromName(name string) ServiceKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "reel"):
		return ServiceReels
	case strings.Contains(n, "follower") || strings.Contains(n, "seguidor"):
		return ServiceFollowers
	case strings.Contains(n, "comment") || strings.Contains(n, "coment"):
		return ServiceComments
	case strings.Contains(n, "like") || strings.Contains(n, "curtida"):
		return ServiceLikes
	default:
		return ServiceGeneric
	}
}

// ResolveServiceSpec builds the canonical ServiceSpec for a transaction.
// Precedence for the kind: meta_data["service_kind"] > service_kind column >
// name shim. Targets come from meta_data["posts"] when present, otherwise the
// transaction's single link is the target.
//
// The returned bool reports whether metadata and the stored column disagreed,
// so the caller can log the inconsistency.
func ResolveServiceSpec(transaction *Transaction) (ServiceSpec, bool) {
	kind := transaction.ServiceKind
	if kind == "" {
		kind = ServiceKindFromName(transaction.ServiceName)
	}

	mismatch := false
	if raw, ok := transaction.MetaData["service_kind"].(string); ok && raw != "" {
		metaKind := ServiceKind(strings.ToLower(raw))
		if transaction.ServiceKind != "" && metaKind != transaction.ServiceKind {
			mismatch = true
		}
		kind = metaKind
	}

	spec := ServiceSpec{
		Kind:     kind,
		Quantity: transaction.Quantity,
		Targets:  targetsFromMetadata(transaction),
	}

	if qty, ok := transaction.MetaData["quantity"].(float64); ok && qty > 0 {
		spec.Quantity = int64(qty)
	}

	if len(spec.Targets) == 0 && transaction.Link != "" {
		spec.Targets = []Target{{Link: transaction.Link}}
	}

	return spec, mismatch
}

// targetsFromMetadata extracts the selected posts from the open-ended
// metadata blob. The blob is untyped JSON, so every field access is guarded;
// malformed entries are dropped rather than failing the whole transaction.
func targetsFromMetadata(transaction *Transaction) []Target {
	raw, ok := transaction.MetaData["posts"].([]interface{})
	if !ok {
		return nil
	}

	targets := make([]Target, 0, len(raw))
	for _, entry := range raw {
		post, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		target := Target{}
		if id, ok := post["id"].(string); ok {
			target.ID = id
		}
		if code, ok := post["code"].(string); ok {
			target.Code = code
		}
		if link, ok := post["link"].(string); ok {
			target.Link = link
		}
		if qty, ok := post["quantity"].(float64); ok {
			target.Quantity = int64(qty)
		}
		if target.ID == "" && target.Code == "" && target.Link == "" {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}
