package model

import (
	"github.com/boostgram/boostgram"
	"github.com/boostgram/boostgram/model"
)

// PaymentEvent is the inbound payment confirmation payload. The gateway
// layer has already verified it; only shape is validated here.
type PaymentEvent struct {
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
}

func (p *PaymentEvent) ToPayload() *boostgram.PaymentEventPayload {
	return &boostgram.PaymentEventPayload{
		TransactionID: p.TransactionID,
		PaymentID:     p.PaymentID,
		Status:        p.Status,
	}
}

// CreateTransaction records a checkout before its payment confirms.
type CreateTransaction struct {
	PaymentID   string                 `json:"payment_id"`
	ServiceID   string                 `json:"service_id"`
	ServiceName string                 `json:"service_name"`
	ServiceKind string                 `json:"service_kind"`
	Username    string                 `json:"username"`
	Link        string                 `json:"link"`
	Quantity    int64                  `json:"quantity"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

func (t *CreateTransaction) ToTransaction() *model.Transaction {
	return &model.Transaction{
		PaymentID:   t.PaymentID,
		ServiceID:   t.ServiceID,
		ServiceName: t.ServiceName,
		ServiceKind: model.ServiceKind(t.ServiceKind),
		Username:    t.Username,
		Link:        t.Link,
		Quantity:    t.Quantity,
		MetaData:    t.MetaData,
	}
}

type CreateProvider struct {
	Name      string `json:"name"`
	APIURL    string `json:"api_url"`
	APIKey    string `json:"api_key"`
	LegacyAPI bool   `json:"legacy_api"`
	Active    *bool  `json:"active"`
}

func (p *CreateProvider) ToProvider() *model.Provider {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return &model.Provider{
		Name:      p.Name,
		APIURL:    p.APIURL,
		APIKey:    p.APIKey,
		LegacyAPI: p.LegacyAPI,
		Active:    active,
	}
}
