package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boostgram/boostgram/model"
)

func TestValidatePaymentEvent(t *testing.T) {
	valid := PaymentEvent{TransactionID: "txn_1", Status: "approved"}
	assert.NoError(t, valid.ValidatePaymentEvent())

	byPayment := PaymentEvent{PaymentID: "pay_1", Status: "approved"}
	assert.NoError(t, byPayment.ValidatePaymentEvent())

	noID := PaymentEvent{Status: "approved"}
	assert.Error(t, noID.ValidatePaymentEvent())

	noStatus := PaymentEvent{TransactionID: "txn_1"}
	assert.Error(t, noStatus.ValidatePaymentEvent())
}

func TestValidateCreateTransaction(t *testing.T) {
	valid := CreateTransaction{ServiceID: "2045", Quantity: 100, ServiceKind: "likes"}
	assert.NoError(t, valid.ValidateCreateTransaction())

	noService := CreateTransaction{Quantity: 100}
	assert.Error(t, noService.ValidateCreateTransaction())

	zeroQuantity := CreateTransaction{ServiceID: "2045"}
	assert.Error(t, zeroQuantity.ValidateCreateTransaction())

	badKind := CreateTransaction{ServiceID: "2045", Quantity: 100, ServiceKind: "stories"}
	assert.Error(t, badKind.ValidateCreateTransaction())
}

func TestValidateCreateProvider(t *testing.T) {
	valid := CreateProvider{Name: "panel-one", APIURL: "https://panel-one.example.com/api/v2", APIKey: "k3y"}
	assert.NoError(t, valid.ValidateCreateProvider())

	badURL := CreateProvider{Name: "panel-one", APIURL: "not a url", APIKey: "k3y"}
	assert.Error(t, badURL.ValidateCreateProvider())

	noKey := CreateProvider{Name: "panel-one", APIURL: "https://panel-one.example.com"}
	assert.Error(t, noKey.ValidateCreateProvider())
}

func TestToTransactionDefaults(t *testing.T) {
	req := CreateTransaction{
		PaymentID:   "pay_1",
		ServiceID:   "2045",
		ServiceKind: "followers",
		Username:    "@someuser",
		Quantity:    500,
	}
	txn := req.ToTransaction()
	assert.Equal(t, "pay_1", txn.PaymentID)
	assert.Equal(t, model.ServiceFollowers, txn.ServiceKind)
	assert.Equal(t, int64(500), txn.Quantity)
}

func TestToProviderActiveDefaultsTrue(t *testing.T) {
	req := CreateProvider{Name: "panel-one", APIURL: "https://panel-one.example.com", APIKey: "k3y"}
	assert.True(t, req.ToProvider().Active)

	inactive := false
	req.Active = &inactive
	assert.False(t, req.ToProvider().Active)
}
