package boostgram

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/boostgram/boostgram/model"
)

func TestEnqueuePaymentEventRejectsUnidentifiedEvents(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.EnqueuePaymentEvent(context.Background(), &PaymentEventPayload{Status: "approved"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "neither transaction id nor payment id")

	err = engine.EnqueuePaymentEvent(context.Background(), &PaymentEventPayload{TransactionID: "txn_test-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no status")
}

func TestProcessPaymentEventRejectionUpdatesStatusOnly(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	txn.Status = model.PaymentPending
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectExec("UPDATE transactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	err := engine.ProcessPaymentEvent(context.Background(), &PaymentEventPayload{
		TransactionID: txn.TransactionID,
		Status:        "declined",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPaymentEventUnknownStatusIsIgnored(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))

	err := engine.ProcessPaymentEvent(context.Background(), &PaymentEventPayload{
		TransactionID: txn.TransactionID,
		Status:        "in_mediation",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPaymentEventApprovedIsIdempotent(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	// Already approved and already dispatched: no status write, the stored
	// orders are the terminal answer.
	txn := testTransaction()
	txn.OrderCreated = true
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))

	rows := orderRowColumns().AddRow(
		"ord_existing", txn.TransactionID, "prov_test-1", "555", model.OrderCompleted, int64(100),
		"https://instagram.com/p/Caaa111", "Caaa111", "someuser", "", false,
		false, time.Now(), time.Now(), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(rows)

	err := engine.ProcessPaymentEvent(context.Background(), &PaymentEventPayload{
		TransactionID: txn.TransactionID,
		Status:        "completed",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPaymentEventResolvesByPaymentID(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))

	err := engine.ProcessPaymentEvent(context.Background(), &PaymentEventPayload{
		PaymentID: txn.PaymentID,
		Status:    "unknown_gateway_status",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePaymentStatus(t *testing.T) {
	assert.Equal(t, model.PaymentApproved, normalizePaymentStatus("approved"))
	assert.Equal(t, model.PaymentApproved, normalizePaymentStatus("completed"))
	assert.Equal(t, model.PaymentApproved, normalizePaymentStatus("paid"))
	assert.Equal(t, model.PaymentRejected, normalizePaymentStatus("declined"))
	assert.Equal(t, model.PaymentCancelled, normalizePaymentStatus("canceled"))
	assert.Equal(t, model.PaymentRefunded, normalizePaymentStatus("refunded"))
	assert.Equal(t, model.PaymentChargeback, normalizePaymentStatus("charged_back"))
	assert.Equal(t, "in_mediation", normalizePaymentStatus("in_mediation"))
}

func TestHashEventKeyIsStable(t *testing.T) {
	first := hashEventKey("txn_test-1")
	assert.Equal(t, first, hashEventKey("txn_test-1"))
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 100)
}
