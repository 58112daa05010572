package boostgram

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/boostgram/boostgram/model"
)

func TestProcessTransactionPendingPaymentRetriesLater(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	txn.Status = model.PaymentPending
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.False(t, result.Success)
	assert.True(t, result.NeedsRetry)
	assert.Contains(t, result.Error, "not approved yet")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTransactionTerminalPaymentStateNeverDispatches(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	txn.Status = model.PaymentRejected
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.False(t, result.Success)
	assert.False(t, result.NeedsRetry)
	assert.Contains(t, result.Error, "rejected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTransactionAlreadyProcessedReturnsExistingOrders(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	txn.OrderCreated = true
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))

	rows := orderRowColumns().AddRow(
		"ord_existing", txn.TransactionID, "prov_test-1", "555", model.OrderProcessing, int64(100),
		"https://instagram.com/p/Caaa111", "Caaa111", "someuser", "", false,
		false, time.Now(), time.Now(), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(rows)

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.True(t, result.Success)
	assert.Len(t, result.Orders, 1)
	assert.Equal(t, "ord_existing", result.Orders[0].Order.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTransactionDuplicatePaymentIsMarkedNotDispatched(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectQuery("SELECT transaction_id FROM transactions").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}).AddRow("txn_original"))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("SET duplicate_of").WillReturnResult(sqlmock.NewResult(1, 1))

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.True(t, result.Success)
	assert.Empty(t, result.Orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTransactionWithoutServiceIDFailsTerminally(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	txn := testTransaction()
	txn.PaymentID = ""
	txn.ServiceID = ""
	txn.Link = "https://instagram.com/p/Caaa111"
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.False(t, result.Success)
	assert.False(t, result.NeedsRetry)
	assert.Equal(t, "transaction has no service id", result.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTransactionDropsProfileLinkTargets(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	// A likes purchase whose only target is a profile URL can never address a
	// post. It fails with a data error, not a retry.
	txn := testTransaction()
	txn.PaymentID = ""
	txn.Link = "https://instagram.com/someuser"
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.False(t, result.Success)
	assert.Equal(t, "no valid target for transaction", result.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTransactionEndToEnd(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://panel-one.example.com/api/v2",
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{"order": "31337", "status": "Pending"}))

	txn := testTransaction()
	txn.Link = "https://www.instagram.com/p/Caaa111/"
	prov := testProvider()

	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	mock.ExpectQuery("SELECT transaction_id FROM transactions").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM providers").WillReturnRows(providerRows(prov))
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(emptyOrderRows())
	mock.ExpectExec("INSERT INTO dispatch_locks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(emptyOrderRows())
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("SET order_created = TRUE").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM dispatch_locks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transaction_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	result := engine.ProcessTransaction(context.Background(), txn.TransactionID)
	assert.True(t, result.Success)
	assert.Len(t, result.Orders, 1)
	assert.True(t, result.Orders[0].Success)
	assert.Equal(t, "31337", result.Orders[0].Order.ExternalID)
	assert.Equal(t, "https://instagram.com/p/Caaa111", result.Orders[0].Order.Link)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTransactionDefaults(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))

	txn, err := engine.RecordTransaction(context.Background(), &model.Transaction{
		ServiceID:   "2045",
		ServiceName: "Seguidores Premium",
		Username:    "someuser",
		Quantity:    500,
	})
	assert.NoError(t, err)
	assert.Contains(t, txn.TransactionID, "txn_")
	assert.Equal(t, model.PaymentPending, txn.Status)
	assert.Equal(t, model.ServiceFollowers, txn.ServiceKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
