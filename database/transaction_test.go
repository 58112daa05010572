package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/boostgram/boostgram/model"
)

func TestRecordTransactionStoresNullDuplicateOf(t *testing.T) {
	ds, mock := newTestDataSource(t)

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("txn_1", "pay_1", "2045", "Curtidas Brasileiras", model.ServiceLikes,
			model.PaymentApproved, false, nil, "someuser", "https://instagram.com/p/Caaa111",
			int64(100), created, []byte("null")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := ds.RecordTransaction(context.Background(), &model.Transaction{
		TransactionID: "txn_1",
		PaymentID:     "pay_1",
		ServiceID:     "2045",
		ServiceName:   "Curtidas Brasileiras",
		ServiceKind:   model.ServiceLikes,
		Status:        model.PaymentApproved,
		Username:      "someuser",
		Link:          "https://instagram.com/p/Caaa111",
		Quantity:      100,
		CreatedAt:     created,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTransactionKeepsDuplicateOfWhenSet(t *testing.T) {
	ds, mock := newTestDataSource(t)

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("txn_2", "pay_1", "2045", "", model.ServiceLikes,
			model.PaymentApproved, false, "txn_1", "someuser", "",
			int64(100), created, []byte("null")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := ds.RecordTransaction(context.Background(), &model.Transaction{
		TransactionID: "txn_2",
		PaymentID:     "pay_1",
		ServiceID:     "2045",
		ServiceKind:   model.ServiceLikes,
		Status:        model.PaymentApproved,
		DuplicateOf:   "txn_1",
		Username:      "someuser",
		Quantity:      100,
		CreatedAt:     created,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A freshly recorded transaction must be reachable by the background sweep:
// the sweep predicate accepts both the NULL a new insert writes and the
// empty string older rows may carry.
func TestGetApprovedUnprocessedSeesRecordedTransactions(t *testing.T) {
	ds, mock := newTestDataSource(t)

	rows := sqlmock.NewRows([]string{
		"transaction_id", "payment_id", "service_id", "service_name", "service_kind",
		"status", "order_created", "duplicate_of", "username", "link", "quantity",
		"created_at", "meta_data",
	}).
		AddRow("txn_1", "pay_1", "2045", "Curtidas", model.ServiceLikes, model.PaymentApproved,
			false, nil, "someuser", "https://instagram.com/p/Caaa111", int64(100), time.Now(), []byte(`{}`)).
		AddRow("txn_2", "pay_2", "2045", "Curtidas", model.ServiceLikes, model.PaymentApproved,
			false, "", "otheruser", "https://instagram.com/p/Cbbb222", int64(50), time.Now(), []byte(`{}`))

	mock.ExpectQuery(`order_created = FALSE AND \(duplicate_of IS NULL OR duplicate_of = ''\)`).
		WithArgs(model.PaymentApproved, 10).
		WillReturnRows(rows)

	transactions, err := ds.GetApprovedUnprocessed(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, transactions, 2)
	assert.Equal(t, "txn_1", transactions[0].TransactionID)
	assert.Empty(t, transactions[0].DuplicateOf)
	assert.NoError(t, mock.ExpectationsWereMet())
}
