package boostgram

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/model"
)

func newTestScheduler(t *testing.T) (*Scheduler, sqlmock.Sqlmock) {
	t.Helper()
	engine, mock, _ := newTestEngine(t)
	cfg, err := config.Fetch()
	assert.NoError(t, err)
	return NewScheduler(engine, cfg.Scheduler), mock
}

func TestSweepApprovedOnceEmptyBacklog(t *testing.T) {
	scheduler, mock := newTestScheduler(t)

	mock.ExpectQuery("order_created = FALSE").WillReturnRows(sqlmock.NewRows([]string{
		"transaction_id", "payment_id", "service_id", "service_name", "service_kind",
		"status", "order_created", "duplicate_of", "username", "link", "quantity",
		"created_at", "meta_data",
	}))

	processed, err := scheduler.SweepApprovedOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepApprovedOnceCountsOnlySuccesses(t *testing.T) {
	scheduler, mock := newTestScheduler(t)

	// One backlog entry that turns out to be already dispatched: a success
	// without any provider traffic.
	txn := testTransaction()
	txn.OrderCreated = true
	mock.ExpectQuery("order_created = FALSE").WillReturnRows(transactionRows(txn))
	mock.ExpectQuery("FROM transactions").WillReturnRows(transactionRows(txn))
	rows := orderRowColumns().AddRow(
		"ord_existing", txn.TransactionID, "prov_test-1", "555", model.OrderCompleted, int64(100),
		"https://instagram.com/p/Caaa111", "Caaa111", "someuser", "", false,
		false, time.Now(), time.Now(), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(rows)

	processed, err := scheduler.SweepApprovedOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshPendingOrdersOnce(t *testing.T) {
	scheduler, mock := newTestScheduler(t)
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://panel-one.example.com/api/v2",
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{"status": "Completed", "remains": 0}))

	pending := orderRowColumns().AddRow(
		"ord_pending", "txn_test-1", "prov_test-1", "555", model.OrderProcessing, int64(100),
		"https://instagram.com/p/Caaa111", "Caaa111", "someuser", "", false,
		false, time.Now(), time.Now(), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(pending)

	single := orderRowColumns().AddRow(
		"ord_pending", "txn_test-1", "prov_test-1", "555", model.OrderProcessing, int64(100),
		"https://instagram.com/p/Caaa111", "Caaa111", "someuser", "", false,
		false, time.Now(), time.Now(), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT order_id, transaction_id").WillReturnRows(single)
	mock.ExpectQuery("FROM providers").WillReturnRows(providerRows(testProvider()))
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(1, 1))

	refreshed, err := scheduler.RefreshPendingOrdersOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepLocksOnce(t *testing.T) {
	scheduler, mock := newTestScheduler(t)

	mock.ExpectExec("DELETE FROM dispatch_locks").WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := scheduler.SweepLocksOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
