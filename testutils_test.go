/*
Copyright 2024 Boostgram Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package boostgram

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"

	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/database"
	"github.com/boostgram/boostgram/model"
)

// fakeClock drives the engine deterministically: now is settable and every
// sleep is recorded and returns immediately.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func newTestEngine(t *testing.T) (*Boostgram, sqlmock.Sqlmock, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{Redis: config.RedisConfig{Dns: mr.Addr()}})

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	engine, err := NewBoostgram(&database.Datasource{Conn: db})
	if err != nil {
		t.Fatalf("Error creating engine instance: %s", err)
	}

	clock := newFakeClock()
	engine.WithClock(clock.Now, clock.Sleep)
	return engine, mock, clock
}

func transactionRows(txn *model.Transaction) *sqlmock.Rows {
	metaDataJSON, _ := json.Marshal(txn.MetaData)
	return sqlmock.NewRows([]string{
		"transaction_id", "payment_id", "service_id", "service_name", "service_kind",
		"status", "order_created", "duplicate_of", "username", "link", "quantity",
		"created_at", "meta_data",
	}).AddRow(
		txn.TransactionID, txn.PaymentID, txn.ServiceID, txn.ServiceName, txn.ServiceKind,
		txn.Status, txn.OrderCreated, txn.DuplicateOf, txn.Username, txn.Link, txn.Quantity,
		txn.CreatedAt, metaDataJSON,
	)
}

func emptyOrderRows() *sqlmock.Rows {
	return orderRowColumns()
}

func orderRowColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"order_id", "transaction_id", "provider_id", "external_id", "status", "quantity",
		"link", "post_code", "username", "error_message", "connection_error",
		"needs_attention", "created_at", "updated_at", "meta_data",
	})
}

func providerRows(prov *model.Provider) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"provider_id", "name", "api_url", "api_key", "legacy_api", "active", "created_at",
	}).AddRow(prov.ProviderID, prov.Name, prov.APIURL, prov.APIKey, prov.LegacyAPI, prov.Active, prov.CreatedAt)
}
