package database

import (
	"context"
	"time"

	"github.com/boostgram/boostgram/model"
)

type transaction interface {
	RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionByPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status string) error
	MarkOrderCreated(ctx context.Context, id string) error
	MarkTransactionDuplicate(ctx context.Context, id, duplicateOf string) error
	GetApprovedUnprocessed(ctx context.Context, limit int) ([]model.Transaction, error)
	OrderCreatedForPayment(ctx context.Context, paymentID, excludeTransactionID string) (string, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]model.Transaction, error)
	LogTransactionEvent(ctx context.Context, entry *model.TransactionLog) error
	GetTransactionLogs(ctx context.Context, transactionID string) ([]model.TransactionLog, error)
}

type order interface {
	RecordOrder(ctx context.Context, ord *model.Order) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	GetOrdersByTransaction(ctx context.Context, transactionID string) ([]model.Order, error)
	DuplicateOrderExists(ctx context.Context, transactionID, canonicalKey string) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	UpdateOrderAfterDispatch(ctx context.Context, ord *model.Order) error
	GetPendingOrders(ctx context.Context, limit int) ([]model.Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]model.Order, error)
	LastSuccessfulFollowerOrder(ctx context.Context, username, profileLink string) (time.Time, error)
	RecordDuplicatePost(ctx context.Context, dup *model.DuplicatePost) error
}

type provider interface {
	CreateProvider(ctx context.Context, prov *model.Provider) (*model.Provider, error)
	GetProvider(ctx context.Context, providerID string) (*model.Provider, error)
	GetDefaultProvider(ctx context.Context) (*model.Provider, error)
	GetAllProviders(ctx context.Context) ([]model.Provider, error)
}

type dispatchLock interface {
	InsertLock(ctx context.Context, lock *model.DispatchLock) (bool, error)
	GetLock(ctx context.Context, key string) (*model.DispatchLock, error)
	DeleteLock(ctx context.Context, key, holder string) (bool, error)
	DeleteExpiredLocks(ctx context.Context, now time.Time, hardCeiling time.Duration) (int64, error)
}

// ListFilter narrows admin list queries. Zero values mean "no constraint".
type ListFilter struct {
	Status     string
	ProviderID string
	Search     string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

type IDataSource interface {
	transaction
	order
	provider
	dispatchLock
}
