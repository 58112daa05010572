package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/model"
)

const transactionColumns = `transaction_id, payment_id, service_id, service_name, service_kind, status, order_created, duplicate_of, username, link, quantity, created_at, meta_data`

func (d Datasource) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	// Store the empty duplicate_of as NULL; the sweep filters on IS NULL.
	duplicateOf := sql.NullString{String: txn.DuplicateOf, Valid: txn.DuplicateOf != ""}
	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO transactions(transaction_id,payment_id,service_id,service_name,service_kind,status,order_created,duplicate_of,username,link,quantity,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		txn.TransactionID, txn.PaymentID, txn.ServiceID, txn.ServiceName, txn.ServiceKind, txn.Status, txn.OrderCreated, duplicateOf, txn.Username, txn.Link, txn.Quantity, txn.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return txn, nil
}

func scanTransaction(row interface{ Scan(...interface{}) error }) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var metaDataJSON []byte
	var duplicateOf sql.NullString
	err := row.Scan(&txn.TransactionID, &txn.PaymentID, &txn.ServiceID, &txn.ServiceName, &txn.ServiceKind, &txn.Status, &txn.OrderCreated, &duplicateOf, &txn.Username, &txn.Link, &txn.Quantity, &txn.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	txn.DuplicateOf = duplicateOf.String
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, err
		}
	}
	return txn, nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE transaction_id = $1
	`, id)

	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) GetTransactionByPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE payment_id = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, paymentID)

	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with payment ID '%s' not found", paymentID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) UpdateTransactionStatus(ctx context.Context, id string, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2
		WHERE transaction_id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
	}
	return nil
}

// MarkOrderCreated flips the idempotency boundary: once set, the pipeline
// never dispatches this transaction again.
func (d Datasource) MarkOrderCreated(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET order_created = TRUE, status = $2
		WHERE transaction_id = $1
	`, id, model.PaymentApproved)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark order created", err)
	}
	return nil
}

func (d Datasource) MarkTransactionDuplicate(ctx context.Context, id, duplicateOf string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE transactions
		SET duplicate_of = $2
		WHERE transaction_id = $1
	`, id, duplicateOf)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark transaction duplicate", err)
	}
	return nil
}

// GetApprovedUnprocessed feeds the background sweep: approved transactions
// that never produced orders and are not duplicates of another payment.
func (d Datasource) GetApprovedUnprocessed(ctx context.Context, limit int) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1 AND order_created = FALSE AND (duplicate_of IS NULL OR duplicate_of = '')
		ORDER BY created_at ASC
		LIMIT $2
	`, model.PaymentApproved, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unprocessed transactions", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

// OrderCreatedForPayment reports whether another transaction already
// materialized orders for the same underlying payment. Returns the id of
// that transaction, or "" when none exists.
func (d Datasource) OrderCreatedForPayment(ctx context.Context, paymentID, excludeTransactionID string) (string, error) {
	var id string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT transaction_id FROM transactions
		WHERE payment_id = $1 AND transaction_id != $2 AND order_created = TRUE
		LIMIT 1
	`, paymentID, excludeTransactionID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check payment duplicates", err)
	}
	return id, nil
}

func (d Datasource) ListTransactions(ctx context.Context, filter ListFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (username ILIKE $%d OR link ILIKE $%d OR payment_id ILIKE $%d)", idx, idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, filter.To)
		idx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transactions", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

// LogTransactionEvent appends one audit entry. Append-only: entries are
// never updated or deleted.
func (d Datasource) LogTransactionEvent(ctx context.Context, entry *model.TransactionLog) error {
	metaDataJSON, err := json.Marshal(entry.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal log metadata", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO transaction_logs(transaction_id, stage, message, meta_data, created_at) VALUES ($1,$2,$3,$4,$5)
	`, entry.TransactionID, entry.Stage, entry.Message, metaDataJSON, entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append transaction log", err)
	}
	return nil
}

func (d Datasource) GetTransactionLogs(ctx context.Context, transactionID string) ([]model.TransactionLog, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transaction_id, stage, message, meta_data, created_at
		FROM transaction_logs
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`, transactionID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction logs", err)
	}
	defer rows.Close()

	var logs []model.TransactionLog
	for rows.Next() {
		entry := model.TransactionLog{}
		var metaDataJSON []byte
		if err := rows.Scan(&entry.TransactionID, &entry.Stage, &entry.Message, &metaDataJSON, &entry.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction log", err)
		}
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &entry.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal log metadata", err)
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
