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

const orderColumns = `order_id, transaction_id, provider_id, external_id, status, quantity, link, post_code, username, error_message, connection_error, needs_attention, created_at, updated_at, meta_data`

func (d Datasource) RecordOrder(ctx context.Context, ord *model.Order) (*model.Order, error) {
	metaDataJSON, err := json.Marshal(ord.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal order metadata", err)
	}

	now := time.Now()
	if ord.CreatedAt.IsZero() {
		ord.CreatedAt = now
	}
	ord.UpdatedAt = now

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO orders(order_id,transaction_id,provider_id,external_id,status,quantity,link,post_code,username,error_message,connection_error,needs_attention,created_at,updated_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		ord.OrderID, ord.TransactionID, ord.ProviderID, ord.ExternalID, ord.Status, ord.Quantity, ord.Link, ord.PostCode, ord.Username, ord.ErrorMessage, ord.ConnectionError, ord.NeedsAttention, ord.CreatedAt, ord.UpdatedAt, metaDataJSON,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record order", err)
	}
	return ord, nil
}

func scanOrder(row interface{ Scan(...interface{}) error }) (*model.Order, error) {
	ord := &model.Order{}
	var metaDataJSON []byte
	var externalID, errorMessage sql.NullString
	err := row.Scan(&ord.OrderID, &ord.TransactionID, &ord.ProviderID, &externalID, &ord.Status, &ord.Quantity, &ord.Link, &ord.PostCode, &ord.Username, &errorMessage, &ord.ConnectionError, &ord.NeedsAttention, &ord.CreatedAt, &ord.UpdatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	ord.ExternalID = externalID.String
	ord.ErrorMessage = errorMessage.String
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &ord.MetaData); err != nil {
			return nil, err
		}
	}
	return ord, nil
}

func (d Datasource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID)

	ord, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}
	return ord, nil
}

func (d Datasource) GetOrdersByTransaction(ctx context.Context, transactionID string) ([]model.Order, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`, transactionID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve orders", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order", err)
		}
		orders = append(orders, *ord)
	}
	return orders, rows.Err()
}

// DuplicateOrderExists is the storage-level duplicate check that catches
// cross-process races the in-memory guards cannot. The canonical key is
// matched against both the stored link and the stored post code, since
// either may have been the identity channel when the row was written.
func (d Datasource) DuplicateOrderExists(ctx context.Context, transactionID, canonicalKey string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE transaction_id = $1 AND (link = $2 OR post_code = $2) AND status != $3
		)
	`, transactionID, canonicalKey, model.OrderFailed).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check duplicate orders", err)
	}
	return exists, nil
}

func (d Datasource) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE order_id = $1
	`, orderID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), nil)
	}
	return nil
}

// UpdateOrderAfterDispatch rewrites the mutable dispatch outcome fields:
// status, external id, error state and metadata.
func (d Datasource) UpdateOrderAfterDispatch(ctx context.Context, ord *model.Order) error {
	metaDataJSON, err := json.Marshal(ord.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal order metadata", err)
	}
	_, err = d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, external_id = $3, error_message = $4, connection_error = $5, needs_attention = $6, quantity = $7, link = $8, meta_data = $9, updated_at = NOW()
		WHERE order_id = $1
	`, ord.OrderID, ord.Status, ord.ExternalID, ord.ErrorMessage, ord.ConnectionError, ord.NeedsAttention, ord.Quantity, ord.Link, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order", err)
	}
	return nil
}

// GetPendingOrders feeds the status-refresh sweep: orders the provider
// accepted but whose terminal state is unknown.
func (d Datasource) GetPendingOrders(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN ($1, $2) AND external_id IS NOT NULL AND external_id != ''
		ORDER BY updated_at ASC
		LIMIT $3
	`, model.OrderPending, model.OrderProcessing, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending orders", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order", err)
		}
		orders = append(orders, *ord)
	}
	return orders, rows.Err()
}

func (d Datasource) ListOrders(ctx context.Context, filter ListFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.ProviderID != "" {
		query += fmt.Sprintf(" AND provider_id = $%d", idx)
		args = append(args, filter.ProviderID)
		idx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (link ILIKE $%d OR username ILIKE $%d OR external_id ILIKE $%d)", idx, idx, idx)
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
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list orders", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order", err)
		}
		orders = append(orders, *ord)
	}
	return orders, rows.Err()
}

// LastSuccessfulFollowerOrder returns when the most recent non-failed
// follower order for username was created, or the zero time when there is
// none. Backs the cross-transaction follower cool-down. Every order row
// carries the username, so the link constraint is what narrows the match to
// follower orders: only those address the profile link itself.
func (d Datasource) LastSuccessfulFollowerOrder(ctx context.Context, username, profileLink string) (time.Time, error) {
	var createdAt time.Time
	err := d.Conn.QueryRowContext(ctx, `
		SELECT created_at FROM orders
		WHERE username = $1 AND link = $2 AND status NOT IN ($3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, username, profileLink, model.OrderFailed, model.OrderCanceled).Scan(&createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check follower orders", err)
	}
	return createdAt, nil
}

func (d Datasource) RecordDuplicatePost(ctx context.Context, dup *model.DuplicatePost) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO duplicate_posts(transaction_id, kept_key, dropped_key, matched_on) VALUES ($1,$2,$3,$4)
	`, dup.TransactionID, dup.KeptKey, dup.DroppedKey, dup.MatchedOn)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record duplicate post", err)
	}
	return nil
}
