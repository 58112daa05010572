package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/model"
)

// InsertLock attempts to take the row-level dispatch lock. The UNIQUE
// constraint on lock_key makes the insert race-safe: exactly one caller wins
// and gets true, everyone else conflicts and gets false.
func (d Datasource) InsertLock(ctx context.Context, lock *model.DispatchLock) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO dispatch_locks(lock_key, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lock_key) DO NOTHING
	`, lock.LockKey, lock.Holder, lock.AcquiredAt, lock.ExpiresAt)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert dispatch lock", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected == 1, nil
}

func (d Datasource) GetLock(ctx context.Context, key string) (*model.DispatchLock, error) {
	lock := &model.DispatchLock{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT lock_key, holder, acquired_at, expires_at
		FROM dispatch_locks
		WHERE lock_key = $1
	`, key).Scan(&lock.LockKey, &lock.Holder, &lock.AcquiredAt, &lock.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve dispatch lock", err)
	}
	return lock, nil
}

// DeleteLock releases the lock. When holder is non-empty the delete only
// matches a row still owned by that holder, so a lock stolen after expiry is
// never released by its previous owner.
func (d Datasource) DeleteLock(ctx context.Context, key, holder string) (bool, error) {
	var result sql.Result
	var err error
	if holder == "" {
		result, err = d.Conn.ExecContext(ctx, `DELETE FROM dispatch_locks WHERE lock_key = $1`, key)
	} else {
		result, err = d.Conn.ExecContext(ctx, `DELETE FROM dispatch_locks WHERE lock_key = $1 AND holder = $2`, key, holder)
	}
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete dispatch lock", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected == 1, nil
}

// DeleteExpiredLocks clears locks past their TTL or held longer than the
// hard ceiling regardless of TTL.
func (d Datasource) DeleteExpiredLocks(ctx context.Context, now time.Time, hardCeiling time.Duration) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM dispatch_locks
		WHERE expires_at < $1 OR acquired_at < $2
	`, now, now.Add(-hardCeiling))
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete expired locks", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected, nil
}
