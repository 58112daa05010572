package model

import "time"

// DispatchLock is one row of the store-backed mutual exclusion used to
// serialize concurrent processing attempts on a transaction. Invariant: at
// most one non-expired lock exists per key.
type DispatchLock struct {
	ID         int64     `json:"-"`
	LockKey    string    `json:"lock_key"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Stale reports whether the lock no longer protects anything: past its own
// expiry, or older than the hard ceiling regardless of the stated TTL. The
// ceiling guards against crashed workers that wrote a far-future expiry.
func (l DispatchLock) Stale(now time.Time, hardCeiling time.Duration) bool {
	if now.After(l.ExpiresAt) {
		return true
	}
	return now.Sub(l.AcquiredAt) > hardCeiling
}
