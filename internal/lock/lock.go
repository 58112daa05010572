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

// Package lock serializes concurrent processing attempts on a transaction.
// The authoritative lock is a database row (insert-if-absent on a unique
// key), because multiple process instances may run concurrently. A Redis
// SetNX entry is layered in front as a cheap fast-fail for local contention;
// it is advisory only and never a substitute for the row.
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/model"
)

// Store is the persistence contract the manager needs. Insert must be
// atomic insert-if-absent; a unique-constraint conflict reports "already
// held", not an error.
type Store interface {
	InsertLock(ctx context.Context, lock *model.DispatchLock) (bool, error)
	GetLock(ctx context.Context, key string) (*model.DispatchLock, error)
	DeleteLock(ctx context.Context, key, holder string) (bool, error)
	DeleteExpiredLocks(ctx context.Context, now time.Time, hardCeiling time.Duration) (int64, error)
}

type Manager struct {
	store       Store
	redis       redis.UniversalClient
	hardCeiling time.Duration
	now         func() time.Time
}

// NewManager builds a lock manager. redisClient may be nil; the fast path is
// simply skipped then. hardCeiling is the age past which a lock is stale no
// matter what TTL it claims.
func NewManager(store Store, redisClient redis.UniversalClient, hardCeiling time.Duration) *Manager {
	return &Manager{
		store:       store,
		redis:       redisClient,
		hardCeiling: hardCeiling,
		now:         time.Now,
	}
}

// WithClock swaps the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TryAcquire attempts to take the lock for key. It returns false when
// another holder has a live lock. A stale row never blocks acquisition: it
// is advisory-removed and the insert retried once.
func (m *Manager) TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	if m.redis != nil {
		ok, err := m.redis.SetNX(ctx, redisKey(key), holder, ttl).Result()
		if err != nil {
			logrus.Warnf("lock fast-path unavailable for %s: %v", key, err)
		} else if !ok {
			return false, nil
		}
	}

	acquired, err := m.insert(ctx, key, holder, ttl)
	if err != nil || acquired {
		if !acquired {
			m.releaseFastPath(ctx, key, holder)
		}
		return acquired, err
	}

	// The row exists. If it is stale (crashed worker), clear it and retry
	// the insert once.
	existing, err := m.store.GetLock(ctx, key)
	if err != nil {
		m.releaseFastPath(ctx, key, holder)
		return false, err
	}
	if existing == nil || existing.Stale(m.now(), m.hardCeiling) {
		if existing != nil {
			logrus.Warnf("removing stale lock %s held by %s since %s", key, existing.Holder, existing.AcquiredAt)
			if _, err := m.store.DeleteLock(ctx, key, ""); err != nil {
				m.releaseFastPath(ctx, key, holder)
				return false, err
			}
		}
		acquired, err = m.insert(ctx, key, holder, ttl)
		if err != nil || acquired {
			return acquired, err
		}
	}

	m.releaseFastPath(ctx, key, holder)
	return false, nil
}

// Release drops the lock. Only the holder's own row is deleted, mirroring
// the holder-checked unlock so a slow worker cannot release a successor's
// lock.
func (m *Manager) Release(ctx context.Context, key, holder string) error {
	m.releaseFastPath(ctx, key, holder)
	deleted, err := m.store.DeleteLock(ctx, key, holder)
	if err != nil {
		return err
	}
	if !deleted {
		logrus.Warnf("release of %s found no lock held by %s; it expired or was reclaimed", key, holder)
	}
	return nil
}

// IsLocked reports whether a live lock exists for key. A stale row is
// treated as absent and proactively deleted, best effort.
func (m *Manager) IsLocked(ctx context.Context, key string) (bool, error) {
	existing, err := m.store.GetLock(ctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if existing.Stale(m.now(), m.hardCeiling) {
		if _, err := m.store.DeleteLock(ctx, key, ""); err != nil {
			logrus.Warnf("failed to clear stale lock %s: %v", key, err)
		}
		return false, nil
	}
	return true, nil
}

// SweepExpired purges every stale lock row. Run periodically so crashed
// workers cannot wedge their transactions past the TTL.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	count, err := m.store.DeleteExpiredLocks(ctx, m.now(), m.hardCeiling)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logrus.Infof("lock sweep removed %d expired locks", count)
	}
	return count, nil
}

func (m *Manager) insert(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	now := m.now()
	return m.store.InsertLock(ctx, &model.DispatchLock{
		LockKey:    key,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	})
}

// releaseFastPath drops the Redis entry when we hold it, using the same
// check-then-delete script as a holder-guarded unlock.
func (m *Manager) releaseFastPath(ctx context.Context, key, holder string) {
	if m.redis == nil {
		return
	}
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	if err := m.redis.Eval(ctx, script, []string{redisKey(key)}, holder).Err(); err != nil && err != redis.Nil {
		logrus.Warnf("lock fast-path release failed for %s: %v", key, err)
	}
}

func redisKey(key string) string {
	return "dispatch_lock:" + key
}
