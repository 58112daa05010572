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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boostgram/boostgram/cache"
	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/database"
	"github.com/boostgram/boostgram/internal/lock"
	"github.com/boostgram/boostgram/internal/ratelimit"
	"github.com/boostgram/boostgram/internal/redisconn"
)

// Boostgram is the main struct for the order-fulfillment engine. All
// pipeline operations (payment intake, dispatch, admin commands) hang off
// it.
type Boostgram struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	cache      cache.Cache
	locks      *lock.Manager
	limiter    *ratelimit.Limiter

	// Injected for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBoostgram initializes a new engine instance with the provided
// datasource. It fetches the configuration and wires up the redis client,
// queue, cache, lock manager and provider rate limiter.
func NewBoostgram(db database.IDataSource) (*Boostgram, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redisconn.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	lockManager := lock.NewManager(db, redisClient.Client(), configuration.Dispatch.LockHardCeiling())
	limiter := ratelimit.NewLimiter(ratelimit.Policy{
		MaxRequests: configuration.RateLimit.MaxRequests,
		Interval:    configuration.RateLimit.Interval(),
		Backoff:     configuration.RateLimit.Backoff(),
	})

	newBoostgram := &Boostgram{
		datasource: db,
		redis:      redisClient.Client(),
		queue:      newQueue,
		cache:      newCache,
		locks:      lockManager,
		limiter:    limiter,
		now:        time.Now,
		sleep:      sleepContext,
	}
	return newBoostgram, nil
}

// WithClock swaps the time source and sleeper, for tests.
func (l *Boostgram) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Boostgram {
	l.now = now
	l.sleep = sleep
	l.locks.WithClock(now)
	l.limiter.WithClock(now, sleep)
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
