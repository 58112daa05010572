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

// Package ratelimit throttles outbound provider calls per bucket with a
// sliding-window grant log. State is in-memory only: rate limiting here is
// advisory and resets naturally on restart; duplicate submission is
// prevented upstream by locks and dedup, not by this package.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy is the per-bucket quota: at most MaxRequests grants per sliding
// Interval, and a floor of Backoff on any computed wait.
type Policy struct {
	MaxRequests int
	Interval    time.Duration
	Backoff     time.Duration
}

type Limiter struct {
	mu       sync.Mutex
	fallback Policy
	policies map[string]Policy
	grants   map[string][]time.Time

	// Injected for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLimiter(fallback Policy) *Limiter {
	return &Limiter{
		fallback: fallback,
		policies: make(map[string]Policy),
		grants:   make(map[string][]time.Time),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// SetPolicy overrides the quota for one bucket.
func (l *Limiter) SetPolicy(bucket string, p Policy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[bucket] = p
}

// WithClock swaps the time source and sleeper, for tests.
func (l *Limiter) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Limiter {
	l.now = now
	l.sleep = sleep
	return l
}

// Acquire blocks until the caller may issue one request under the bucket's
// policy. Implemented as an explicit loop: reserve a slot or compute the
// wait until the oldest grant falls out of the window, sleep, try again.
func (l *Limiter) Acquire(ctx context.Context, bucket string) error {
	for {
		wait := l.reserve(bucket)
		if wait <= 0 {
			return nil
		}
		logrus.Debugf("rate limiter: bucket %s saturated, waiting %s", bucket, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Execute wraps fn with Acquire and retries it when the downstream call
// signals a rate-limit rejection, sleeping twice the bucket backoff between
// attempts. The retry is unbounded on purpose: the external quota will
// reset, and the caller's context bounds the total wait.
func (l *Limiter) Execute(ctx context.Context, bucket string, fn func() error) error {
	for {
		if err := l.Acquire(ctx, bucket); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) {
			return err
		}
		policy := l.policy(bucket)
		logrus.Warnf("rate limiter: bucket %s got rate-limited downstream, backing off %s", bucket, 2*policy.Backoff)
		if serr := l.sleep(ctx, 2*policy.Backoff); serr != nil {
			return serr
		}
	}
}

// reserve either records a grant (returning 0) or returns how long to wait
// before retrying.
func (l *Limiter) reserve(bucket string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy := l.policyLocked(bucket)
	now := l.now()
	cutoff := now.Add(-policy.Interval)

	log := l.grants[bucket]
	kept := log[:0]
	for _, t := range log {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.grants[bucket] = kept

	if len(kept) < policy.MaxRequests {
		l.grants[bucket] = append(kept, now)
		return 0
	}

	wait := kept[0].Add(policy.Interval).Sub(now)
	if wait < policy.Backoff {
		wait = policy.Backoff
	}
	return wait
}

func (l *Limiter) policy(bucket string) Policy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.policyLocked(bucket)
}

func (l *Limiter) policyLocked(bucket string) Policy {
	if p, ok := l.policies[bucket]; ok {
		return p
	}
	return l.fallback
}

// IsRateLimited classifies an error as a downstream quota rejection.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
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
