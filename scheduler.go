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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/config"
)

const sweepBatchSize = 50

// Scheduler owns the background maintenance loops: sweeping approved
// transactions that never dispatched, refreshing pending order statuses,
// and purging expired locks. Each loop is a plain ticker around a
// single-tick method, so tests invoke ticks directly instead of waiting on
// timers.
type Scheduler struct {
	engine *Boostgram
	cfg    config.SchedulerConfig
}

func NewScheduler(engine *Boostgram, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{engine: engine, cfg: cfg}
}

// Start runs all loops until ctx is canceled. Blocks.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, time.Duration(s.cfg.TransactionSweepSec)*time.Second, "transaction sweep", func(ctx context.Context) {
		if n, err := s.SweepApprovedOnce(ctx); err != nil {
			logrus.Errorf("scheduler: transaction sweep failed: %v", err)
		} else if n > 0 {
			logrus.Infof("scheduler: processed %d unhandled approved transactions", n)
		}
	})
	go s.loop(ctx, time.Duration(s.cfg.OrderRefreshSec)*time.Second, "order refresh", func(ctx context.Context) {
		if n, err := s.RefreshPendingOrdersOnce(ctx); err != nil {
			logrus.Errorf("scheduler: order refresh failed: %v", err)
		} else if n > 0 {
			logrus.Infof("scheduler: refreshed %d pending orders", n)
		}
	})
	go s.loop(ctx, time.Duration(s.cfg.LockSweepSec)*time.Second, "lock sweep", func(ctx context.Context) {
		if n, err := s.SweepLocksOnce(ctx); err != nil {
			logrus.Errorf("scheduler: lock sweep failed: %v", err)
		} else if n > 0 {
			logrus.Infof("scheduler: purged %d expired locks", n)
		}
	})
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, name string, tick func(context.Context)) {
	logrus.Infof("scheduler: %s loop started, interval %s", name, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("scheduler: %s loop stopped", name)
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// SweepApprovedOnce feeds approved-but-unprocessed transactions back into
// the processor. Lock contention and not-ready results are skipped quietly;
// the next tick will pick them up again.
func (s *Scheduler) SweepApprovedOnce(ctx context.Context) (int, error) {
	transactions, err := s.engine.datasource.GetApprovedUnprocessed(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := range transactions {
		result := s.engine.ProcessTransaction(ctx, transactions[i].TransactionID)
		if result.Success {
			processed++
			continue
		}
		if result.NeedsRetry {
			logrus.Debugf("scheduler: transaction %s not ready: %s", transactions[i].TransactionID, result.Error)
		} else {
			logrus.Warnf("scheduler: transaction %s failed terminally: %s", transactions[i].TransactionID, result.Error)
		}
	}
	return processed, nil
}

// RefreshPendingOrdersOnce reconciles the status of orders the provider
// accepted but has not finished. Per-order failures are logged and the
// sweep continues.
func (s *Scheduler) RefreshPendingOrdersOnce(ctx context.Context) (int, error) {
	orders, err := s.engine.datasource.GetPendingOrders(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for i := range orders {
		if _, err := s.engine.RecheckOrderStatus(ctx, orders[i].OrderID); err != nil {
			logrus.Warnf("scheduler: status recheck failed for order %s: %v", orders[i].OrderID, err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// SweepLocksOnce purges locks past their TTL or the hard ceiling, covering
// workers that crashed while holding one.
func (s *Scheduler) SweepLocksOnce(ctx context.Context) (int64, error) {
	return s.engine.locks.SweepExpired(ctx)
}
