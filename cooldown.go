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

	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/internal/linknorm"
)

func followerCooldownKey(username string) string {
	return "cooldown:followers:" + username
}

// checkFollowerCooldown enforces the tiered cool-down between follower
// campaigns on the same profile. Inside the hard-block window the
// transaction is refused; inside the warn window it proceeds with a logged
// warning. The authoritative source is the order store; the cache entry is
// only a fast path, since other process instances may have dispatched.
func (l *Boostgram) checkFollowerCooldown(ctx context.Context, transactionID, username string) error {
	if username == "" {
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	last := l.cachedFollowerDispatch(ctx, username)
	if last.IsZero() {
		last, err = l.datasource.LastSuccessfulFollowerOrder(ctx, username, linknorm.ProfileLink(username))
		if err != nil {
			return err
		}
	}
	if last.IsZero() {
		return nil
	}

	elapsed := l.now().Sub(last)
	if elapsed < cfg.Cooldown.HardBlock() {
		msg := fmt.Sprintf("follower order for @%s blocked: previous campaign %s ago, cool-down is %s", username, elapsed.Round(time.Second), cfg.Cooldown.HardBlock())
		l.logStage(ctx, transactionID, "cooldown", msg, map[string]interface{}{"username": username})
		return apierror.NewAPIError(apierror.ErrConflict, msg, nil)
	}
	if elapsed < cfg.Cooldown.Warn() {
		logrus.Warnf("cooldown: follower order for @%s within warn window (previous campaign %s ago)", username, elapsed.Round(time.Second))
		l.logStage(ctx, transactionID, "cooldown", fmt.Sprintf("follower order for @%s within %s warn window, proceeding", username, cfg.Cooldown.Warn()), map[string]interface{}{"username": username})
	}
	return nil
}

// markFollowerDispatched records the dispatch time in the cache so the next
// check in this window skips the store query. TTL matches the warn window.
func (l *Boostgram) markFollowerDispatched(ctx context.Context, username string) {
	if l.cache == nil || username == "" {
		return
	}
	cfg, err := config.Fetch()
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, followerCooldownKey(username), l.now().Format(time.RFC3339), cfg.Cooldown.Warn()); err != nil {
		logrus.Warnf("cooldown: failed to cache follower dispatch for @%s: %v", username, err)
	}
}

func (l *Boostgram) cachedFollowerDispatch(ctx context.Context, username string) time.Time {
	if l.cache == nil {
		return time.Time{}
	}
	var stamp string
	if err := l.cache.Get(ctx, followerCooldownKey(username), &stamp); err != nil || stamp == "" {
		return time.Time{}
	}
	last, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}
	}
	return last
}
