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

	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/model"
)

// targetKeys groups the four independent identifier channels a target can
// be recognized by. Two targets are duplicates when ANY channel matches.
type targetKeys struct {
	id        string
	code      string
	rawLink   string
	canonical string
}

// keysFor is a variable so tests can exercise the panic fallback below.
var keysFor = func(target model.Target) targetKeys {
	return targetKeys{
		id:        target.ID,
		code:      target.ResolvedCode(),
		rawLink:   target.Link,
		canonical: target.CanonicalKey(),
	}
}

// DeduplicateTargets collapses equivalent targets for one transaction.
// First occurrence wins; later matches are dropped and recorded for audit.
// Malformed targets (no identifier at all) are skipped with a warning.
//
// If deduplication itself panics on an unexpected shape, the original list
// is returned untouched: losing dedup precision is recoverable, losing a
// paid order is not.
func (l *Boostgram) DeduplicateTargets(ctx context.Context, transactionID string, targets []model.Target) (unique []model.Target) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("dedup: panic while deduplicating transaction %s: %v; falling back to original target list", transactionID, r)
			unique = targets
		}
	}()

	seenID := make(map[string]string)
	seenCode := make(map[string]string)
	seenRaw := make(map[string]string)
	seenCanonical := make(map[string]string)

	unique = make([]model.Target, 0, len(targets))
	for _, target := range targets {
		if target.Empty() {
			logrus.Warnf("dedup: transaction %s has a target with no id, code or link; skipping", transactionID)
			continue
		}

		keys := keysFor(target)
		matchedOn, keptKey := matchSeen(keys, seenID, seenCode, seenRaw, seenCanonical)
		if matchedOn != "" {
			logrus.Infof("dedup: transaction %s target %q duplicates %q (matched on %s)", transactionID, keys.canonical, keptKey, matchedOn)
			l.recordDuplicate(ctx, transactionID, keptKey, keys.canonical, matchedOn)
			continue
		}

		rememberSeen(keys, seenID, seenCode, seenRaw, seenCanonical)
		unique = append(unique, target)
	}
	return unique
}

func matchSeen(keys targetKeys, seenID, seenCode, seenRaw, seenCanonical map[string]string) (matchedOn, keptKey string) {
	if keys.id != "" {
		if kept, ok := seenID[keys.id]; ok {
			return "id", kept
		}
	}
	if keys.code != "" {
		if kept, ok := seenCode[keys.code]; ok {
			return "code", kept
		}
	}
	if keys.rawLink != "" {
		if kept, ok := seenRaw[keys.rawLink]; ok {
			return "link", kept
		}
	}
	if keys.canonical != "" {
		if kept, ok := seenCanonical[keys.canonical]; ok {
			return "normalized_link", kept
		}
	}
	return "", ""
}

func rememberSeen(keys targetKeys, seenID, seenCode, seenRaw, seenCanonical map[string]string) {
	if keys.id != "" {
		seenID[keys.id] = keys.canonical
	}
	if keys.code != "" {
		seenCode[keys.code] = keys.canonical
	}
	if keys.rawLink != "" {
		seenRaw[keys.rawLink] = keys.canonical
	}
	if keys.canonical != "" {
		seenCanonical[keys.canonical] = keys.canonical
	}
}

// recordDuplicate persists one audit row. Best-effort: a failed write is
// logged and dropped, it never blocks dispatch.
func (l *Boostgram) recordDuplicate(ctx context.Context, transactionID, keptKey, droppedKey, matchedOn string) {
	if l.datasource == nil {
		return
	}
	err := l.datasource.RecordDuplicatePost(ctx, &model.DuplicatePost{
		TransactionID: transactionID,
		KeptKey:       keptKey,
		DroppedKey:    droppedKey,
		MatchedOn:     matchedOn,
	})
	if err != nil {
		logrus.Warnf("dedup: failed to record duplicate audit row for transaction %s: %v", transactionID, err)
	}
}
