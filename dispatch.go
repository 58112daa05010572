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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/internal/linknorm"
	"github.com/boostgram/boostgram/model"
)

// ErrTransactionBusy is returned when another worker holds the dispatch
// lock. Not a failure: the caller skips or retries later.
var ErrTransactionBusy = apierror.APIError{Code: apierror.ErrConflict, Message: "transaction is already being processed"}

func transactionLockKey(transactionID string) string {
	return "txn:" + transactionID
}

// Dispatch turns one locked transaction into provider orders, one per
// unique target. Targets are submitted strictly sequentially with a fixed
// delay between them; the delay is an abuse-detection throttle and must not
// be parallelized away.
//
// Every return path that acquired the lock releases it via defer.
func (l *Boostgram) Dispatch(ctx context.Context, transaction *model.Transaction, provider *model.Provider, spec model.ServiceSpec) ([]model.OrderResult, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	// Idempotency short-circuit before touching the lock: a transaction
	// that already produced orders is terminal for the pipeline.
	existing, err := l.datasource.GetOrdersByTransaction(ctx, transaction.TransactionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logrus.Infof("dispatch: transaction %s already has %d orders, returning them", transaction.TransactionID, len(existing))
		return resultsFromOrders(existing), nil
	}

	holder := model.GenerateUUIDWithSuffix("hold")
	acquired, err := l.locks.TryAcquire(ctx, transactionLockKey(transaction.TransactionID), holder, cfg.Dispatch.TransactionLockTTL())
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrTransactionBusy
	}
	defer func() {
		if releaseErr := l.locks.Release(context.Background(), transactionLockKey(transaction.TransactionID), holder); releaseErr != nil {
			logrus.Errorf("dispatch: failed to release lock for transaction %s: %v", transaction.TransactionID, releaseErr)
		}
	}()

	// Re-check after acquiring: another worker may have dispatched in the
	// window between the first check and lock acquisition.
	existing, err = l.datasource.GetOrdersByTransaction(ctx, transaction.TransactionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logrus.Infof("dispatch: transaction %s was dispatched while waiting for the lock", transaction.TransactionID)
		return resultsFromOrders(existing), nil
	}

	targets := l.DeduplicateTargets(ctx, transaction.TransactionID, spec.Targets)
	if len(targets) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "no valid target for transaction", nil)
	}

	if len(targets) > cfg.Dispatch.MaxTargets {
		logrus.Warnf("dispatch: transaction %s has %d targets, truncating to %d", transaction.TransactionID, len(targets), cfg.Dispatch.MaxTargets)
		l.logStage(ctx, transaction.TransactionID, "dispatch", fmt.Sprintf("target list truncated from %d to %d", len(targets), cfg.Dispatch.MaxTargets), nil)
		targets = targets[:cfg.Dispatch.MaxTargets]
	}

	quantities := model.SplitQuantity(spec.Quantity, len(targets))

	results := make([]model.OrderResult, 0, len(targets))
	dispatchedKeys := make(map[string]bool)
	attempted := 0

	for i, target := range targets {
		key := target.CanonicalKey()

		// Batch-local guard on top of the dedup pass.
		if dispatchedKeys[key] {
			results = append(results, model.OrderResult{Skipped: true, Error: fmt.Sprintf("target %s already dispatched in this batch", key)})
			continue
		}

		// Storage-level guard, catches cross-process races.
		duplicate, err := l.datasource.DuplicateOrderExists(ctx, transaction.TransactionID, key)
		if err != nil {
			results = append(results, model.OrderResult{Error: err.Error()})
			continue
		}
		if duplicate {
			logrus.Warnf("dispatch: transaction %s already has a stored order for %s, skipping", transaction.TransactionID, key)
			results = append(results, model.OrderResult{Skipped: true, Error: fmt.Sprintf("order already exists for target %s", key)})
			continue
		}

		dispatchedKeys[key] = true
		attempted++

		result := l.dispatchTarget(ctx, transaction, provider, spec, target, quantities[i])
		results = append(results, result)

		if i < len(targets)-1 {
			if err := l.sleep(ctx, cfg.Dispatch.InterTargetDelay()); err != nil {
				logrus.Errorf("dispatch: interrupted between targets for transaction %s: %v", transaction.TransactionID, err)
				return results, err
			}
		}
	}

	if attempted > 0 {
		if err := l.datasource.MarkOrderCreated(ctx, transaction.TransactionID); err != nil {
			return results, err
		}
		if spec.Kind == model.ServiceFollowers {
			l.markFollowerDispatched(ctx, transaction.Username)
		}
	}

	return results, nil
}

// dispatchTarget submits a single target to the provider and persists the
// resulting order row. A provider failure is recorded on the order and
// reported in the result; it never propagates as an error so sibling
// targets still run.
func (l *Boostgram) dispatchTarget(ctx context.Context, transaction *model.Transaction, provider *model.Provider, spec model.ServiceSpec, target model.Target, quantity int64) model.OrderResult {
	link := providerLink(spec.Kind, target, transaction.Username)
	if link == "" {
		return model.OrderResult{Error: fmt.Sprintf("target %s has no dispatchable link", target.CanonicalKey())}
	}
	if target.Quantity > 0 {
		quantity = target.Quantity
	}

	requestMeta := map[string]interface{}{
		"action":   providerActionAdd,
		"service":  transaction.ServiceID,
		"link":     link,
		"quantity": quantity,
	}

	order := &model.Order{
		OrderID:       model.GenerateUUIDWithSuffix("ord"),
		TransactionID: transaction.TransactionID,
		ProviderID:    provider.ProviderID,
		Status:        model.OrderPending,
		Quantity:      quantity,
		Link:          link,
		PostCode:      target.ResolvedCode(),
		Username:      transaction.Username,
		MetaData:      map[string]interface{}{"request": requestMeta},
	}

	response, err := l.SubmitProviderOrder(ctx, provider, transaction.ServiceID, link, quantity)
	if err != nil {
		var perr *model.ProviderError
		if !errors.As(err, &perr) {
			perr = model.NewConnectionError(err)
		}
		order.ErrorMessage = perr.Message
		order.ConnectionError = perr.ConnectionError
		if perr.Retryable() {
			order.Status = model.OrderNeedsRetry
		} else {
			order.Status = model.OrderFailed
			order.NeedsAttention = true
		}
		if perr.IsBalanceError() {
			order.MetaData["guidance"] = "provider balance exhausted, top up the provider account and resend"
		}
		if _, recordErr := l.datasource.RecordOrder(ctx, order); recordErr != nil {
			logrus.Errorf("dispatch: failed to record failed order for transaction %s: %v", transaction.TransactionID, recordErr)
		}
		logrus.Warnf("dispatch: provider call failed for transaction %s target %s: %v", transaction.TransactionID, link, perr)
		return model.OrderResult{Order: order, Error: perr.Message}
	}

	order.Status = model.OrderProcessing
	order.ExternalID = response.OrderID
	order.MetaData["response"] = map[string]interface{}(response.Raw)

	if _, err := l.datasource.RecordOrder(ctx, order); err != nil {
		logrus.Errorf("dispatch: provider accepted but order row failed for transaction %s: %v", transaction.TransactionID, err)
		return model.OrderResult{Order: order, ProviderResponse: response.Raw, Error: err.Error()}
	}

	logrus.Infof("dispatch: transaction %s target %s accepted by provider %s as %s", transaction.TransactionID, link, provider.Name, response.OrderID)
	return model.OrderResult{Success: true, Order: order, ProviderResponse: response.Raw}
}

// providerLink renders the provider-facing link for a target. Followers
// address a profile; everything else addresses a post or reel.
func providerLink(kind model.ServiceKind, target model.Target, username string) string {
	if kind == model.ServiceFollowers {
		if username != "" {
			return linknorm.ProfileLink(username)
		}
		return target.Link
	}

	code := target.ResolvedCode()
	if code == "" {
		return ""
	}
	if kind == model.ServiceReels {
		return linknorm.ReelLink(code)
	}
	if target.Link != "" {
		return linknorm.Normalize(target.Link)
	}
	return linknorm.PostLink(code)
}

func resultsFromOrders(orders []model.Order) []model.OrderResult {
	results := make([]model.OrderResult, 0, len(orders))
	for i := range orders {
		ord := orders[i]
		results = append(results, model.OrderResult{
			Success: ord.Status != model.OrderFailed,
			Order:   &ord,
			Error:   ord.ErrorMessage,
		})
	}
	return results
}
