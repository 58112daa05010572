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

	"github.com/boostgram/boostgram/database"
	"github.com/boostgram/boostgram/internal/linknorm"
	"github.com/boostgram/boostgram/internal/notification"
	"github.com/boostgram/boostgram/model"
)

// ProcessTransaction runs the full per-transaction workflow: state gate,
// duplicate-payment short-circuit, service resolution, provider resolution,
// follower cool-down, then dispatch. It always returns a terminal
// ProcessResult; errors from individual steps are folded in rather than
// propagated, so a scheduler can decide on retry from NeedsRetry alone.
func (l *Boostgram) ProcessTransaction(ctx context.Context, transactionID string) *model.ProcessResult {
	transaction, err := l.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		return &model.ProcessResult{Error: err.Error()}
	}

	// State gate: only approved transactions dispatch. Pending may become
	// approved later; the other payment states are terminal.
	switch transaction.Status {
	case model.PaymentApproved:
	case model.PaymentPending:
		l.logStage(ctx, transactionID, "gate", "payment still pending, will retry", nil)
		return &model.ProcessResult{Error: "payment not approved yet", NeedsRetry: true}
	default:
		l.logStage(ctx, transactionID, "gate", fmt.Sprintf("payment in terminal state %q, not dispatching", transaction.Status), nil)
		return &model.ProcessResult{Error: fmt.Sprintf("transaction is %s, not approved", transaction.Status)}
	}

	// Idempotency boundary: once orders were materialized the transaction
	// is terminal for the pipeline.
	if transaction.OrderCreated {
		orders, err := l.datasource.GetOrdersByTransaction(ctx, transactionID)
		if err != nil {
			return &model.ProcessResult{Error: err.Error(), NeedsRetry: true}
		}
		logrus.Infof("processor: transaction %s already processed, returning %d existing orders", transactionID, len(orders))
		return &model.ProcessResult{Success: true, Orders: resultsFromOrders(orders)}
	}

	// Duplicate payment confirmation: another transaction already produced
	// orders for the same underlying payment.
	if transaction.PaymentID != "" {
		originalID, err := l.datasource.OrderCreatedForPayment(ctx, transaction.PaymentID, transactionID)
		if err != nil {
			return &model.ProcessResult{Error: err.Error(), NeedsRetry: true}
		}
		if originalID != "" {
			l.logStage(ctx, transactionID, "gate", fmt.Sprintf("payment %s already fulfilled by transaction %s, marking duplicate", transaction.PaymentID, originalID), nil)
			if err := l.datasource.MarkTransactionDuplicate(ctx, transactionID, originalID); err != nil {
				return &model.ProcessResult{Error: err.Error(), NeedsRetry: true}
			}
			return &model.ProcessResult{Success: true}
		}
	}

	spec, mismatch := model.ResolveServiceSpec(transaction)
	if mismatch {
		logrus.Warnf("processor: transaction %s metadata service kind disagrees with stored column, metadata wins", transactionID)
		l.logStage(ctx, transactionID, "resolve", "metadata service kind overrides stored column", map[string]interface{}{"column": string(transaction.ServiceKind)})
	}
	l.logStage(ctx, transactionID, "resolve", fmt.Sprintf("resolved service kind %s with %d targets, quantity %d", spec.Kind, len(spec.Targets), spec.Quantity), nil)

	if result := l.validateSpec(ctx, transaction, &spec); result != nil {
		return result
	}

	provider, err := l.resolveProvider(ctx, transaction)
	if err != nil {
		// No resolvable provider needs operator intervention, not a retry.
		l.logStage(ctx, transactionID, "resolve", fmt.Sprintf("provider resolution failed: %v", err), nil)
		notification.NotifyError(fmt.Errorf("transaction %s: provider resolution failed: %w", transactionID, err))
		return &model.ProcessResult{Error: err.Error()}
	}

	if spec.Kind == model.ServiceFollowers {
		if err := l.checkFollowerCooldown(ctx, transactionID, transaction.Username); err != nil {
			return &model.ProcessResult{Error: err.Error()}
		}
	}

	results, err := l.Dispatch(ctx, transaction, provider, spec)
	if err != nil {
		if errors.Is(err, ErrTransactionBusy) {
			logrus.Infof("processor: transaction %s is locked by another worker, skipping", transactionID)
			return &model.ProcessResult{Error: err.Error(), NeedsRetry: true}
		}
		l.logStage(ctx, transactionID, "dispatch", fmt.Sprintf("dispatch failed: %v", err), nil)
		notification.NotifyError(fmt.Errorf("transaction %s: dispatch failed: %w", transactionID, err))
		return &model.ProcessResult{Orders: results, Error: err.Error(), NeedsRetry: true}
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	l.logStage(ctx, transactionID, "dispatch", fmt.Sprintf("dispatched %d targets, %d succeeded", len(results), succeeded), nil)

	return &model.ProcessResult{Success: true, Orders: results}
}

// validateSpec rejects transactions that can never dispatch without data
// correction. For post-scoped services, profile links are never silently
// used as targets: they are dropped here and the explicit post list (if
// any) remains.
func (l *Boostgram) validateSpec(ctx context.Context, transaction *model.Transaction, spec *model.ServiceSpec) *model.ProcessResult {
	if transaction.ServiceID == "" {
		l.logStage(ctx, transaction.TransactionID, "validate", "transaction has no service id", nil)
		return &model.ProcessResult{Error: "transaction has no service id"}
	}

	if spec.Kind == model.ServiceFollowers {
		if transaction.Username == "" {
			l.logStage(ctx, transaction.TransactionID, "validate", "follower transaction has no username", nil)
			return &model.ProcessResult{Error: "follower transaction has no username"}
		}
		spec.Targets = []model.Target{{Link: linknorm.ProfileLink(transaction.Username)}}
		return nil
	}

	kept := spec.Targets[:0]
	for _, target := range spec.Targets {
		if target.Code == "" && target.ID == "" && linknorm.IsProfileLink(target.Link) {
			logrus.Warnf("processor: transaction %s target %q is a profile link, not a post; dropping", transaction.TransactionID, target.Link)
			l.logStage(ctx, transaction.TransactionID, "validate", fmt.Sprintf("dropped profile link %q, not a valid post target", target.Link), nil)
			continue
		}
		kept = append(kept, target)
	}
	spec.Targets = kept

	if len(spec.Targets) == 0 {
		l.logStage(ctx, transaction.TransactionID, "validate", "no valid target after profile-link filtering", nil)
		return &model.ProcessResult{Error: "no valid target for transaction"}
	}
	return nil
}

// resolveProvider picks the provider for a transaction: an explicit
// metadata override first, otherwise the configured default.
func (l *Boostgram) resolveProvider(ctx context.Context, transaction *model.Transaction) (*model.Provider, error) {
	if id, ok := transaction.MetaData["provider_id"].(string); ok && id != "" {
		return l.datasource.GetProvider(ctx, id)
	}
	return l.datasource.GetDefaultProvider(ctx)
}

// RecordTransaction stores a checkout before its payment confirms. The
// service kind column is filled from the name shim when the caller did not
// set it, so steady-state rows never need name matching again.
func (l *Boostgram) RecordTransaction(ctx context.Context, transaction *model.Transaction) (*model.Transaction, error) {
	transaction.TransactionID = model.GenerateUUIDWithSuffix("txn")
	if transaction.Status == "" {
		transaction.Status = model.PaymentPending
	}
	if transaction.ServiceKind == "" {
		transaction.ServiceKind = model.ServiceKindFromName(transaction.ServiceName)
	}
	return l.datasource.RecordTransaction(ctx, transaction)
}

func (l *Boostgram) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return l.datasource.GetTransaction(ctx, id)
}

func (l *Boostgram) ListTransactions(ctx context.Context, filter database.ListFilter) ([]model.Transaction, error) {
	return l.datasource.ListTransactions(ctx, filter)
}

func (l *Boostgram) GetTransactionLogs(ctx context.Context, transactionID string) ([]model.TransactionLog, error) {
	return l.datasource.GetTransactionLogs(ctx, transactionID)
}

// logStage appends one audit entry. The log is the primary debugging
// surface for a pipeline that spans hours, so failures to write it are
// themselves logged but never fail the caller.
func (l *Boostgram) logStage(ctx context.Context, transactionID, stage, message string, metaData map[string]interface{}) {
	if l.datasource == nil {
		return
	}
	err := l.datasource.LogTransactionEvent(ctx, &model.TransactionLog{
		TransactionID: transactionID,
		Stage:         stage,
		Message:       message,
		MetaData:      metaData,
	})
	if err != nil {
		logrus.Warnf("processor: failed to append transaction log for %s (%s): %v", transactionID, stage, err)
	}
}
