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

	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/model"
)

// EnqueuePaymentEvent validates and queues an external payment
// confirmation. Payloads arrive already verified by the gateway layer;
// signature checking is not this system's job.
func (l *Boostgram) EnqueuePaymentEvent(ctx context.Context, event *PaymentEventPayload) error {
	if event.TransactionID == "" && event.PaymentID == "" {
		return apierror.NewAPIError(apierror.ErrBadRequest, "payment event carries neither transaction id nor payment id", nil)
	}
	if event.Status == "" {
		return apierror.NewAPIError(apierror.ErrBadRequest, "payment event has no status", nil)
	}
	return l.queue.Enqueue(ctx, event)
}

// ProcessPaymentEvent is the worker-side handler for a queued payment
// event. Approved payments flow into the processor; rejections only update
// the stored status. A returned error means the queue should retry.
func (l *Boostgram) ProcessPaymentEvent(ctx context.Context, event *PaymentEventPayload) error {
	transaction, err := l.resolveEventTransaction(ctx, event)
	if err != nil {
		return err
	}

	switch normalizePaymentStatus(event.Status) {
	case model.PaymentApproved:
		if transaction.Status != model.PaymentApproved {
			if err := l.datasource.UpdateTransactionStatus(ctx, transaction.TransactionID, model.PaymentApproved); err != nil {
				return err
			}
			l.logStage(ctx, transaction.TransactionID, "intake", "payment approved", nil)
		}
		result := l.ProcessTransaction(ctx, transaction.TransactionID)
		if !result.Success && result.NeedsRetry {
			return fmt.Errorf("transaction %s not ready: %s", transaction.TransactionID, result.Error)
		}
		if !result.Success {
			// Terminal failure: log it, but do not bounce the task forever.
			logrus.Errorf("intake: transaction %s failed terminally: %s", transaction.TransactionID, result.Error)
		}
		return nil
	case model.PaymentRejected, model.PaymentCancelled, model.PaymentRefunded, model.PaymentChargeback:
		status := normalizePaymentStatus(event.Status)
		if err := l.datasource.UpdateTransactionStatus(ctx, transaction.TransactionID, status); err != nil {
			return err
		}
		l.logStage(ctx, transaction.TransactionID, "intake", fmt.Sprintf("payment %s, no dispatch", status), nil)
		return nil
	default:
		logrus.Infof("intake: ignoring payment event with status %q for transaction %s", event.Status, transaction.TransactionID)
		return nil
	}
}

func (l *Boostgram) resolveEventTransaction(ctx context.Context, event *PaymentEventPayload) (*model.Transaction, error) {
	if event.TransactionID != "" {
		return l.datasource.GetTransaction(ctx, event.TransactionID)
	}
	return l.datasource.GetTransactionByPaymentID(ctx, event.PaymentID)
}

// normalizePaymentStatus folds gateway status vocabulary onto the local
// enum. Gateways say "completed" where the pipeline says "approved".
func normalizePaymentStatus(status string) string {
	switch status {
	case "approved", "completed", "paid":
		return model.PaymentApproved
	case "rejected", "declined":
		return model.PaymentRejected
	case "cancelled", "canceled":
		return model.PaymentCancelled
	case "refunded":
		return model.PaymentRefunded
	case "chargeback", "charged_back":
		return model.PaymentChargeback
	default:
		return status
	}
}
