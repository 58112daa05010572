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
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/database"
	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/model"
)

// RecheckOrderStatus re-queries the provider for an order's current state
// and reconciles the local row.
func (l *Boostgram) RecheckOrderStatus(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := l.datasource.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ExternalID == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "order was never accepted by the provider, nothing to recheck", nil)
	}

	provider, err := l.datasource.GetProvider(ctx, order.ProviderID)
	if err != nil {
		return nil, err
	}

	response, err := l.ProviderOrderStatus(ctx, provider, order.ExternalID)
	if err != nil {
		return nil, err
	}

	status := orderStatusFromProvider(response.Status)
	if status != order.Status {
		logrus.Infof("orders: order %s status %s -> %s (remains %d)", orderID, order.Status, status, response.Remains)
	}
	order.Status = status
	if order.MetaData == nil {
		order.MetaData = map[string]interface{}{}
	}
	order.MetaData["last_status_check"] = map[string]interface{}(response.Raw)

	if err := l.datasource.UpdateOrderAfterDispatch(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ResendOrder re-dispatches a previously failed order using the request
// payload recorded at first dispatch, with any operator edits to link or
// quantity already applied to the row. Prior error state is cleared.
func (l *Boostgram) ResendOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := l.datasource.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == model.OrderCompleted || order.Status == model.OrderProcessing {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "order is not in a resendable state", nil)
	}

	provider, err := l.datasource.GetProvider(ctx, order.ProviderID)
	if err != nil {
		return nil, err
	}

	serviceID := ""
	if req, ok := order.MetaData["request"].(map[string]interface{}); ok {
		if s, ok := req["service"].(string); ok {
			serviceID = s
		}
	}

	response, err := l.SubmitProviderOrder(ctx, provider, serviceID, order.Link, order.Quantity)
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
		if updateErr := l.datasource.UpdateOrderAfterDispatch(ctx, order); updateErr != nil {
			logrus.Errorf("orders: failed to persist resend failure for %s: %v", orderID, updateErr)
		}
		return order, perr
	}

	order.Status = model.OrderProcessing
	order.ExternalID = response.OrderID
	order.ErrorMessage = ""
	order.ConnectionError = false
	order.NeedsAttention = false
	if order.MetaData == nil {
		order.MetaData = map[string]interface{}{}
	}
	order.MetaData["response"] = map[string]interface{}(response.Raw)

	if err := l.datasource.UpdateOrderAfterDispatch(ctx, order); err != nil {
		return nil, err
	}
	logrus.Infof("orders: order %s resent, provider accepted as %s", orderID, response.OrderID)
	return order, nil
}

// CancelOrder marks the order canceled locally and attempts a best-effort
// provider-side cancellation. A provider refusal does not undo the local
// mark.
func (l *Boostgram) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := l.datasource.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == model.OrderCompleted {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "completed orders cannot be canceled", nil)
	}

	if order.ExternalID != "" {
		provider, err := l.datasource.GetProvider(ctx, order.ProviderID)
		if err == nil {
			if _, cancelErr := l.CancelProviderOrder(ctx, provider, order.ExternalID); cancelErr != nil {
				logrus.Warnf("orders: provider declined cancellation of %s: %v", orderID, cancelErr)
			}
		}
	}

	if err := l.datasource.UpdateOrderStatus(ctx, orderID, model.OrderCanceled); err != nil {
		return nil, err
	}
	order.Status = model.OrderCanceled
	return order, nil
}

func (l *Boostgram) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return l.datasource.GetOrder(ctx, orderID)
}

func (l *Boostgram) GetOrdersByTransaction(ctx context.Context, transactionID string) ([]model.Order, error) {
	return l.datasource.GetOrdersByTransaction(ctx, transactionID)
}

func (l *Boostgram) ListOrders(ctx context.Context, filter database.ListFilter) ([]model.Order, error) {
	return l.datasource.ListOrders(ctx, filter)
}

// orderStatusFromProvider maps the provider's free-form status strings onto
// the local status enum. Unknown strings stay processing so the refresh
// sweep keeps watching them.
func orderStatusFromProvider(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "completed", "complete":
		return model.OrderCompleted
	case "partial":
		return model.OrderPartial
	case "canceled", "cancelled", "refunded":
		return model.OrderCanceled
	case "error", "fail", "failed":
		return model.OrderFailed
	default:
		return model.OrderProcessing
	}
}
