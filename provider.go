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
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/boostgram/boostgram/internal/ratelimit"
	"github.com/boostgram/boostgram/internal/request"
	"github.com/boostgram/boostgram/model"
)

const (
	providerActionAdd     = "add"
	providerActionStatus  = "status"
	providerActionCancel  = "cancel"
	providerActionBalance = "balance"
)

const maxProviderRetries = 3

func providerBucket(provider *model.Provider) string {
	return "provider:" + provider.ProviderID
}

// SubmitProviderOrder sends one add-order request and returns the
// normalized response. Calls are rate limited per provider and transient
// connection failures are retried with exponential backoff.
func (l *Boostgram) SubmitProviderOrder(ctx context.Context, provider *model.Provider, serviceID, link string, quantity int64) (*model.ProviderResponse, error) {
	return l.callProvider(ctx, provider, model.ProviderRequest{
		Action:   providerActionAdd,
		Service:  serviceID,
		Link:     link,
		Quantity: quantity,
	})
}

// ProviderOrderStatus queries the provider for the current state of an
// already-submitted order.
func (l *Boostgram) ProviderOrderStatus(ctx context.Context, provider *model.Provider, externalID string) (*model.ProviderResponse, error) {
	return l.callProvider(ctx, provider, model.ProviderRequest{
		Action: providerActionStatus,
		Order:  externalID,
	})
}

// CancelProviderOrder asks the provider to cancel an order. Not every
// provider honors it, so callers treat failures as best-effort.
func (l *Boostgram) CancelProviderOrder(ctx context.Context, provider *model.Provider, externalID string) (*model.ProviderResponse, error) {
	return l.callProvider(ctx, provider, model.ProviderRequest{
		Action: providerActionCancel,
		Order:  externalID,
	})
}

// ProviderBalance fetches the remaining account balance at the provider.
func (l *Boostgram) ProviderBalance(ctx context.Context, provider *model.Provider) (*model.ProviderResponse, error) {
	return l.callProvider(ctx, provider, model.ProviderRequest{
		Action: providerActionBalance,
	})
}

// CreateProvider registers a new SMM vendor.
func (l *Boostgram) CreateProvider(ctx context.Context, provider *model.Provider) (*model.Provider, error) {
	provider.ProviderID = model.GenerateUUIDWithSuffix("prov")
	return l.datasource.CreateProvider(ctx, provider)
}

func (l *Boostgram) GetProvider(ctx context.Context, providerID string) (*model.Provider, error) {
	return l.datasource.GetProvider(ctx, providerID)
}

func (l *Boostgram) GetAllProviders(ctx context.Context) ([]model.Provider, error) {
	return l.datasource.GetAllProviders(ctx)
}

// callProvider is the single funnel every provider call goes through:
// rate-limiter acquisition, bounded retry on connection errors, and
// normalization of both failure shapes (HTTP error vs `error` payload
// field) into model.ProviderError.
func (l *Boostgram) callProvider(ctx context.Context, provider *model.Provider, payload model.ProviderRequest) (*model.ProviderResponse, error) {
	payload.Key = provider.APIKey

	var response *model.ProviderResponse
	operation := func() error {
		r, err := l.doProviderCall(ctx, provider, payload)
		if err != nil {
			if ratelimit.IsRateLimited(err) {
				// Let the limiter's own backoff handle quota errors.
				return backoff.Permanent(err)
			}
			var perr *model.ProviderError
			if errors.As(err, &perr) && !perr.Retryable() {
				return backoff.Permanent(err)
			}
			logrus.Warnf("provider %s: transient failure on %s, will retry: %v", provider.Name, payload.Action, err)
			return err
		}
		response = r
		return nil
	}

	err := l.limiter.Execute(ctx, providerBucket(provider), func() error {
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxProviderRetries), ctx)
		return backoff.Retry(operation, bo)
	})
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		var perr *model.ProviderError
		if !errors.As(err, &perr) {
			perr = model.NewConnectionError(err)
		}
		return nil, perr
	}
	return response, nil
}

func (l *Boostgram) doProviderCall(ctx context.Context, provider *model.Provider, payload model.ProviderRequest) (*model.ProviderResponse, error) {
	var raw model.RawJSON
	var resp *http.Response
	var err error

	if provider.LegacyAPI {
		form := url.Values{}
		form.Set("key", payload.Key)
		form.Set("action", payload.Action)
		if payload.Service != "" {
			form.Set("service", payload.Service)
		}
		if payload.Link != "" {
			form.Set("link", payload.Link)
		}
		if payload.Quantity > 0 {
			form.Set("quantity", strconv.FormatInt(payload.Quantity, 10))
		}
		if payload.Order != "" {
			form.Set("order", payload.Order)
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, provider.APIURL, strings.NewReader(form.Encode()))
		if reqErr != nil {
			return nil, model.NewConnectionError(reqErr)
		}
		resp, err = request.CallForm(req, &raw)
	} else {
		body, reqErr := request.ToJsonReq(&payload)
		if reqErr != nil {
			return nil, model.NewConnectionError(reqErr)
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, provider.APIURL, body)
		if reqErr != nil {
			return nil, model.NewConnectionError(reqErr)
		}
		resp, err = request.Call(req, &raw)
	}

	if err != nil {
		return nil, model.NewConnectionError(err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("provider %s returned 429 too many requests", provider.Name)
	}
	if resp.StatusCode >= 500 {
		return nil, model.NewConnectionError(fmt.Errorf("provider %s returned status %d", provider.Name, resp.StatusCode))
	}

	normalized := responseFromRaw(raw)
	if normalized.Error != "" {
		return nil, model.NewBusinessError(normalized.Error)
	}
	if resp.StatusCode >= 400 {
		return nil, model.NewBusinessError(fmt.Sprintf("provider %s returned status %d", provider.Name, resp.StatusCode))
	}
	return normalized, nil
}

// responseFromRaw maps the loosely-typed provider payload onto the
// normalized response. Field types vary between providers (numbers arrive
// as strings and vice versa), so every field goes through a coercing
// accessor.
func responseFromRaw(raw model.RawJSON) *model.ProviderResponse {
	return &model.ProviderResponse{
		OrderID: rawString(raw, "order"),
		Status:  rawString(raw, "status"),
		Remains: rawInt64(raw, "remains"),
		Charge:  rawString(raw, "charge"),
		Balance: rawString(raw, "balance"),
		Error:   rawString(raw, "error"),
		Raw:     raw,
	}
}

func rawString(raw model.RawJSON, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func rawInt64(raw model.RawJSON, key string) int64 {
	switch v := raw[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
