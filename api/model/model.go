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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func (p *PaymentEvent) ValidatePaymentEvent() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Status, validation.Required),
		validation.Field(&p.TransactionID, validation.By(func(value interface{}) error {
			if p.TransactionID == "" && p.PaymentID == "" {
				return errors.New("either transaction_id or payment_id is required")
			}
			return nil
		})),
	)
}

func (t *CreateTransaction) ValidateCreateTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.ServiceID, validation.Required),
		validation.Field(&t.Quantity, validation.Required, validation.Min(int64(1))),
		validation.Field(&t.ServiceKind, validation.In("", "likes", "comments", "reels", "followers", "generic")),
	)
}

func (p *CreateProvider) ValidateCreateProvider() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.APIURL, validation.Required, is.URL),
		validation.Field(&p.APIKey, validation.Required),
	)
}
