package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

// Stripe is accepted as a provider name but no gateway is wired, so every call
// fails with ErrProviderNotConfigured.
type Stripe struct{}

func (Stripe) Name() model.PaymentProvider { return model.ProviderStripe }

func (Stripe) CreateIntent(context.Context, *model.PaymentTransaction) (*Intent, error) {
	return nil, ErrProviderNotConfigured
}

func (Stripe) FetchStatus(context.Context, string) (model.TransactionStatus, error) {
	return "", ErrProviderNotConfigured
}

func (Stripe) Refund(context.Context, *model.PaymentTransaction, decimal.Decimal) (string, error) {
	return "", ErrProviderNotConfigured
}
