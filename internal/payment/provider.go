// Package payment adapts external payment gateways to the transaction model.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

var ErrProviderNotConfigured = errors.New("payment provider not configured")

// Intent is what a provider returns when a payment is opened.
type Intent struct {
	ExternalID   string
	ClientSecret string
	Status       model.TransactionStatus
}

// Provider is one payment gateway.
type Provider interface {
	Name() model.PaymentProvider
	CreateIntent(ctx context.Context, txn *model.PaymentTransaction) (*Intent, error)
	// FetchStatus polls the gateway for the current state of a payment.
	FetchStatus(ctx context.Context, externalID string) (model.TransactionStatus, error)
	// Refund returns the gateway's refund id.
	Refund(ctx context.Context, txn *model.PaymentTransaction, amount decimal.Decimal) (string, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[model.PaymentProvider]Provider
	fallback  model.PaymentProvider
}

func NewRegistry(fallback model.PaymentProvider, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[model.PaymentProvider]Provider), fallback: fallback}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider, the default one when name is empty.
func (r *Registry) Get(name model.PaymentProvider) (Provider, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return p, nil
}

// minorUnits converts an amount to the smallest currency unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
