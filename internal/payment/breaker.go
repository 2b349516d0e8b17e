package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/circuitbreaker"
)

// ErrGatewayUnavailable is returned while the breaker around a gateway is open.
var ErrGatewayUnavailable = errors.New("payment gateway temporarily unavailable")

// Guarded trips a circuit breaker after repeated gateway failures so requests fail fast
// instead of waiting on a dead gateway.
type Guarded struct {
	Provider
	cb *circuitbreaker.CircuitBreaker
}

func NewGuarded(p Provider) *Guarded {
	return &Guarded{
		Provider: p,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "payment-" + string(p.Name()),
			MaxFailures: 5,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
	}
}

func (g *Guarded) CreateIntent(ctx context.Context, txn *model.PaymentTransaction) (*Intent, error) {
	var intent *Intent
	err := g.cb.Execute(func() error {
		var err error
		intent, err = g.Provider.CreateIntent(ctx, txn)
		return err
	})
	return intent, g.wrap(err)
}

func (g *Guarded) FetchStatus(ctx context.Context, externalID string) (model.TransactionStatus, error) {
	var status model.TransactionStatus
	err := g.cb.Execute(func() error {
		var err error
		status, err = g.Provider.FetchStatus(ctx, externalID)
		return err
	})
	return status, g.wrap(err)
}

func (g *Guarded) Refund(ctx context.Context, txn *model.PaymentTransaction, amount decimal.Decimal) (string, error) {
	var refundID string
	err := g.cb.Execute(func() error {
		var err error
		refundID, err = g.Provider.Refund(ctx, txn, amount)
		return err
	})
	return refundID, g.wrap(err)
}

// State is the breaker state, e.g. "closed" or "open".
func (g *Guarded) State() string {
	return g.cb.State()
}

func (g *Guarded) wrap(err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%s: %w", g.Name(), ErrGatewayUnavailable)
	}
	return err
}
