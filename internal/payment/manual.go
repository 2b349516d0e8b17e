package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

// Manual records payments settled outside any gateway (cash at the clinic, bank
// transfer). Intents stay pending until an admin sets the status.
type Manual struct{}

func (Manual) Name() model.PaymentProvider { return model.ProviderManual }

func (Manual) CreateIntent(_ context.Context, _ *model.PaymentTransaction) (*Intent, error) {
	return &Intent{
		ExternalID: "manual_" + uuid.NewString(),
		Status:     model.TxnPending,
	}, nil
}

// FetchStatus has nothing to poll. Callers keep the stored status.
func (Manual) FetchStatus(_ context.Context, _ string) (model.TransactionStatus, error) {
	return "", nil
}

func (Manual) Refund(_ context.Context, _ *model.PaymentTransaction, _ decimal.Decimal) (string, error) {
	return "manual_refund_" + uuid.NewString(), nil
}
