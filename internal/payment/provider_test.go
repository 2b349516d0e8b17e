package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

type fakeOrders struct {
	created  map[string]interface{}
	status   string
	payments []interface{}
	err      error
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = data
	return map[string]interface{}{"id": "order_1", "status": "created"}, nil
}

func (f *fakeOrders) Fetch(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	return map[string]interface{}{"id": "order_1", "status": f.status}, nil
}

func (f *fakeOrders) Payments(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	return map[string]interface{}{"items": f.payments}, nil
}

type fakePayments struct {
	paymentID string
	amount    int
}

func (f *fakePayments) Refund(paymentID string, amount int, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.paymentID = paymentID
	f.amount = amount
	return map[string]interface{}{"id": "rfnd_1"}, nil
}

func newTxn(amount string) *model.PaymentTransaction {
	return &model.PaymentTransaction{
		Base:          model.NewBase(),
		AppointmentID: uuid.New(),
		Amount:        decimal.RequireFromString(amount),
		Currency:      "INR",
		ExternalID:    "order_1",
	}
}

func TestRazorpayCreateIntentUsesMinorUnits(t *testing.T) {
	orders := &fakeOrders{}
	rp := newRazorpay(orders, &fakePayments{})

	intent, err := rp.CreateIntent(context.Background(), newTxn("499.50"))
	require.NoError(t, err)
	assert.Equal(t, "order_1", intent.ExternalID)
	assert.Equal(t, model.TxnPending, intent.Status)
	assert.Equal(t, int64(49950), orders.created["amount"])
	assert.Equal(t, "INR", orders.created["currency"])
}

func TestRazorpayFetchStatus(t *testing.T) {
	tests := map[string]model.TransactionStatus{
		"paid":      model.TxnCompleted,
		"attempted": model.TxnProcessing,
		"created":   model.TxnPending,
	}
	for gateway, want := range tests {
		rp := newRazorpay(&fakeOrders{status: gateway}, &fakePayments{})
		got, err := rp.FetchStatus(context.Background(), "order_1")
		require.NoError(t, err)
		assert.Equal(t, want, got, gateway)
	}
}

func TestRazorpayRefundsCapturedPayment(t *testing.T) {
	orders := &fakeOrders{payments: []interface{}{
		map[string]interface{}{"id": "pay_failed", "status": "failed"},
		map[string]interface{}{"id": "pay_ok", "status": "captured"},
	}}
	pays := &fakePayments{}
	rp := newRazorpay(orders, pays)

	id, err := rp.Refund(context.Background(), newTxn("100"), decimal.RequireFromString("25.5"))
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", id)
	assert.Equal(t, "pay_ok", pays.paymentID)
	assert.Equal(t, 2550, pays.amount)
}

func TestRazorpayRefundWithoutCapture(t *testing.T) {
	rp := newRazorpay(&fakeOrders{}, &fakePayments{})
	_, err := rp.Refund(context.Background(), newTxn("100"), decimal.NewFromInt(1))
	assert.ErrorContains(t, err, "no captured payment")
}

func TestRazorpayCreateError(t *testing.T) {
	rp := newRazorpay(&fakeOrders{err: errors.New("bad key")}, &fakePayments{})
	_, err := rp.CreateIntent(context.Background(), newTxn("10"))
	assert.ErrorContains(t, err, "bad key")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(model.ProviderManual, Manual{}, Stripe{})

	p, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderManual, p.Name())

	stripe, err := reg.Get(model.ProviderStripe)
	require.NoError(t, err)
	_, err = stripe.CreateIntent(context.Background(), newTxn("1"))
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = reg.Get(model.ProviderRazorpay)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

type failingProvider struct {
	Manual
	calls int
}

func (p *failingProvider) FetchStatus(context.Context, string) (model.TransactionStatus, error) {
	p.calls++
	return "", errors.New("gateway timeout")
}

func TestGuardedOpensAfterRepeatedFailures(t *testing.T) {
	inner := &failingProvider{}
	g := NewGuarded(inner)

	for i := 0; i < 5; i++ {
		_, err := g.FetchStatus(context.Background(), "order_1")
		assert.EqualError(t, err, "gateway timeout")
	}
	assert.Equal(t, "open", g.State())

	_, err := g.FetchStatus(context.Background(), "order_1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, 5, inner.calls)
	assert.Equal(t, model.ProviderManual, g.Name())
}
