package payment

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/circuitbreaker"
)

// orderAPI and paymentAPI are the razorpay resources used here.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay opens orders and issues refunds against captured payments.
type Razorpay struct {
	orders   orderAPI
	payments paymentAPI
	cb       *circuitbreaker.CircuitBreaker
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return newRazorpay(client.Order, client.Payment)
}

func newRazorpay(orders orderAPI, payments paymentAPI) *Razorpay {
	return &Razorpay{
		orders:   orders,
		payments: payments,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "razorpay",
			MaxFailures: 5,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
	}
}

func (r *Razorpay) Name() model.PaymentProvider { return model.ProviderRazorpay }

func (r *Razorpay) CreateIntent(ctx context.Context, txn *model.PaymentTransaction) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := map[string]interface{}{
		"amount":   minorUnits(txn.Amount),
		"currency": txn.Currency,
		"receipt":  txn.ID.String(),
		"notes": map[string]interface{}{
			"appointment_id": txn.AppointmentID.String(),
		},
	}

	var body map[string]interface{}
	err := r.cb.Execute(func() error {
		var err error
		body, err = r.orders.Create(data, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create razorpay order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay order response has no id")
	}
	return &Intent{ExternalID: id, Status: model.TxnPending}, nil
}

func (r *Razorpay) FetchStatus(ctx context.Context, externalID string) (model.TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var body map[string]interface{}
	err := r.cb.Execute(func() error {
		var err error
		body, err = r.orders.Fetch(externalID, nil, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch razorpay order: %w", err)
	}

	status, _ := body["status"].(string)
	switch status {
	case "paid":
		return model.TxnCompleted, nil
	case "attempted":
		return model.TxnProcessing, nil
	default:
		return model.TxnPending, nil
	}
}

func (r *Razorpay) Refund(ctx context.Context, txn *model.PaymentTransaction, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	paymentID, err := r.capturedPayment(txn.ExternalID)
	if err != nil {
		return "", err
	}

	var body map[string]interface{}
	err = r.cb.Execute(func() error {
		var err error
		body, err = r.payments.Refund(paymentID, int(minorUnits(amount)), map[string]interface{}{}, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to refund razorpay payment: %w", err)
	}
	id, _ := body["id"].(string)
	return id, nil
}

// capturedPayment finds the captured payment of an order.
func (r *Razorpay) capturedPayment(orderID string) (string, error) {
	body, err := r.orders.Payments(orderID, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list razorpay payments: %w", err)
	}
	items, _ := body["items"].([]interface{})
	for _, it := range items {
		p, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		if status, _ := p["status"].(string); status == "captured" {
			id, _ := p["id"].(string)
			return id, nil
		}
	}
	return "", fmt.Errorf("order %s has no captured payment", orderID)
}
