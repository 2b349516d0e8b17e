package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/telehealth-api/internal/model"
	gateway "github.com/jwalitptl/telehealth-api/internal/payment"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

const recentPayouts = 5

var (
	ErrNotPayable      = apperrors.NewBadRequest("appointment cannot be paid in its current state", nil)
	ErrNotRefundable   = apperrors.NewBadRequest("only completed transactions can be refunded", nil)
	ErrRefundTooLarge  = apperrors.NewBadRequest("refund exceeds the amount still refundable", nil)
	ErrRefundAmount    = apperrors.NewBadRequest("refund amount must be positive", nil)
	ErrAlreadyRefunded = apperrors.NewBadRequest("transaction has been refunded", nil)
	ErrNothingToPay    = apperrors.NewBadRequest("no completed, paid appointments in this period", nil)
	ErrPayoutPeriod    = apperrors.NewBadRequest("period_end must be on or after period_start", nil)
	ErrUnknownProvider = apperrors.NewBadRequest("payment provider is not configured", nil)
	ErrNoFee           = apperrors.NewBadRequest("appointment has no fee to pay", nil)
)

type PaymentServicer interface {
	CreateIntent(ctx context.Context, actor model.Actor, req *model.PaymentIntentRequest) (*model.PaymentTransaction, error)
	ListTransactions(ctx context.Context, actor model.Actor, filter *model.TransactionFilter) ([]*model.PaymentTransaction, int, error)
	GetTransaction(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentTransaction, error)
	Sync(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentTransaction, error)
	SetStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.TransactionStatusRequest) (*model.PaymentTransaction, error)
	Refund(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.RefundRequest) (*model.Refund, error)
	ListRefunds(ctx context.Context, actor model.Actor, p model.Pagination) ([]*model.Refund, int, error)

	GeneratePayout(ctx context.Context, actor model.Actor, req *model.PayoutRequest) (*model.DoctorPayout, error)
	ListPayouts(ctx context.Context, actor model.Actor, filter *model.PayoutFilter) ([]*model.DoctorPayout, int, error)
	GetPayout(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorPayout, error)
	SetPayoutStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.PayoutStatusRequest) (*model.DoctorPayout, error)
	Earnings(ctx context.Context, actor model.Actor) (*model.DoctorEarnings, error)
}

type Service struct {
	repo      repository.PaymentRepository
	appts     repository.AppointmentRepository
	providers *gateway.Registry
	currency  string
	auditor   audit.Auditor
	now       func() time.Time
}

var _ PaymentServicer = (*Service)(nil)

func NewService(
	repo repository.PaymentRepository,
	appts repository.AppointmentRepository,
	providers *gateway.Registry,
	currency string,
	auditor audit.Auditor,
) *Service {
	if currency == "" {
		currency = model.DefaultCurrency
	}
	return &Service{
		repo:      repo,
		appts:     appts,
		providers: providers,
		currency:  currency,
		auditor:   auditor,
		now:       time.Now,
	}
}

// CreateIntent opens a payment for the patient's appointment. A pending, processing or
// completed transaction for the same appointment is returned as is.
func (s *Service) CreateIntent(ctx context.Context, actor model.Actor, req *model.PaymentIntentRequest) (*model.PaymentTransaction, error) {
	if !actor.IsPatient() {
		return nil, service.ErrNotPatient
	}
	appt, err := s.appts.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, service.Translate(err, "appointment")
	}
	if appt.PatientID != actor.UserID {
		return nil, apperrors.NewNotFound("appointment", nil)
	}

	existing, err := s.repo.ActiveForAppointment(ctx, appt.ID)
	switch {
	case err == nil && existing.Status.Reusable():
		return existing, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, service.Translate(err, "transaction")
	}

	switch appt.Status {
	case model.AppointmentStatusCancelled, model.AppointmentStatusNoShow, model.AppointmentStatusRefunded:
		return nil, ErrNotPayable
	}
	if !appt.ConsultationFee.IsPositive() {
		return nil, ErrNoFee
	}

	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}

	txn := &model.PaymentTransaction{
		Base:          model.NewBase(),
		AppointmentID: appt.ID,
		PatientID:     actor.UserID,
		Provider:      provider.Name(),
		Amount:        appt.ConsultationFee,
		Currency:      s.currency,
		Status:        model.TxnPending,
		Description:   fmt.Sprintf("Consultation on %s", appt.ScheduledAt.Format("2006-01-02 15:04 MST")),
		Metadata:      model.JSONMap{"doctor_id": appt.DoctorID.String()},
	}
	intent, err := provider.CreateIntent(ctx, txn)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("create %s intent: %w", provider.Name(), err))
	}
	txn.ExternalID = intent.ExternalID
	txn.ClientSecret = intent.ClientSecret
	if intent.Status != "" {
		txn.Status = intent.Status
	}

	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, service.Translate(err, "transaction")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityPayment, txn.ID,
		model.JSONMap{"appointment_id": appt.ID.String(), "amount": txn.Amount.String()}))
	return txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, actor model.Actor, filter *model.TransactionFilter) ([]*model.PaymentTransaction, int, error) {
	switch {
	case actor.IsPatient():
		filter.PatientID = &actor.UserID
	case !actor.IsAdmin():
		return nil, 0, service.ErrPermission
	}
	txns, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "transaction")
	}
	return txns, total, nil
}

func (s *Service) GetTransaction(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentTransaction, error) {
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "transaction")
	}
	if !actor.IsAdmin() && txn.PatientID != actor.UserID {
		return nil, apperrors.NewNotFound("transaction", nil)
	}
	return txn, nil
}

// Sync polls the provider and stores any status change. Providers with nothing to
// report leave the transaction untouched.
func (s *Service) Sync(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentTransaction, error) {
	txn, err := s.GetTransaction(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if txn.Status == model.TxnRefunded {
		return txn, nil
	}
	provider, err := s.providers.Get(txn.Provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}
	status, err := provider.FetchStatus(ctx, txn.ExternalID)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("fetch %s status: %w", txn.Provider, err))
	}
	if status == "" || status == txn.Status {
		return txn, nil
	}

	s.applyStatus(txn, status, "")
	if err := s.repo.SetTransactionStatus(ctx, txn); err != nil {
		return nil, service.Translate(err, "transaction")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, "sync", model.AuditEntityPayment, txn.ID,
		model.JSONMap{"status": string(status)}))
	return txn, nil
}

// SetStatus is the admin override for payments settled or failed outside the gateway.
func (s *Service) SetStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.TransactionStatusRequest) (*model.PaymentTransaction, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrNotAdmin
	}
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "transaction")
	}
	if txn.Status == model.TxnRefunded {
		return nil, ErrAlreadyRefunded
	}

	s.applyStatus(txn, req.Status, req.FailureReason)
	if err := s.repo.SetTransactionStatus(ctx, txn); err != nil {
		return nil, service.Translate(err, "transaction")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityPayment, txn.ID,
		model.JSONMap{"status": string(req.Status)}))
	return txn, nil
}

func (s *Service) applyStatus(txn *model.PaymentTransaction, status model.TransactionStatus, reason string) {
	txn.Status = status
	switch status {
	case model.TxnCompleted:
		if txn.CompletedAt == nil {
			now := s.now().UTC()
			txn.CompletedAt = &now
		}
		txn.FailureReason = ""
	case model.TxnFailed, model.TxnCancelled:
		txn.FailureReason = reason
	}
}

// Refund returns part or all of a completed payment. Omitting the amount refunds what
// is left. The refund is reserved before the provider is called so concurrent refunds
// cannot exceed the amount paid. A full refund marks the transaction and appointment
// refunded.
func (s *Service) Refund(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.RefundRequest) (*model.Refund, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrNotAdmin
	}
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "transaction")
	}
	if txn.Status != model.TxnCompleted {
		return nil, ErrNotRefundable
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, ErrRefundAmount
	}
	provider, err := s.providers.Get(txn.Provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}

	refund := &model.Refund{
		Base:          model.NewBase(),
		TransactionID: txn.ID,
		Reason:        req.Reason,
		ProcessedBy:   actor.UserID,
	}
	if req.Amount != nil {
		refund.Amount = *req.Amount
	}
	full, err := s.repo.ReserveRefund(ctx, refund)
	switch {
	case errors.Is(err, repository.ErrOverLimit):
		return nil, ErrRefundTooLarge
	case errors.Is(err, repository.ErrStaleState):
		return nil, ErrNotRefundable
	case err != nil:
		return nil, service.Translate(err, "refund")
	}

	externalID, err := provider.Refund(ctx, txn, refund.Amount)
	if err != nil {
		if ferr := s.repo.FailRefund(ctx, refund.ID); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return nil, apperrors.NewInternal(fmt.Errorf("%s refund: %w", txn.Provider, err))
	}

	refund.ExternalID = externalID
	details := model.JSONMap{
		"refund_id":   refund.ID.String(),
		"amount":      refund.Amount.String(),
		"full":        full,
		"external_id": externalID,
	}
	if err := s.repo.CompleteRefund(ctx, refund, txn, full); err != nil {
		// provider already paid out; the processing row stays for reconciliation
		details["status"] = string(model.RefundProcessing)
		s.auditor.Log(ctx, audit.Action(actor.UserID, "refund", model.AuditEntityPayment, txn.ID, details))
		return nil, service.Translate(err, "refund")
	}

	s.auditor.Log(ctx, audit.Action(actor.UserID, "refund", model.AuditEntityPayment, txn.ID, details))
	return refund, nil
}

func (s *Service) ListRefunds(ctx context.Context, actor model.Actor, p model.Pagination) ([]*model.Refund, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, service.ErrNotAdmin
	}
	refunds, total, err := s.repo.ListRefunds(ctx, p)
	if err != nil {
		return nil, 0, service.Translate(err, "refund")
	}
	return refunds, total, nil
}

// GeneratePayout pays the doctor their share of every completed, paid appointment in
// the period that no earlier payout covered. Both period dates are inclusive.
func (s *Service) GeneratePayout(ctx context.Context, actor model.Actor, req *model.PayoutRequest) (*model.DoctorPayout, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrNotAdmin
	}
	start, err1 := time.Parse("2006-01-02", req.PeriodStart)
	end, err2 := time.Parse("2006-01-02", req.PeriodEnd)
	if err1 != nil || err2 != nil || end.Before(start) {
		return nil, ErrPayoutPeriod
	}

	appts, err := s.repo.PayableAppointments(ctx, req.DoctorID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, service.Translate(err, "payout")
	}
	if len(appts) == 0 {
		return nil, ErrNothingToPay
	}

	gross := decimal.Zero
	ids := make([]uuid.UUID, 0, len(appts))
	for _, a := range appts {
		gross = gross.Add(a.ConsultationFee)
		ids = append(ids, a.ID)
	}

	payout := &model.DoctorPayout{
		Base:             model.NewBase(),
		DoctorID:         req.DoctorID,
		Amount:           DoctorShare(gross),
		GrossAmount:      gross,
		Currency:         s.currency,
		Status:           model.PayoutPending,
		PeriodStart:      start,
		PeriodEnd:        end,
		AppointmentCount: len(appts),
		Notes:            req.Notes,
	}
	if err := s.repo.CreatePayout(ctx, payout, ids); err != nil {
		return nil, service.Translate(err, "payout")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityPayout, payout.ID,
		model.JSONMap{"doctor_id": req.DoctorID.String(), "amount": payout.Amount.String()}))
	return payout, nil
}

// DoctorShare is the doctor's cut of gross fees, rounded to cents.
func DoctorShare(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(model.DoctorShare).Round(2)
}

func (s *Service) ListPayouts(ctx context.Context, actor model.Actor, filter *model.PayoutFilter) ([]*model.DoctorPayout, int, error) {
	switch {
	case actor.IsDoctor():
		filter.DoctorID = &actor.UserID
	case !actor.IsAdmin():
		return nil, 0, service.ErrPermission
	}
	payouts, total, err := s.repo.ListPayouts(ctx, filter)
	if err != nil {
		return nil, 0, service.Translate(err, "payout")
	}
	return payouts, total, nil
}

func (s *Service) GetPayout(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.DoctorPayout, error) {
	payout, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "payout")
	}
	if !actor.IsAdmin() && payout.DoctorID != actor.UserID {
		return nil, apperrors.NewNotFound("payout", nil)
	}
	return payout, nil
}

func (s *Service) SetPayoutStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.PayoutStatusRequest) (*model.DoctorPayout, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrNotAdmin
	}
	payout, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "payout")
	}
	if payout.Status == model.PayoutCompleted {
		return nil, apperrors.NewBadRequest("payout is already completed", nil)
	}

	payout.Status = req.Status
	if req.ExternalID != "" {
		payout.ExternalID = req.ExternalID
	}
	if req.Status == model.PayoutCompleted {
		now := s.now().UTC()
		payout.ProcessedAt = &now
	}
	if err := s.repo.UpdatePayout(ctx, payout); err != nil {
		return nil, service.Translate(err, "payout")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionUpdate, model.AuditEntityPayout, payout.ID,
		model.JSONMap{"status": string(req.Status)}))
	return payout, nil
}

func (s *Service) Earnings(ctx context.Context, actor model.Actor) (*model.DoctorEarnings, error) {
	if !actor.IsDoctor() {
		return nil, service.ErrNotDoctor
	}
	total, count, unpaid, err := s.repo.Earnings(ctx, actor.UserID)
	if err != nil {
		return nil, service.Translate(err, "earnings")
	}
	recent, _, err := s.repo.ListPayouts(ctx, &model.PayoutFilter{
		DoctorID:   &actor.UserID,
		Pagination: model.Pagination{Page: 1, PageSize: recentPayouts},
	})
	if err != nil {
		return nil, service.Translate(err, "payout")
	}
	if recent == nil {
		recent = []*model.DoctorPayout{}
	}
	return &model.DoctorEarnings{
		TotalEarnings:         total,
		DoctorShare:           DoctorShare(total),
		CompletedAppointments: count,
		PendingPayout:         DoctorShare(unpaid),
		RecentPayouts:         recent,
	}, nil
}
