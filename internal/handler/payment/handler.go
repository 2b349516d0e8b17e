package payment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/payment"
	"github.com/jwalitptl/telehealth-api/pkg/event"
)

// EventFields is the transaction payload carried by PAYMENT_COMPLETE events.
var EventFields = []string{"id", "appointment_id", "patient_id", "amount", "currency", "status"}

type Handler struct {
	service payment.PaymentServicer
}

func NewHandler(service payment.PaymentServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutesWithEvents(r *gin.RouterGroup, tracker *event.EventTracker) {
	admin := middleware.RequireRole(model.RoleAdmin)
	completed := tracker.TrackEvent("payment", "complete", EventFields...)

	g := r.Group("/payments")
	{
		g.POST("/intent", middleware.RequireRole(model.RolePatient), h.CreateIntent)
		g.GET("/transactions", h.ListTransactions)
		g.GET("/transactions/:id", h.GetTransaction)
		g.POST("/transactions/:id/sync", completed, h.Sync)
		g.PUT("/transactions/:id/status", admin, completed, h.SetStatus)
		g.POST("/transactions/:id/refund", admin, h.Refund)
		g.GET("/refunds", h.ListRefunds)

		g.POST("/payouts/generate", admin, h.GeneratePayout)
		g.GET("/payouts", h.ListPayouts)
		g.GET("/payouts/:id", h.GetPayout)
		g.PUT("/payouts/:id/status", admin, h.SetPayoutStatus)
		g.GET("/earnings", middleware.RequireRole(model.RoleDoctor), h.Earnings)
	}
}

func (h *Handler) CreateIntent(c *gin.Context) {
	var req model.PaymentIntentRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tx, err := h.service.CreateIntent(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, tx)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	filter := &model.TransactionFilter{
		Status:     model.TransactionStatus(c.Query("status")),
		Pagination: handler.Page(c),
	}
	var ok bool
	if filter.AppointmentID, ok = handler.QueryID(c, "appointment_id"); !ok {
		return
	}
	if filter.PatientID, ok = handler.QueryID(c, "patient_id"); !ok {
		return
	}

	txs, total, err := h.service.ListTransactions(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, txs, filter.Pagination, total)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "transaction")
	if !ok {
		return
	}
	tx, err := h.service.GetTransaction(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, tx)
}

func (h *Handler) Sync(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "transaction")
	if !ok {
		return
	}
	tx, err := h.service.Sync(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	recordCompletion(c, tx)
	handler.OK(c, tx)
}

func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "transaction")
	if !ok {
		return
	}
	var req model.TransactionStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tx, err := h.service.SetStatus(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	recordCompletion(c, tx)
	handler.OK(c, tx)
}

// recordCompletion emits the payment event only once the money has landed.
func recordCompletion(c *gin.Context, tx *model.PaymentTransaction) {
	if tx.Status == model.TxnCompleted {
		event.Record(c, tx)
	}
}

func (h *Handler) Refund(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "transaction")
	if !ok {
		return
	}
	var req model.RefundRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	refund, err := h.service.Refund(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, refund)
}

func (h *Handler) ListRefunds(c *gin.Context) {
	p := handler.Page(c)
	refunds, total, err := h.service.ListRefunds(c.Request.Context(), handler.Actor(c), p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, refunds, p, total)
}

func (h *Handler) GeneratePayout(c *gin.Context) {
	var req model.PayoutRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	payout, err := h.service.GeneratePayout(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, payout)
}

func (h *Handler) ListPayouts(c *gin.Context) {
	filter := &model.PayoutFilter{
		Status:     model.PayoutStatus(c.Query("status")),
		Pagination: handler.Page(c),
	}
	var ok bool
	if filter.DoctorID, ok = handler.QueryID(c, "doctor_id"); !ok {
		return
	}

	payouts, total, err := h.service.ListPayouts(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, payouts, filter.Pagination, total)
}

func (h *Handler) GetPayout(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "payout")
	if !ok {
		return
	}
	payout, err := h.service.GetPayout(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, payout)
}

func (h *Handler) SetPayoutStatus(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "payout")
	if !ok {
		return
	}
	var req model.PayoutStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	payout, err := h.service.SetPayoutStatus(c.Request.Context(), handler.Actor(c), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, payout)
}

func (h *Handler) Earnings(c *gin.Context) {
	earnings, err := h.service.Earnings(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, earnings)
}
