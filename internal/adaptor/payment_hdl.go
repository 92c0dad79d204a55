package adaptor

import (
	"net/http"

	"service-marketplace/internal/dto/request"
	"service-marketplace/internal/usecase"
	"service-marketplace/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service usecase.PaymentService
	log     *zap.Logger
}

func NewPaymentHandler(service usecase.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// CreateIntent handles POST /payments/create-intent (customer)
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req request.CreatePaymentIntentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	intent, err := h.service.CreatePaymentIntent(r.Context(), actor, &req)
	if err != nil {
		writeError(w, h.log, err, "create payment intent")
		return
	}

	utils.ResponseCreated(w, "Payment intent created", intent)
}

// Confirm handles POST /payments/confirm (customer)
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req request.ConfirmPaymentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	payment, err := h.service.ConfirmPayment(r.Context(), actor, &req)
	if err != nil {
		writeError(w, h.log, err, "confirm payment")
		return
	}

	utils.ResponseSuccess(w, "Payment confirmed", payment)
}

// Refund handles POST /payments/refund (provider, admin)
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req request.RefundRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	refund, err := h.service.ProcessRefund(r.Context(), actor, &req)
	if err != nil {
		writeError(w, h.log, err, "process refund")
		return
	}

	utils.ResponseSuccess(w, "Refund processed", refund)
}

// GetPayment handles GET /payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err, "get payment")
		return
	}

	utils.ResponseSuccess(w, "success", payment)
}
