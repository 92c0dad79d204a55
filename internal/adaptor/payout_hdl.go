package adaptor

import (
	"net/http"

	"service-marketplace/internal/dto/request"
	"service-marketplace/internal/usecase"
	"service-marketplace/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	service usecase.PayoutService
	log     *zap.Logger
}

func NewPayoutHandler(service usecase.PayoutService, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{
		service: service,
		log:     log.With(zap.String("handler", "payout")),
	}
}

// Schedule handles POST /payouts/schedule (admin). The body is optional.
func (h *PayoutHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req request.ScheduleBatchRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	report, err := h.service.ScheduleBatch(r.Context(), &req)
	if err != nil {
		writeError(w, h.log, err, "schedule payouts")
		return
	}

	utils.ResponseSuccess(w, "Payouts scheduled", report)
}

// Process handles POST /payouts/process (admin)
func (h *PayoutHandler) Process(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ProcessDue(r.Context())
	if err != nil {
		writeError(w, h.log, err, "process payouts")
		return
	}

	utils.ResponseSuccess(w, "Payouts processed", report)
}

// Retry handles POST /payouts/{id}/retry (admin)
func (h *PayoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	payout, err := h.service.RetryPayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err, "retry payout")
		return
	}

	utils.ResponseSuccess(w, "Payout re-queued", payout)
}

// ListMine handles GET /payouts/provider (provider)
func (h *PayoutHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	req := &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), 10),
	}

	payouts, err := h.service.ListProviderPayouts(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.log, err, "list payouts")
		return
	}

	utils.ResponseSuccess(w, "success", payouts)
}
