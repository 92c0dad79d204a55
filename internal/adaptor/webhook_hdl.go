package adaptor

import (
	"io"
	"net/http"

	"service-marketplace/internal/usecase"
	"service-marketplace/pkg/utils"

	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	maxWebhookBody  = 1 << 20
)

type WebhookHandler struct {
	service usecase.WebhookService
	log     *zap.Logger
}

func NewWebhookHandler(service usecase.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log.With(zap.String("handler", "webhook")),
	}
}

// Receive handles POST /payments/webhook. The signature covers the raw body,
// so the body is read as bytes and never re-encoded.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Unreadable webhook body", nil)
		return
	}

	ack, err := h.service.HandleEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		writeError(w, h.log, err, "handle webhook")
		return
	}

	utils.ResponseSuccess(w, "Webhook received", ack)
}
