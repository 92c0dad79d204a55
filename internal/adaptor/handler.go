package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/usecase"
	"service-marketplace/pkg/apperror"
	"service-marketplace/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Booking *BookingHandler
	Payment *PaymentHandler
	Webhook *WebhookHandler
	Payout  *PayoutHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Booking, log),
		Payment: NewPaymentHandler(service.Payment, log),
		Webhook: NewWebhookHandler(service.Webhook, log),
		Payout:  NewPayoutHandler(service.Payout, log),
	}
}

// actorFromRequest reads the caller set by the auth middleware.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (entity.Actor, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return entity.Actor{}, false
	}
	role, ok := utils.GetRoleFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return entity.Actor{}, false
	}
	return entity.Actor{ID: userID, Role: entity.Role(role)}, true
}

// decodeJSON decodes the body into dst. An empty body is allowed when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	utils.ResponseBadRequest(w, "Invalid request body", nil)
	return false
}

// writeError maps a service error to its HTTP status and envelope code.
func writeError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	e, ok := apperror.As(err)
	if !ok {
		log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}

	switch e.Kind {
	case apperror.KindNotFound:
		utils.ResponseError(w, http.StatusNotFound, code, e.Message, nil)
	case apperror.KindForbidden:
		utils.ResponseError(w, http.StatusForbidden, code, e.Message, nil)
	case apperror.KindInvalidTransition, apperror.KindConflict:
		utils.ResponseError(w, http.StatusConflict, code, e.Message, nil)
	case apperror.KindInvalidSignature:
		utils.ResponseError(w, http.StatusUnauthorized, code, e.Message, nil)
	case apperror.KindGateway:
		utils.ResponseError(w, http.StatusBadGateway, code, e.Message, nil)
	case apperror.KindValidation:
		utils.ResponseError(w, http.StatusBadRequest, code, e.Message, nil)
	default:
		log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	log.Debug(operation+" rejected",
		zap.String("operation", operation),
		zap.String("kind", string(e.Kind)),
		zap.String("code", code))
}
