package usecase

import (
	"context"
	"fmt"
	"time"

	"service-marketplace/pkg/apperror"
	"service-marketplace/pkg/mq"
	"service-marketplace/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultGatewayTimeout = 10 * time.Second

func parseID(value, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperror.Validationf("invalid %s id %q", what, value)
	}
	return id, nil
}

func validate(req any) error {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return apperror.Validationf("validation failed: %s", utils.FormatValidationErrors(errs))
	}
	return nil
}

// fail logs err and makes sure the caller only ever sees a taxonomy error.
// Unexpected errors become Internal so driver details do not leak.
func fail(log *zap.Logger, op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	if e, ok := apperror.As(err); ok {
		if e.Kind == apperror.KindInternal || e.Kind == apperror.KindGateway {
			log.Error(op+" failed", fields...)
		} else {
			log.Warn(op+" rejected", fields...)
		}
		return err
	}
	log.Error(op+" failed", fields...)
	return apperror.Wrap(err, fmt.Sprintf("%s failed", op))
}

// eventEmitter publishes lifecycle events after a transaction commits.
// Publishing is best effort; the database is the record.
type eventEmitter struct {
	publisher mq.Publisher
	log       *zap.Logger
}

func newEventEmitter(publisher mq.Publisher, log *zap.Logger) *eventEmitter {
	if publisher == nil {
		publisher = mq.NoopPublisher{}
	}
	return &eventEmitter{publisher: publisher, log: log.With(zap.String("component", "events"))}
}

func (e *eventEmitter) emit(ctx context.Context, key string, payload map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := e.publisher.PublishJSON(ctx, key, payload); err != nil {
		e.log.Warn("Failed to publish event", zap.String("key", key), zap.Error(err))
	}
}
