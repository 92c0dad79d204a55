package usecase

import (
	"context"
	"errors"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/dto/request"
	"service-marketplace/internal/dto/response"
	"service-marketplace/internal/gateway"
	"service-marketplace/pkg/apperror"
	"service-marketplace/pkg/metrics"
	"service-marketplace/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMinAgeHours = 24

type PayoutService interface {
	ScheduleBatch(ctx context.Context, req *request.ScheduleBatchRequest) (*response.ScheduleReport, error)
	ProcessDue(ctx context.Context) (*response.ProcessReport, error)
	RetryPayout(ctx context.Context, payoutID string) (*response.PayoutResponse, error)
	ListProviderPayouts(ctx context.Context, actor entity.Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.PayoutResponse], error)
}

type payoutService struct {
	repo    *repository.Repository
	gateway gateway.Gateway
	config  utils.PayoutConfig
	timeout time.Duration
	now     func() time.Time
	events  *eventEmitter
	log     *zap.Logger
}

func NewPayoutService(
	repo *repository.Repository,
	gw gateway.Gateway,
	config utils.PayoutConfig,
	timeout time.Duration,
	now func() time.Time,
	events *eventEmitter,
	log *zap.Logger,
) PayoutService {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	if config.MinAgeHours <= 0 {
		config.MinAgeHours = defaultMinAgeHours
	}
	return &payoutService{
		repo:    repo,
		gateway: gw,
		config:  config,
		timeout: timeout,
		now:     now,
		events:  events,
		log:     log.With(zap.String("service", "payout")),
	}
}

// errNothingToBatch rolls back a provider's batch when its eligible payments
// were taken by a concurrent run.
var errNothingToBatch = errors.New("no eligible payments left")

func (s *payoutService) ScheduleBatch(ctx context.Context, req *request.ScheduleBatchRequest) (*response.ScheduleReport, error) {
	minAge := s.config.MinAgeHours
	if req != nil {
		if err := validate(req); err != nil {
			return nil, err
		}
		if req.MinAgeHours != nil {
			minAge = *req.MinAgeHours
		}
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(minAge) * time.Hour)

	providers, err := s.repo.Payment.ListEligibleProviderIDs(ctx, cutoff)
	if err != nil {
		return nil, fail(s.log, "schedule payouts", err)
	}

	report := &response.ScheduleReport{Payouts: []*response.PayoutResponse{}}
	for _, providerID := range providers {
		method, err := s.repo.PayoutMethod.FindActiveByProvider(ctx, providerID)
		if err != nil {
			return nil, fail(s.log, "schedule payouts", err, zap.String("provider_id", providerID.String()))
		}
		if method == nil {
			s.log.Warn("Skipping provider without an active payout method", zap.String("provider_id", providerID.String()))
			report.SkippedProviders = append(report.SkippedProviders, providerID.String())
			continue
		}

		payout, count, err := s.batchProvider(ctx, providerID, method, cutoff, now)
		switch {
		case errors.Is(err, errNothingToBatch), errors.Is(err, apperror.Conflict):
			s.log.Info("Provider batch skipped", zap.String("provider_id", providerID.String()), zap.Error(err))
			report.SkippedProviders = append(report.SkippedProviders, providerID.String())
			continue
		case err != nil:
			return nil, fail(s.log, "schedule payouts", err, zap.String("provider_id", providerID.String()))
		}

		s.log.Info("Payout scheduled",
			zap.String("payout_id", payout.ID.String()),
			zap.String("provider_id", providerID.String()),
			zap.Int("payments", count),
			zap.String("amount", payout.Amount.String()),
			zap.String("fees", payout.Fees.String()),
			zap.String("net_amount", payout.NetAmount.String()),
		)
		metrics.RecordPayout(string(entity.PayoutStatusPending))
		s.events.emit(ctx, "payout.scheduled", map[string]any{
			"payout_id":   payout.ID,
			"provider_id": providerID,
			"net_amount":  payout.NetAmount,
			"payments":    count,
		})

		resp := response.PayoutToResponse(payout)
		resp.PaymentCount = count
		report.Payouts = append(report.Payouts, resp)
	}

	return report, nil
}

func (s *payoutService) batchProvider(ctx context.Context, providerID uuid.UUID, method *entity.PayoutMethod, cutoff, now time.Time) (*entity.Payout, int, error) {
	var (
		payout *entity.Payout
		count  int
	)
	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		payments, err := tx.Payment.ListEligibleByProviderForUpdate(ctx, providerID, cutoff)
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			return errNothingToBatch
		}

		var amount, fees entity.Money
		ids := make([]uuid.UUID, 0, len(payments))
		for _, p := range payments {
			amount += p.Amount
			fees += p.Amount.PercentFloor(s.config.PlatformFeePercent)
			ids = append(ids, p.ID)
		}

		payout = &entity.Payout{
			BaseNoDelete: entity.BaseNoDelete{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			ProviderID:    providerID,
			Amount:        amount,
			Fees:          fees,
			NetAmount:     amount - fees,
			Currency:      s.config.Currency,
			Status:        entity.PayoutStatusPending,
			PayoutMethod:  method.Method,
			ScheduledDate: now.Add(s.config.Delay),
		}
		if err := tx.Payout.Create(ctx, payout); err != nil {
			return err
		}

		linked, err := tx.Payment.LinkPayout(ctx, payout.ID, ids)
		if err != nil {
			return err
		}
		if linked != int64(len(ids)) {
			return apperror.Conflictf("linked %d of %d payments for provider %s", linked, len(ids), providerID)
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return payout, count, nil
}

func (s *payoutService) ProcessDue(ctx context.Context) (*response.ProcessReport, error) {
	ids, err := s.repo.Payout.ListDueIDs(ctx, s.now())
	if err != nil {
		return nil, fail(s.log, "process payouts", err)
	}

	report := &response.ProcessReport{Results: []response.PayoutResult{}}
	for _, id := range ids {
		result, ok := s.processOne(ctx, id)
		if !ok {
			continue
		}
		report.Processed++
		switch result.Status {
		case entity.PayoutStatusCompleted:
			report.Completed++
		case entity.PayoutStatusFailed:
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}

	s.log.Info("Payout run finished",
		zap.Int("due", len(ids)),
		zap.Int("processed", report.Processed),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed))

	return report, nil
}

// processOne claims, transfers and settles a single payout. ok is false when
// another run claimed the payout first.
func (s *payoutService) processOne(ctx context.Context, id uuid.UUID) (response.PayoutResult, bool) {
	result := response.PayoutResult{PayoutID: id.String()}
	log := s.log.With(zap.String("payout_id", id.String()))

	var (
		payout *entity.Payout
		method *entity.PayoutMethod
	)
	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		p, err := tx.Payout.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if p == nil || p.Status != entity.PayoutStatusPending || p.ScheduledDate.After(now) {
			return nil
		}

		m, err := tx.PayoutMethod.FindActiveByProvider(ctx, p.ProviderID)
		if err != nil {
			return err
		}

		p.UpdatedAt = now
		if m == nil {
			reason := "provider has no active payout method"
			p.Status = entity.PayoutStatusFailed
			p.FailureReason = &reason
		} else {
			p.Status = entity.PayoutStatusProcessing
			p.FailureReason = nil
		}
		if err := tx.Payout.Update(ctx, p); err != nil {
			return err
		}
		payout, method = p, m
		return nil
	})
	if err != nil {
		log.Error("Failed to claim payout", zap.Error(err))
		result.Status = entity.PayoutStatusPending
		result.Error = "claim failed"
		return result, true
	}
	if payout == nil {
		log.Debug("Payout no longer due, skipping")
		return result, false
	}
	if payout.Status == entity.PayoutStatusFailed {
		log.Warn("Payout failed before transfer", zap.String("reason", *payout.FailureReason))
		s.recordSettled(ctx, payout)
		result.Status = payout.Status
		result.Error = *payout.FailureReason
		return result, true
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	transfer, gwErr := s.gateway.Transfer(gctx, gateway.TransferRequest{
		PayoutID:    payout.ID,
		Method:      method.Method,
		Destination: method.Destination,
		Amount:      int64(payout.NetAmount),
		Currency:    payout.Currency,
	})
	cancel()
	metrics.RecordGatewayCall("transfer", gwErr, time.Since(start).Seconds())

	settleCtx := context.WithoutCancel(ctx)
	err = s.repo.Tx.WithinTx(settleCtx, func(tx *repository.Repository) error {
		p, err := tx.Payout.FindByIDForUpdate(settleCtx, id)
		if err != nil {
			return err
		}
		if p == nil || p.Status != entity.PayoutStatusProcessing {
			return apperror.InvalidStatef("payout %s left processing during transfer", id)
		}

		now := s.now()
		p.UpdatedAt = now
		if gwErr != nil {
			reason := gwErr.Error()
			if gateway.IsOutcomeUnknown(gwErr) {
				reason = "transfer outcome unknown: " + reason
			}
			p.Status = entity.PayoutStatusFailed
			p.FailureReason = &reason
		} else {
			p.Status = entity.PayoutStatusCompleted
			p.ProcessedDate = &now
			p.Reference = &transfer.Reference
			p.FailureReason = nil
		}
		payout = p
		return tx.Payout.Update(settleCtx, p)
	})
	if err != nil {
		log.Error("Failed to settle payout", zap.Error(err), zap.NamedError("transfer_error", gwErr))
		result.Status = entity.PayoutStatusProcessing
		result.Error = "settle failed"
		return result, true
	}

	result.Status = payout.Status
	if payout.Reference != nil {
		result.Reference = *payout.Reference
	}
	if payout.FailureReason != nil {
		result.Error = *payout.FailureReason
		log.Warn("Payout transfer failed", zap.String("reason", *payout.FailureReason))
	} else {
		log.Info("Payout completed",
			zap.String("reference", result.Reference),
			zap.String("net_amount", payout.NetAmount.String()))
	}
	s.recordSettled(ctx, payout)

	return result, true
}

func (s *payoutService) recordSettled(ctx context.Context, payout *entity.Payout) {
	metrics.RecordPayout(string(payout.Status))
	payload := map[string]any{
		"payout_id":   payout.ID,
		"provider_id": payout.ProviderID,
		"net_amount":  payout.NetAmount,
	}
	if payout.FailureReason != nil {
		payload["reason"] = *payout.FailureReason
	}
	if payout.Reference != nil {
		payload["reference"] = *payout.Reference
	}
	s.events.emit(ctx, "payout."+string(payout.Status), payload)
}

func (s *payoutService) RetryPayout(ctx context.Context, payoutID string) (*response.PayoutResponse, error) {
	id, err := parseID(payoutID, "payout")
	if err != nil {
		return nil, err
	}

	var payout *entity.Payout
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		p, err := tx.Payout.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NotFoundf("payout %s not found", payoutID)
		}
		if p.Status != entity.PayoutStatusFailed {
			return apperror.InvalidStatef("payout is %s; only failed payouts can be retried", p.Status)
		}

		now := s.now()
		p.Status = entity.PayoutStatusPending
		p.ScheduledDate = now
		p.FailureReason = nil
		p.UpdatedAt = now
		payout = p
		return tx.Payout.Update(ctx, p)
	})
	if err != nil {
		return nil, fail(s.log, "retry payout", err, zap.String("payout_id", payoutID))
	}

	s.log.Info("Payout re-queued", zap.String("payout_id", payoutID))
	metrics.RecordPayout(string(entity.PayoutStatusPending))

	return response.PayoutToResponse(payout), nil
}

func (s *payoutService) ListProviderPayouts(ctx context.Context, actor entity.Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.PayoutResponse], error) {
	if actor.Role != entity.RoleProvider {
		return nil, apperror.Forbiddenf("only providers have payouts")
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	payouts, err := s.repo.Payout.ListByProvider(ctx, actor.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, fail(s.log, "list payouts", err, zap.String("provider_id", actor.ID.String()))
	}
	total, err := s.repo.Payout.CountByProvider(ctx, actor.ID)
	if err != nil {
		return nil, fail(s.log, "list payouts", err, zap.String("provider_id", actor.ID.String()))
	}

	data := make([]response.PayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		data = append(data, *response.PayoutToResponse(p))
	}

	return response.NewPaginatedResponse(data, req.Page, req.Limit(), total), nil
}
