package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/dto/request"
	"service-marketplace/internal/gateway"
	"service-marketplace/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type harness struct {
	store  *memStore
	gw     *gateway.Sandbox
	clock  *fakeClock
	pub    *recordingPublisher
	config *utils.Config
	svc    *Service

	customer entity.Actor
	provider entity.Actor
	admin    entity.Actor
	service  entity.Service
}

func testConfig() *utils.Config {
	return &utils.Config{
		Gateway: utils.GatewayConfig{Provider: "sandbox", WebhookSecret: webhookSecret, Timeout: time.Second},
		Booking: utils.BookingConfig{NodeID: 1},
		Payout: utils.PayoutConfig{
			PlatformFeePercent: decimal.NewFromInt(10),
			Currency:           "INR",
			Delay:              48 * time.Hour,
			MinAgeHours:        24,
		},
	}
}

func newHarness(t *testing.T, configure ...func(*utils.Config)) *harness {
	t.Helper()

	config := testConfig()
	for _, fn := range configure {
		fn(config)
	}

	refs, err := utils.NewReferenceGenerator(config.Booking.NodeID)
	require.NoError(t, err)

	h := &harness{
		store:    newMemStore(),
		gw:       gateway.NewSandbox(webhookSecret),
		clock:    &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		pub:      &recordingPublisher{},
		config:   config,
		customer: entity.Actor{ID: uuid.New(), Role: entity.RoleCustomer},
		provider: entity.Actor{ID: uuid.New(), Role: entity.RoleProvider},
		admin:    entity.Actor{ID: uuid.New(), Role: entity.RoleAdmin},
	}

	h.service = entity.Service{
		BaseNoDelete:    entity.BaseNoDelete{ID: uuid.New()},
		ProviderID:      h.provider.ID,
		Name:            "Deep tissue massage",
		Price:           10000,
		DurationMinutes: 90,
		IsActive:        true,
	}
	h.store.addService(h.service)
	h.store.addMethod(entity.PayoutMethod{
		ProviderID:  h.provider.ID,
		Method:      "bank_account",
		Destination: "acc_provider_1",
		IsActive:    true,
	})

	h.svc = NewService(h.store.repository(), config, Options{
		Gateway:   h.gw,
		Refs:      refs,
		Publisher: h.pub,
		Clock:     h.clock.Now,
	}, zap.NewNop())

	return h
}

func (h *harness) createBooking(t *testing.T) uuid.UUID {
	t.Helper()
	resp, err := h.svc.Booking.CreateBooking(context.Background(), h.customer, &request.CreateBookingRequest{
		ServiceID: h.service.ID.String(),
		Date:      "2026-03-10",
		StartTime: "09:00",
		EndTime:   "10:30",
	})
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (h *harness) confirmedBooking(t *testing.T) uuid.UUID {
	t.Helper()
	id := h.createBooking(t)
	_, err := h.svc.Booking.UpdateStatus(context.Background(), h.provider, id.String(),
		&request.UpdateBookingStatusRequest{Status: string(entity.BookingStatusConfirmed)})
	require.NoError(t, err)
	return id
}

// paidBooking runs a booking through intent and confirmation.
func (h *harness) paidBooking(t *testing.T) (bookingID, paymentID uuid.UUID, reference string) {
	t.Helper()
	ctx := context.Background()
	bookingID = h.confirmedBooking(t)

	intent, err := h.svc.Payment.CreatePaymentIntent(ctx, h.customer,
		&request.CreatePaymentIntentRequest{BookingID: bookingID.String()})
	require.NoError(t, err)

	_, err = h.svc.Payment.ConfirmPayment(ctx, h.customer,
		&request.ConfirmPaymentRequest{GatewayReference: intent.Reference})
	require.NoError(t, err)

	return bookingID, uuid.MustParse(intent.PaymentID), intent.Reference
}

// seedCompletedPayment stores a paid booking for providerID with a completed
// payment paid at paidAt.
func (h *harness) seedCompletedPayment(providerID uuid.UUID, amount entity.Money, paidAt time.Time) entity.Payment {
	booking := entity.Booking{
		Base:             entity.Base{ID: uuid.New(), CreatedAt: paidAt, UpdatedAt: paidAt},
		BookingReference: "BK-" + uuid.NewString()[:8],
		CustomerID:       h.customer.ID,
		ProviderID:       providerID,
		ServiceID:        h.service.ID,
		Status:           entity.BookingStatusPaid,
		Price:            amount,
	}
	h.store.putBooking(booking)

	ref := "seed_" + uuid.NewString()
	payment := entity.Payment{
		BaseNoDelete:         entity.BaseNoDelete{ID: uuid.New(), CreatedAt: paidAt, UpdatedAt: paidAt},
		BookingID:            booking.ID,
		Amount:               amount,
		Status:               entity.PaymentStatusCompleted,
		TransactionReference: &ref,
		PaidAt:               &paidAt,
		RefundStatus:         entity.RefundStatusNone,
		GatewayMetadata:      entity.GatewayMetadata{},
	}
	h.store.putPayment(payment)
	return payment
}

type webhookData struct {
	Reference string        `json:"reference,omitempty"`
	Amount    *entity.Money `json:"amount,omitempty"`
	Metadata  struct {
		BookingID string `json:"bookingId,omitempty"`
		PaymentID string `json:"paymentId,omitempty"`
	} `json:"metadata"`
	Reason string `json:"reason,omitempty"`
}

type webhookBody struct {
	ID   string      `json:"id,omitempty"`
	Type string      `json:"type"`
	Data webhookData `json:"data"`
}

func (h *harness) signedEvent(t *testing.T, body webhookBody) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw, h.gw.Sign(raw)
}

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func moneyPtr(m entity.Money) *entity.Money {
	return &m
}
