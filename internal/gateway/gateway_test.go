package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRazorpay struct {
	mock.Mock
	block chan struct{}
}

func (m *mockRazorpay) CreateOrder(data map[string]any) (map[string]any, error) {
	if m.block != nil {
		<-m.block
	}
	args := m.Called(data)
	resp, _ := args.Get(0).(map[string]any)
	return resp, args.Error(1)
}

func (m *mockRazorpay) OrderPayments(orderID string) (map[string]any, error) {
	args := m.Called(orderID)
	resp, _ := args.Get(0).(map[string]any)
	return resp, args.Error(1)
}

func (m *mockRazorpay) RefundPayment(paymentID string, amount int, data map[string]any) (map[string]any, error) {
	args := m.Called(paymentID, amount, data)
	resp, _ := args.Get(0).(map[string]any)
	return resp, args.Error(1)
}

func (m *mockRazorpay) CreateTransfer(data map[string]any) (map[string]any, error) {
	args := m.Called(data)
	resp, _ := args.Get(0).(map[string]any)
	return resp, args.Error(1)
}

func TestRazorpayCreateIntent(t *testing.T) {
	client := &mockRazorpay{}
	gw := newRazorpay(client, "whsec", zap.NewNop())
	paymentID := uuid.New()

	client.On("CreateOrder", mock.MatchedBy(func(data map[string]any) bool {
		return data["amount"] == int64(10000) && data["receipt"] == paymentID.String()
	})).Return(map[string]any{"id": "order_123"}, nil)

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		PaymentID: paymentID, BookingID: uuid.New(), Amount: 10000, Currency: "INR",
	})

	require.NoError(t, err)
	assert.Equal(t, "order_123", intent.Reference)
	client.AssertExpectations(t)
}

func TestRazorpayCreateIntentDeclined(t *testing.T) {
	client := &mockRazorpay{}
	gw := newRazorpay(client, "whsec", zap.NewNop())

	client.On("CreateOrder", mock.Anything).Return(nil, errors.New("BAD_REQUEST_ERROR"))

	_, err := gw.CreateIntent(context.Background(), IntentRequest{PaymentID: uuid.New(), Amount: 100})

	assert.ErrorIs(t, err, ErrDeclined)
	assert.False(t, IsOutcomeUnknown(err))
}

func TestRazorpayCreateIntentTimeout(t *testing.T) {
	client := &mockRazorpay{block: make(chan struct{})}
	defer close(client.block)
	client.On("CreateOrder", mock.Anything).Return(map[string]any{"id": "order_late"}, nil).Maybe()
	gw := newRazorpay(client, "whsec", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gw.CreateIntent(ctx, IntentRequest{PaymentID: uuid.New(), Amount: 100})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsOutcomeUnknown(err))
}

func TestRazorpayRefundTargetsCapturedPayment(t *testing.T) {
	client := &mockRazorpay{}
	gw := newRazorpay(client, "whsec", zap.NewNop())

	client.On("OrderPayments", "order_123").Return(map[string]any{
		"items": []any{
			map[string]any{"id": "pay_failed", "status": "failed"},
			map[string]any{"id": "pay_ok", "status": "captured"},
		},
	}, nil)
	client.On("RefundPayment", "pay_ok", 2500, mock.Anything).Return(map[string]any{"id": "rfnd_1"}, nil)

	res, err := gw.Refund(context.Background(), RefundRequest{PaymentReference: "order_123", Amount: 2500})

	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", res.Reference)
	client.AssertExpectations(t)
}

func TestRazorpayRefundWithoutCapture(t *testing.T) {
	client := &mockRazorpay{}
	gw := newRazorpay(client, "whsec", zap.NewNop())

	client.On("OrderPayments", "order_123").Return(map[string]any{"items": []any{}}, nil)

	_, err := gw.Refund(context.Background(), RefundRequest{PaymentReference: "order_123", Amount: 100})

	assert.ErrorIs(t, err, ErrDeclined)
	client.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestRazorpayTransfer(t *testing.T) {
	client := &mockRazorpay{}
	gw := newRazorpay(client, "whsec", zap.NewNop())
	payoutID := uuid.New()

	client.On("CreateTransfer", mock.MatchedBy(func(data map[string]any) bool {
		return data["account"] == "acc_123" && data["amount"] == int64(27000)
	})).Return(map[string]any{"id": "trf_1"}, nil)

	res, err := gw.Transfer(context.Background(), TransferRequest{
		PayoutID: payoutID, Destination: "acc_123", Amount: 27000, Currency: "INR",
	})

	require.NoError(t, err)
	assert.Equal(t, "trf_1", res.Reference)
}

func TestSignatureRoundTrip(t *testing.T) {
	sandbox := NewSandbox("whsec")
	body := []byte(`{"type":"payment_succeeded","data":{"reference":"order_1"}}`)
	sig := sandbox.Sign(body)

	assert.True(t, sandbox.VerifyWebhookSignature(body, sig))
	assert.False(t, sandbox.VerifyWebhookSignature(body, ""))
	assert.False(t, sandbox.VerifyWebhookSignature(append(body, ' '), sig))

	// Razorpay verifies the same HMAC scheme.
	rp := newRazorpay(&mockRazorpay{}, "whsec", zap.NewNop())
	assert.True(t, rp.VerifyWebhookSignature(body, sig))
	assert.False(t, newRazorpay(&mockRazorpay{}, "other", zap.NewNop()).VerifyWebhookSignature(body, sig))
}

func TestSandboxFailHook(t *testing.T) {
	sandbox := NewSandbox("whsec")
	sandbox.SetFail(func(op string) error {
		if op == "transfer" {
			return errors.New("account closed")
		}
		return nil
	})

	_, err := sandbox.Transfer(context.Background(), TransferRequest{PayoutID: uuid.New(), Amount: 100})
	assert.ErrorIs(t, err, ErrDeclined)

	_, err = sandbox.Refund(context.Background(), RefundRequest{PaymentReference: "x", Amount: 100})
	assert.NoError(t, err)
	assert.Len(t, sandbox.Refunds, 1)
	assert.Empty(t, sandbox.Transfers)
}

func TestSandboxLatencyHonoursContext(t *testing.T) {
	sandbox := NewSandbox("whsec")
	sandbox.Latency = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sandbox.CreateIntent(ctx, IntentRequest{PaymentID: uuid.New(), Amount: 100})

	assert.True(t, IsOutcomeUnknown(err))
	assert.Empty(t, sandbox.Intents)
}
