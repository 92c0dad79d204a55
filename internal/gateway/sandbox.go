package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/razorpay/razorpay-go/utils"
)

// Sandbox is an in-process Gateway for local runs and tests. It accepts
// everything unless a Fail hook says otherwise, and signs webhooks the way
// Razorpay does (hex HMAC-SHA256 of the raw body).
type Sandbox struct {
	mu            sync.Mutex
	webhookSecret string

	// Latency delays every call; a call gives up early when its context ends.
	Latency time.Duration
	// Fail, when set, is asked before each operation ("intent", "refund", "transfer").
	// A non-nil error is returned as a decline.
	Fail func(op string) error

	Intents   []IntentRequest
	Refunds   []RefundRequest
	Transfers []TransferRequest
}

func NewSandbox(webhookSecret string) *Sandbox {
	return &Sandbox{webhookSecret: webhookSecret}
}

func (s *Sandbox) wait(ctx context.Context, op string) error {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	fail := s.Fail
	s.mu.Unlock()
	if fail != nil {
		if err := fail(op); err != nil {
			return fmt.Errorf("sandbox %s: %w: %v", op, ErrDeclined, err)
		}
	}
	return nil
}

func (s *Sandbox) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if err := s.wait(ctx, "intent"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Intents = append(s.Intents, req)

	ref := "sbx_order_" + req.PaymentID.String()
	return &Intent{Reference: ref, ClientSecret: ref + "_secret"}, nil
}

func (s *Sandbox) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := s.wait(ctx, "refund"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Refunds = append(s.Refunds, req)

	return &RefundResult{Reference: "sbx_rfnd_" + uuid.NewString()}, nil
}

func (s *Sandbox) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := s.wait(ctx, "transfer"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transfers = append(s.Transfers, req)

	return &TransferResult{Reference: "sbx_trf_" + req.PayoutID.String()}, nil
}

// Sign returns the signature header value for body.
func (s *Sandbox) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Sandbox) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, s.webhookSecret)
}

// SetFail swaps the failure hook while calls may be in flight.
func (s *Sandbox) SetFail(fail func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = fail
}
