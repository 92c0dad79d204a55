package gateway

import (
	"context"
	"fmt"

	"github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
	"go.uber.org/zap"
)

// razorpayClient is the subset of the SDK this adapter calls.
type razorpayClient interface {
	CreateOrder(data map[string]any) (map[string]any, error)
	OrderPayments(orderID string) (map[string]any, error)
	RefundPayment(paymentID string, amount int, data map[string]any) (map[string]any, error)
	CreateTransfer(data map[string]any) (map[string]any, error)
}

type sdkClient struct {
	client *razorpay.Client
}

func (c sdkClient) CreateOrder(data map[string]any) (map[string]any, error) {
	return c.client.Order.Create(data, nil)
}

func (c sdkClient) OrderPayments(orderID string) (map[string]any, error) {
	return c.client.Order.Payments(orderID, nil, nil)
}

func (c sdkClient) RefundPayment(paymentID string, amount int, data map[string]any) (map[string]any, error) {
	return c.client.Payment.Refund(paymentID, amount, data, nil)
}

func (c sdkClient) CreateTransfer(data map[string]any) (map[string]any, error) {
	return c.client.Transfer.Create(data, nil)
}

type razorpayGateway struct {
	client        razorpayClient
	webhookSecret string
	log           *zap.Logger
}

// NewRazorpay returns a Gateway backed by Razorpay orders, refunds and transfers.
// Intent references are Razorpay order ids.
func NewRazorpay(keyID, keySecret, webhookSecret string, log *zap.Logger) Gateway {
	return newRazorpay(sdkClient{client: razorpay.NewClient(keyID, keySecret)}, webhookSecret, log)
}

func newRazorpay(client razorpayClient, webhookSecret string, log *zap.Logger) *razorpayGateway {
	return &razorpayGateway{
		client:        client,
		webhookSecret: webhookSecret,
		log:           log.With(zap.String("gateway", "razorpay")),
	}
}

// do runs a blocking SDK call and gives up when ctx is done. The SDK has no
// context support, so an abandoned call finishes in the background.
func do[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func declined(op string, err error) error {
	return fmt.Errorf("razorpay %s: %w: %v", op, ErrDeclined, err)
}

func (g *razorpayGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	data := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.PaymentID.String(),
		"notes": map[string]any{
			"bookingId": req.BookingID.String(),
			"paymentId": req.PaymentID.String(),
		},
	}

	order, err := do(ctx, func() (map[string]any, error) { return g.client.CreateOrder(data) })
	if err != nil {
		if IsOutcomeUnknown(err) {
			return nil, err
		}
		g.log.Warn("Order creation rejected", zap.Error(err), zap.String("payment_id", req.PaymentID.String()))
		return nil, declined("create order", err)
	}

	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("razorpay create order: response has no id")
	}

	return &Intent{Reference: orderID, ClientSecret: orderID}, nil
}

// capturedPaymentID finds the captured payment of an order, which is what refunds target.
func (g *razorpayGateway) capturedPaymentID(ctx context.Context, orderID string) (string, error) {
	resp, err := do(ctx, func() (map[string]any, error) { return g.client.OrderPayments(orderID) })
	if err != nil {
		return "", err
	}

	items, _ := resp["items"].([]any)
	for _, item := range items {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if status, _ := p["status"].(string); status == "captured" {
			if id, _ := p["id"].(string); id != "" {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("razorpay order %s: %w: no captured payment", orderID, ErrDeclined)
}

func (g *razorpayGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	paymentID, err := g.capturedPaymentID(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"notes": map[string]any{"reason": req.Reason},
	}
	refund, err := do(ctx, func() (map[string]any, error) {
		return g.client.RefundPayment(paymentID, int(req.Amount), data)
	})
	if err != nil {
		if IsOutcomeUnknown(err) {
			return nil, err
		}
		return nil, declined("refund", err)
	}

	id, _ := refund["id"].(string)
	return &RefundResult{Reference: id}, nil
}

func (g *razorpayGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	data := map[string]any{
		"account":  req.Destination,
		"amount":   req.Amount,
		"currency": req.Currency,
		"notes": map[string]any{
			"payoutId": req.PayoutID.String(),
			"method":   req.Method,
		},
	}

	transfer, err := do(ctx, func() (map[string]any, error) { return g.client.CreateTransfer(data) })
	if err != nil {
		if IsOutcomeUnknown(err) {
			return nil, err
		}
		return nil, declined("transfer", err)
	}

	id, _ := transfer["id"].(string)
	return &TransferResult{Reference: id}, nil
}

func (g *razorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" || g.webhookSecret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, g.webhookSecret)
}
