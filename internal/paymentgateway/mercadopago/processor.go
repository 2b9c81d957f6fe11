// Package mercadopago adapts the Mercado Pago SDK to the payment processor contract.
// Single payments go through the payments API and installment plans through preapprovals.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preapproval"

	types "github.com/frahmantamala/dental-credit/internal/core/datamodel/paymentgateway"
)

var ErrMissingAccessToken = errors.New("missing mercado pago access token")

const mockPlanPrefix = "mock-preapproval-"

type payments interface {
	Create(ctx context.Context, request payment.Request) (*payment.Response, error)
	Get(ctx context.Context, id int) (*payment.Response, error)
}

type preapprovals interface {
	Create(ctx context.Context, request preapproval.Request) (*preapproval.Response, error)
	Get(ctx context.Context, id string) (*preapproval.Response, error)
	Update(ctx context.Context, id string, request preapproval.UpdateRequest) (*preapproval.Response, error)
}

type Config struct {
	AccessToken     string
	Mock            bool
	PayerEmail      string
	NotificationURL string
}

type Processor struct {
	payments     payments
	preapprovals preapprovals
	cfg          Config
	logger       *slog.Logger

	mockMode bool
	mu       sync.Mutex
	mock     map[string]string
}

func NewProcessor(cfg Config, logger *slog.Logger) (*Processor, error) {
	if cfg.Mock {
		logger.Info("mercado pago processor in mock mode")
		return &Processor{cfg: cfg, logger: logger, mockMode: true, mock: make(map[string]string)}, nil
	}
	if cfg.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}

	sdkCfg, err := config.New(cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercado pago config: %w", err)
	}
	logger.Info("mercado pago client initialized")
	return &Processor{
		payments:     payment.NewClient(sdkCfg),
		preapprovals: preapproval.NewClient(sdkCfg),
		cfg:          cfg,
		logger:       logger,
	}, nil
}

func (p *Processor) CreatePaymentIntent(ctx context.Context, req *types.PaymentIntentRequest) (*types.PaymentIntent, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	if p.mockMode {
		id := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		p.setMock(id, "approved")
		p.logger.Info("mock payment created", "processor_id", id, "amount", req.Amount)
		return &types.PaymentIntent{ID: id, Status: "approved", Amount: req.Amount}, nil
	}

	payload, err := json.Marshal(map[string]any{
		"transaction_amount": float64(req.Amount) / 100,
		"description":        req.Description,
		"installments":       1,
		"external_reference": req.Metadata["credit_request_id"],
		"notification_url":   p.notificationURL(req.CallbackURL),
		"metadata":           req.Metadata,
		"payer":              map[string]any{"email": p.cfg.PayerEmail},
	})
	if err != nil {
		return nil, err
	}
	var mpReq payment.Request
	if err := json.Unmarshal(payload, &mpReq); err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}

	resp, err := p.payments.Create(ctx, mpReq)
	if err != nil {
		return nil, fmt.Errorf("mercado pago create payment: %w", err)
	}
	id := strconv.Itoa(resp.ID)
	p.logger.Info("mercado pago payment created", "processor_id", id, "status", resp.Status)
	return &types.PaymentIntent{ID: id, Status: resp.Status, Amount: req.Amount}, nil
}

func (p *Processor) CreateInstallmentPlan(ctx context.Context, req *types.SubscriptionRequest) (*types.Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	if p.mockMode {
		id := mockPlanPrefix + strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		p.setMock(id, "authorized")
		p.logger.Info("mock preapproval created", "processor_id", id, "installments", req.Installments)
		return &types.Subscription{ID: id, Status: "authorized"}, nil
	}

	end := req.StartDate.AddDate(0, req.Installments, 0)
	payload, err := json.Marshal(map[string]any{
		"reason":             fmt.Sprintf("dental credit %d", req.CreditRequestID),
		"external_reference": strconv.FormatInt(req.CreditRequestID, 10),
		"payer_email":        p.cfg.PayerEmail,
		"back_url":           p.notificationURL(req.CallbackURL),
		"auto_recurring": map[string]any{
			"frequency":          1,
			"frequency_type":     "months",
			"transaction_amount": float64(req.InstallmentAmount) / 100,
			"currency_id":        "BRL",
			"start_date":         req.StartDate.UTC().Format(time.RFC3339),
			"end_date":           end.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}
	var mpReq preapproval.Request
	if err := json.Unmarshal(payload, &mpReq); err != nil {
		return nil, fmt.Errorf("build preapproval request: %w", err)
	}

	resp, err := p.preapprovals.Create(ctx, mpReq)
	if err != nil {
		return nil, fmt.Errorf("mercado pago create preapproval: %w", err)
	}
	p.logger.Info("mercado pago preapproval created", "processor_id", resp.ID, "status", resp.Status)
	return &types.Subscription{ID: resp.ID, Status: resp.Status, ClientSecret: initPoint(resp)}, nil
}

// ConfirmPayment reads numeric ids as payments and anything else as a preapproval.
func (p *Processor) ConfirmPayment(ctx context.Context, processorID string) (*types.PaymentIntent, error) {
	if p.mockMode {
		st, ok := p.getMock(processorID)
		if !ok {
			return nil, fmt.Errorf("unknown processor id %s", processorID)
		}
		return &types.PaymentIntent{ID: processorID, Status: st}, nil
	}

	if n, err := strconv.Atoi(processorID); err == nil {
		resp, err := p.payments.Get(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("mercado pago get payment: %w", err)
		}
		intent := &types.PaymentIntent{ID: processorID, Status: resp.Status}
		if resp.Status == "rejected" {
			intent.FailureReason = resp.StatusDetail
		}
		return intent, nil
	}

	resp, err := p.preapprovals.Get(ctx, processorID)
	if err != nil {
		return nil, fmt.Errorf("mercado pago get preapproval: %w", err)
	}
	return &types.PaymentIntent{ID: processorID, Status: resp.Status}, nil
}

func (p *Processor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if p.mockMode {
		if _, ok := p.getMock(subscriptionID); !ok {
			return fmt.Errorf("unknown preapproval %s", subscriptionID)
		}
		p.setMock(subscriptionID, "cancelled")
		return nil
	}

	var update preapproval.UpdateRequest
	if err := json.Unmarshal([]byte(`{"status":"cancelled"}`), &update); err != nil {
		return err
	}
	if _, err := p.preapprovals.Update(ctx, subscriptionID, update); err != nil {
		return fmt.Errorf("mercado pago cancel preapproval: %w", err)
	}
	p.logger.Info("mercado pago preapproval cancelled", "processor_id", subscriptionID)
	return nil
}

func (p *Processor) notificationURL(callback string) string {
	if callback != "" {
		return callback
	}
	return p.cfg.NotificationURL
}

func (p *Processor) setMock(id, status string) {
	p.mu.Lock()
	p.mock[id] = status
	p.mu.Unlock()
}

func (p *Processor) getMock(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.mock[id]
	return st, ok
}

// initPoint pulls the checkout link out of a preapproval response.
func initPoint(resp *preapproval.Response) string {
	raw, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	var fields struct {
		InitPoint string `json:"init_point"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	return fields.InitPoint
}

// MockEnabled reports whether the environment forces the mock processor.
func MockEnabled() bool {
	for _, key := range []string{"PAYMENT_GATEWAY_MOCK", "MERCADOPAGO_MOCK"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on", "mock":
			return true
		}
	}
	return false
}
