package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/frahmantamala/dental-credit/internal/core/datamodel/paymentgateway"
)

type PaymentJob struct {
	ProcessorID string
	Amount      int64
}

type Worker struct {
	ID         int
	WorkerPool chan chan PaymentJob
	JobChannel chan PaymentJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan PaymentJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan PaymentJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(PaymentJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "processor_id", job.ProcessorID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Client talks to a Stripe-like REST processor. In simulation mode a worker pool settles
// every intent after a short delay and reports the outcome to the webhook.
type Client struct {
	baseURL     string
	apiKey      string
	webhookURL  string
	simulate    bool
	delay       time.Duration
	successRate float64
	http        *http.Client
	logger      *slog.Logger

	// local holds intent statuses when there is no upstream to ask.
	mu    sync.RWMutex
	local map[string]string

	jobQueue   chan PaymentJob
	workerPool chan chan PaymentJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Config struct {
	BaseURL        string
	APIKey         string
	WebhookURL     string
	Timeout        time.Duration
	Simulate       bool
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
	// SimulateDelay fixes the settle delay. Zero picks 1 to 4 seconds per job.
	SimulateDelay time.Duration
	// SuccessRate is the share of simulated intents that succeed. Zero means 0.9.
	SuccessRate float64
}

func NewClient(config Config, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}
	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	successRate := config.SuccessRate
	if successRate <= 0 {
		successRate = 0.9
	}

	client := &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		webhookURL:  config.WebhookURL,
		simulate:    config.Simulate,
		delay:       config.SimulateDelay,
		successRate: successRate,
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
		local:       make(map[string]string),

		maxWorkers: maxWorkers,
		jobQueue:   make(chan PaymentJob, jobQueueSize),
		workerPool: make(chan chan PaymentJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if client.simulate {
		client.startWorkerPool()
	}
	return client
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.maxWorkers; i++ {
			worker := NewWorker(i, c.workerPool, c.logger)
			worker.Start(c.ctx, &c.wg, c.processPaymentJob)
		}

		c.wg.Add(1)
		go c.dispatch()

		c.logger.Info("payment simulation worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- job:
				case <-c.ctx.Done():
					return
				}
			case <-c.ctx.Done():
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (c *Client) Shutdown() {
	c.logger.Info("shutting down payment gateway client")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("payment gateway client shutdown complete")
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req *types.PaymentIntentRequest) (*types.PaymentIntent, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.webhookURL
	}

	var intent types.PaymentIntent
	if c.upstream() {
		if err := c.do(ctx, http.MethodPost, "/payment_intents", req.IdempotencyKey, req, &intent); err != nil {
			return nil, err
		}
	} else {
		id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		intent = types.PaymentIntent{
			ID:           id,
			ClientSecret: id + "_secret_" + uuid.NewString()[:8],
			Status:       types.IntentStatusRequiresPayment,
			Amount:       req.Amount,
		}
		c.setLocal(id, intent.Status)
	}

	c.logger.Info("payment intent created", "processor_id", intent.ID, "amount", req.Amount)
	c.enqueue(PaymentJob{ProcessorID: intent.ID, Amount: req.Amount})
	return &intent, nil
}

func (c *Client) CreateInstallmentPlan(ctx context.Context, req *types.SubscriptionRequest) (*types.Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.webhookURL
	}

	var sub types.Subscription
	if c.upstream() {
		key := fmt.Sprintf("plan-%d-%d", req.CreditRequestID, req.StartDate.Unix())
		if err := c.do(ctx, http.MethodPost, "/subscriptions", key, req, &sub); err != nil {
			return nil, err
		}
	} else {
		id := "sub_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		sub = types.Subscription{
			ID:                 id,
			Status:             types.SubscriptionStatusIncomplete,
			NextPaymentAttempt: req.StartDate.AddDate(0, 1, 0).Unix(),
		}
		c.setLocal(id, sub.Status)
	}

	c.logger.Info("installment plan created",
		"processor_id", sub.ID,
		"installments", req.Installments,
		"installment_amount", req.InstallmentAmount)
	c.enqueue(PaymentJob{ProcessorID: sub.ID, Amount: req.InstallmentAmount})
	return &sub, nil
}

// ConfirmPayment reads the current status of an intent, or of a subscription for sub_ ids.
func (c *Client) ConfirmPayment(ctx context.Context, processorID string) (*types.PaymentIntent, error) {
	if !c.upstream() {
		st, ok := c.getLocal(processorID)
		if !ok {
			return nil, fmt.Errorf("unknown processor id %s", processorID)
		}
		return &types.PaymentIntent{ID: processorID, Status: st}, nil
	}

	path := "/payment_intents/" + processorID
	if strings.HasPrefix(processorID, "sub_") {
		path = "/subscriptions/" + processorID
	}
	var intent types.PaymentIntent
	if err := c.do(ctx, http.MethodGet, path, "", nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if !c.upstream() {
		if _, ok := c.getLocal(subscriptionID); !ok {
			return fmt.Errorf("unknown subscription %s", subscriptionID)
		}
		c.setLocal(subscriptionID, types.SubscriptionStatusCanceled)
		return nil
	}
	return c.do(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, "", nil, nil)
}

func (c *Client) upstream() bool {
	return c.baseURL != ""
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr types.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("processor returned %d: %s (%s)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("processor returned status %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) enqueue(job PaymentJob) {
	if !c.simulate {
		return
	}
	select {
	case c.jobQueue <- job:
		c.logger.Debug("simulation job queued", "processor_id", job.ProcessorID, "queue_length", len(c.jobQueue))
	default:
		c.logger.Warn("simulation queue full, intent stays pending", "processor_id", job.ProcessorID)
	}
}

func (c *Client) processPaymentJob(job PaymentJob) {
	delay := c.delay
	if delay <= 0 {
		delay = time.Duration(1+rand.Intn(4)) * time.Second
	}

	select {
	case <-time.After(delay):
	case <-c.ctx.Done():
		c.logger.Info("payment job cancelled", "processor_id", job.ProcessorID)
		return
	}

	// A plan settles when its first installment is paid.
	status, reason := types.IntentStatusSucceeded, ""
	if strings.HasPrefix(job.ProcessorID, "sub_") {
		status = types.SubscriptionStatusPaid
	}
	if rand.Float64() >= c.successRate {
		status, reason = types.IntentStatusFailed, "insufficient_funds"
	}
	if !c.upstream() && !c.settleLocal(job.ProcessorID, status) {
		c.logger.Info("simulated payment already closed", "processor_id", job.ProcessorID)
		return
	}

	c.logger.Info("simulated payment settled",
		"processor_id", job.ProcessorID,
		"status", status,
		"delay_seconds", delay.Seconds())
	c.sendCallbackToWebhook(job.ProcessorID, status, reason)
}

func (c *Client) sendCallbackToWebhook(processorID, status, failureReason string) {
	if c.webhookURL == "" {
		return
	}
	select {
	case <-c.ctx.Done():
		return
	default:
	}

	payload := map[string]string{
		"processor_id": processorID,
		"status":       status,
	}
	if failureReason != "" {
		payload["failure_reason"] = failureReason
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to marshal callback", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(raw))
	if err != nil {
		c.logger.Error("failed to create webhook request", "processor_id", processorID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("webhook callback failed", "processor_id", processorID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("webhook callback rejected", "processor_id", processorID, "status_code", resp.StatusCode)
	}
}

func (c *Client) setLocal(id, status string) {
	c.mu.Lock()
	c.local[id] = status
	c.mu.Unlock()
}

// settleLocal records status unless the id was cancelled in the meantime.
func (c *Client) settleLocal(id, status string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local[id] == types.SubscriptionStatusCanceled {
		return false
	}
	c.local[id] = status
	return true
}

func (c *Client) getLocal(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.local[id]
	return st, ok
}
