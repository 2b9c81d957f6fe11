package paymentgateway

import (
	"errors"
	"time"
)

// Wire statuses reported by the processor.
const (
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusProcessing      = "processing"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusCanceled        = "canceled"
	IntentStatusFailed          = "failed"

	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPaid       = "paid"
	SubscriptionStatusCanceled   = "canceled"
)

type PaymentIntentRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"-"`
	CallbackURL    string            `json:"callback_url,omitempty"`
}

func (r *PaymentIntentRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

type PaymentIntent struct {
	ID            string `json:"id"`
	ClientSecret  string `json:"client_secret"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type SubscriptionRequest struct {
	CreditRequestID   int64 `json:"credit_request_id"`
	TotalAmount       int64 `json:"total_amount"`
	Installments      int   `json:"installments"`
	InstallmentAmount int64 `json:"installment_amount"`
	// FinalInstallmentAmount carries the remainder cents so the plan adds up to TotalAmount.
	FinalInstallmentAmount int64     `json:"final_installment_amount,omitempty"`
	StartDate              time.Time `json:"start_date"`
	Currency               string    `json:"currency"`
	CallbackURL            string    `json:"callback_url,omitempty"`
}

func (r *SubscriptionRequest) Validate() error {
	if r.Installments <= 1 {
		return errors.New("installments must be greater than 1")
	}
	if r.InstallmentAmount <= 0 || r.TotalAmount <= 0 {
		return errors.New("amounts must be greater than 0")
	}
	if r.FinalInstallmentAmount != 0 && r.InstallmentAmount*int64(r.Installments-1)+r.FinalInstallmentAmount != r.TotalAmount {
		return errors.New("installments must add up to the total amount")
	}
	return nil
}

type Subscription struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	LatestInvoice      string `json:"latest_invoice,omitempty"`
	ClientSecret       string `json:"client_secret,omitempty"`
	NextPaymentAttempt int64  `json:"next_payment_attempt,omitempty"`
}

type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}
