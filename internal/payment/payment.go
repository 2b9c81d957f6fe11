package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/payment"
	"github.com/frahmantamala/dental-credit/internal/core/datamodel/paymentgateway"
)

const (
	StatusPending    = datamodel.StatusPending
	StatusProcessing = datamodel.StatusProcessing
	StatusCompleted  = datamodel.StatusCompleted
	StatusFailed     = datamodel.StatusFailed
	StatusCancelled  = datamodel.StatusCancelled

	TypeSingle      = datamodel.TypeSingle
	TypeInstallment = datamodel.TypeInstallment

	Currency = "brl"
)

var (
	ErrPaymentNotFound = errors.NewNotFoundError("payment not found", errors.ErrCodePaymentNotFound)
	ErrNotDispatchable = errors.NewConflictError("credit request is not approved for payment", errors.ErrCodeInvalidStatusTransition)
	ErrNotCancelable   = errors.NewConflictError("only open installment payments can be cancelled", errors.ErrCodePaymentNotCancelable)

	// ErrDuplicatePending is returned by RepositoryAPI.Create when the request already holds a pending payment.
	ErrDuplicatePending = stderrors.New("pending payment already exists for credit request")
)

type Payment struct {
	ID                      int64     `json:"id"`
	CreditRequestID         int64     `json:"credit_request_id"`
	ProcessorPaymentID      *string   `json:"processor_payment_id,omitempty"`
	ProcessorSubscriptionID *string   `json:"processor_subscription_id,omitempty"`
	Amount                  float64   `json:"amount"`
	Installments            int       `json:"installments"`
	InstallmentAmount       float64   `json:"installment_amount"`
	PaymentType             string    `json:"payment_type"`
	Status                  string    `json:"status"`
	FailureReason           *string   `json:"failure_reason,omitempty"`
	PaymentURL              string    `json:"payment_url"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// DispatchResult is what the patient needs to complete a payment.
type DispatchResult struct {
	PaymentID    int64  `json:"payment_id"`
	ProcessorID  string `json:"processor_id"`
	PaymentType  string `json:"payment_type"`
	ClientSecret string `json:"client_secret,omitempty"`
	PaymentURL   string `json:"payment_url"`
}

type RepositoryAPI interface {
	Create(ctx context.Context, p *datamodel.CreditPayment) error
	GetByID(ctx context.Context, id int64) (*datamodel.CreditPayment, error)
	// FindPendingByRequest returns nil without error when the request has no pending payment.
	FindPendingByRequest(ctx context.Context, requestID int64) (*datamodel.CreditPayment, error)
	FindByProcessorID(ctx context.Context, processorID string) (*datamodel.CreditPayment, error)
	ListByRequest(ctx context.Context, requestID int64) ([]*datamodel.CreditPayment, error)
	ListOpenBefore(ctx context.Context, before time.Time, limit int) ([]*datamodel.CreditPayment, error)
	UpdateStatus(ctx context.Context, id int64, status string, failureReason *string, response []byte, at time.Time) error
}

// Processor is the external payment processor.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, req *paymentgateway.PaymentIntentRequest) (*paymentgateway.PaymentIntent, error)
	CreateInstallmentPlan(ctx context.Context, req *paymentgateway.SubscriptionRequest) (*paymentgateway.Subscription, error)
	// ConfirmPayment reports the processor's current view of an intent or subscription.
	ConfirmPayment(ctx context.Context, processorID string) (*paymentgateway.PaymentIntent, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// PaymentURL is the patient facing checkout path for a payment row.
func PaymentURL(p *datamodel.CreditPayment) string {
	if p.PaymentType == TypeInstallment {
		return "/payment/subscription/" + p.ProcessorID()
	}
	return "/payment/" + p.ProcessorID()
}

func FromDataModel(p *datamodel.CreditPayment) *Payment {
	return &Payment{
		ID:                      p.ID,
		CreditRequestID:         p.CreditRequestID,
		ProcessorPaymentID:      p.ProcessorPaymentID,
		ProcessorSubscriptionID: p.ProcessorSubscriptionID,
		Amount:                  p.Amount,
		Installments:            p.Installments,
		InstallmentAmount:       p.InstallmentAmount,
		PaymentType:             p.PaymentType,
		Status:                  p.Status,
		FailureReason:           p.FailureReason,
		PaymentURL:              PaymentURL(p),
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func ToRecord(p *datamodel.CreditPayment) map[string]interface{} {
	return map[string]interface{}{
		"id":                p.ID,
		"credit_request_id": p.CreditRequestID,
		"processor_id":      p.ProcessorID(),
		"amount":            p.Amount,
		"installments":      p.Installments,
		"payment_type":      p.PaymentType,
		"status":            p.Status,
		"updated_at":        p.UpdatedAt,
	}
}

// MapProcessorStatus translates a processor status string to a local payment status.
// Only a reported payment completes; an active or authorized plan has not charged anything yet.
// Unknown strings map to "".
func MapProcessorStatus(s string) string {
	switch s {
	case "succeeded", "completed", "approved", "paid", "success":
		return StatusCompleted
	case "processing", "in_process", "in_mediation", "active", "authorized":
		return StatusProcessing
	case "pending", "incomplete", "requires_payment_method", "requires_confirmation", "requires_action":
		return StatusPending
	case "failed", "rejected", "charged_back", "refunded":
		return StatusFailed
	case "canceled", "cancelled":
		return StatusCancelled
	default:
		return ""
	}
}

func metadataFor(requestID, patientID, clinicID int64) map[string]string {
	return map[string]string{
		"credit_request_id": strconv.FormatInt(requestID, 10),
		"patient_id":        strconv.FormatInt(patientID, 10),
		"clinic_id":         strconv.FormatInt(clinicID, 10),
	}
}

func descriptionFor(treatment string) string {
	return fmt.Sprintf("credit payment - %s", treatment)
}
