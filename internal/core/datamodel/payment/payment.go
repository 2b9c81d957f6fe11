package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"

	TypeSingle      = "single"
	TypeInstallment = "installment"
)

type CreditPayment struct {
	ID                      int64           `gorm:"primaryKey"`
	CreditRequestID         int64           `gorm:"column:credit_request_id;not null;index"`
	ProcessorPaymentID      *string         `gorm:"column:processor_payment_id"`
	ProcessorSubscriptionID *string         `gorm:"column:processor_subscription_id"`
	Amount                  float64         `gorm:"column:amount;not null"`
	Installments            int             `gorm:"column:installments;not null"`
	InstallmentAmount       float64         `gorm:"column:installment_amount;not null"`
	PaymentType             string          `gorm:"column:payment_type;not null"`
	Status                  string          `gorm:"column:status;not null;default:pending"`
	FailureReason           *string         `gorm:"column:failure_reason"`
	ProcessorResponse       json.RawMessage `gorm:"column:processor_response;type:jsonb"`
	CreatedAt               time.Time       `gorm:"column:created_at"`
	UpdatedAt               time.Time       `gorm:"column:updated_at"`
}

func (CreditPayment) TableName() string { return "credit_payments" }

// ProcessorID is the subscription id for installment plans and the intent id otherwise.
func (p *CreditPayment) ProcessorID() string {
	if p.PaymentType == TypeInstallment && p.ProcessorSubscriptionID != nil {
		return *p.ProcessorSubscriptionID
	}
	if p.ProcessorPaymentID != nil {
		return *p.ProcessorPaymentID
	}
	return ""
}

func (p *CreditPayment) IsOpen() bool {
	return p.Status == StatusPending || p.Status == StatusProcessing
}
