package offer

import (
	"context"
	"fmt"
	"strings"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
)

// MaxOffersPerRequest bounds one submitted batch.
const MaxOffersPerRequest = 4

// DefaultPreviewRate is used by Summary when a request has no offers yet.
const DefaultPreviewRate = 2.5

var (
	ErrNoValidOffers = errors.NewValidationError("at least one valid offer is required", errors.ErrCodeNoValidOffers)
	ErrTooManyOffers = errors.NewValidationError(fmt.Sprintf("at most %d offers may be submitted", MaxOffersPerRequest), errors.ErrCodeTooManyOffers)
	ErrOfferNotFound = errors.NewNotFoundError("credit offer not found", errors.ErrCodeOfferNotFound)
)

type Offer struct {
	ID              int64     `json:"id"`
	CreditRequestID int64     `json:"credit_request_id"`
	BankName        string    `json:"bank_name"`
	ApprovedAmount  float64   `json:"approved_amount"`
	InterestRate    float64   `json:"interest_rate"`
	Installments    int       `json:"installments"`
	Conditions      *string   `json:"conditions,omitempty"`
	MonthlyPayment  float64   `json:"monthly_payment"`
	TotalAmount     float64   `json:"total_amount"`
	CreatedAt       time.Time `json:"created_at"`
}

// Input is one offer row as typed by the admin. Invalid rows are dropped, not rejected.
type Input struct {
	BankName       string  `json:"bank_name"`
	ApprovedAmount float64 `json:"approved_amount"`
	InterestRate   float64 `json:"interest_rate"`
	Installments   int     `json:"installments"`
	Conditions     *string `json:"conditions,omitempty"`
}

func (in Input) valid() bool {
	return strings.TrimSpace(in.BankName) != "" &&
		in.ApprovedAmount > 0 &&
		in.InterestRate > 0 &&
		in.Installments > 0
}

type SubmitDTO struct {
	Offers []Input `json:"offers"`
}

type PreviewDTO struct {
	Amount       float64 `json:"amount"`
	InterestRate float64 `json:"interest_rate"`
	Installments int     `json:"installments"`
}

// Summary is the dashboard view of a request's offers.
type Summary struct {
	CreditRequestID   int64   `json:"credit_request_id"`
	MaxApprovedAmount float64 `json:"max_approved_amount"`
	BestOffer         *Offer  `json:"best_offer,omitempty"`
	InterestRate      float64 `json:"interest_rate"`
	MonthlyPayment    float64 `json:"monthly_payment"`
	TotalAmount       float64 `json:"total_amount"`
}

type RepositoryAPI interface {
	// ReplaceForRequest deletes every stored offer of the request, inserts rows and returns the deleted ones.
	ReplaceForRequest(ctx context.Context, requestID int64, rows []*datamodel.CreditOffer) ([]*datamodel.CreditOffer, error)
	ListByRequest(ctx context.Context, requestID int64) ([]*datamodel.CreditOffer, error)
	GetByID(ctx context.Context, id int64) (*datamodel.CreditOffer, error)
}

func FromDataModel(o *datamodel.CreditOffer) *Offer {
	return &Offer{
		ID:              o.ID,
		CreditRequestID: o.CreditRequestID,
		BankName:        o.BankName,
		ApprovedAmount:  o.ApprovedAmount,
		InterestRate:    o.InterestRate,
		Installments:    o.Installments,
		Conditions:      o.Conditions,
		MonthlyPayment:  o.MonthlyPayment,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt,
	}
}

func ToRecord(o *datamodel.CreditOffer) map[string]interface{} {
	return map[string]interface{}{
		"id":                o.ID,
		"credit_request_id": o.CreditRequestID,
		"bank_name":         o.BankName,
		"approved_amount":   o.ApprovedAmount,
		"interest_rate":     o.InterestRate,
		"installments":      o.Installments,
		"monthly_payment":   o.MonthlyPayment,
		"total_amount":      o.TotalAmount,
		"created_at":        o.CreatedAt,
	}
}

// MaxApproved returns the highest approved amount and the first offer holding it. Zero and nil when offers is empty.
func MaxApproved(offers []*Offer) (float64, *Offer) {
	var (
		max  float64
		best *Offer
	)
	for _, o := range offers {
		if o.ApprovedAmount > max {
			max = o.ApprovedAmount
			best = o
		}
	}
	return max, best
}
