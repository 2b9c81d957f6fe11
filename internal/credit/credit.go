package credit

import (
	"context"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
)

const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"

	AnalysisClinic = "clinic"
	AnalysisAdmin  = "admin"
)

var (
	ErrRequestNotFound = errors.NewNotFoundError("credit request not found", errors.ErrCodeCreditRequestNotFound)
	ErrStatusChanged   = errors.NewConflictError("credit request was changed by another user, reload and try again", errors.ErrCodeStatusChanged)
)

type CreditRequest struct {
	ID                   int64     `json:"id"`
	PatientID            int64     `json:"patient_id"`
	ClinicID             int64     `json:"clinic_id"`
	RequestedAmount      float64   `json:"requested_amount"`
	Installments         int       `json:"installments"`
	TreatmentDescription string    `json:"treatment_description"`
	Status               Status    `json:"status"`
	StatusLabel          string    `json:"status_label"`
	Notes                *string   `json:"notes,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type Analysis struct {
	ID              int64     `json:"id"`
	CreditRequestID int64     `json:"credit_request_id"`
	AnalystID       int64     `json:"analyst_id"`
	AnalysisType    string    `json:"analysis_type"`
	Decision        string    `json:"decision"`
	Comments        string    `json:"comments"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListFilter narrows ListRequests. Role scoping is applied on top of it.
type ListFilter struct {
	Status    Status
	ClinicID  int64
	PatientID int64
	ClinicIDs []int64
	Limit     int
	Offset    int
}

type RepositoryAPI interface {
	Create(ctx context.Context, req *datamodel.CreditRequest) error
	GetByID(ctx context.Context, id int64) (*datamodel.CreditRequest, error)
	List(ctx context.Context, filter ListFilter) ([]*datamodel.CreditRequest, error)
	// UpdateStatus moves id from -> to only while the stored status still equals from.
	UpdateStatus(ctx context.Context, id int64, from, to Status, notes *string, at time.Time) (int64, error)
	CreateAnalysis(ctx context.Context, a *datamodel.CreditAnalysis) error
	ListAnalyses(ctx context.Context, requestID int64) ([]*datamodel.CreditAnalysis, error)
}

func FromDataModel(r *datamodel.CreditRequest) *CreditRequest {
	st := Status(r.Status)
	return &CreditRequest{
		ID:                   r.ID,
		PatientID:            r.PatientID,
		ClinicID:             r.ClinicID,
		RequestedAmount:      r.RequestedAmount,
		Installments:         r.Installments,
		TreatmentDescription: r.TreatmentDescription,
		Status:               st,
		StatusLabel:          st.Label(),
		Notes:                r.Notes,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func AnalysisFromDataModel(a *datamodel.CreditAnalysis) *Analysis {
	return &Analysis{
		ID:              a.ID,
		CreditRequestID: a.CreditRequestID,
		AnalystID:       a.AnalystID,
		AnalysisType:    a.AnalysisType,
		Decision:        a.Decision,
		Comments:        a.Comments,
		CreatedAt:       a.CreatedAt,
	}
}

// ToRecord is the shape pushed to realtime subscribers.
func ToRecord(r *datamodel.CreditRequest) map[string]interface{} {
	rec := map[string]interface{}{
		"id":                    r.ID,
		"patient_id":            r.PatientID,
		"clinic_id":             r.ClinicID,
		"requested_amount":      r.RequestedAmount,
		"installments":          r.Installments,
		"treatment_description": r.TreatmentDescription,
		"status":                r.Status,
		"created_at":            r.CreatedAt,
		"updated_at":            r.UpdatedAt,
	}
	if r.Notes != nil {
		rec["notes"] = *r.Notes
	}
	return rec
}
