package credit

import (
	"strings"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/core/common/validation"
)

type CreateRequestDTO struct {
	PatientID            int64   `json:"patient_id"`
	ClinicID             int64   `json:"clinic_id"`
	RequestedAmount      float64 `json:"requested_amount"`
	Installments         int     `json:"installments"`
	TreatmentDescription string  `json:"treatment_description"`
	Notes                *string `json:"notes,omitempty"`
}

func (d *CreateRequestDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("clinic_id", d.ClinicID).Required()
	v.Field("requested_amount", d.RequestedAmount).Positive(errors.ErrCodeInvalidAmount)
	v.Field("installments", d.Installments).MinInt(1, errors.ErrCodeInvalidInstallment)
	v.Field("treatment_description", d.TreatmentDescription).
		RequiredWithCode(errors.ErrCodeInvalidDescription).
		MaxLength(1000)
	if d.Notes != nil {
		v.Field("notes", *d.Notes).MaxLength(2000)
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (d *CreateRequestDTO) Normalize() {
	d.TreatmentDescription = strings.TrimSpace(d.TreatmentDescription)
	if d.Notes != nil {
		trimmed := strings.TrimSpace(*d.Notes)
		if trimmed == "" {
			d.Notes = nil
		} else {
			d.Notes = &trimmed
		}
	}
}

// DecisionDTO carries a clinic or admin decision.
type DecisionDTO struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

func (d *DecisionDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("decision", d.Decision).
		RequiredWithCode(errors.ErrCodeInvalidDecision).
		OneOf([]string{DecisionApproved, DecisionRejected}, errors.ErrCodeInvalidDecision)
	v.Field("comments", d.Comments).
		RequiredWithCode(errors.ErrCodeCommentRequired).
		MaxLength(2000)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type PatientDecisionDTO struct {
	Accept bool `json:"accept"`
}
