package clinic

import (
	"strings"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/core/common/validation"
)

type CreateClinicDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	City  string `json:"city"`
	State string `json:"state"`
}

func (d *CreateClinicDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Phone = strings.TrimSpace(d.Phone)
	d.City = strings.TrimSpace(d.City)
	d.State = strings.ToUpper(strings.TrimSpace(d.State))
}

func (d CreateClinicDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).
		RequiredWithCode(errors.ErrCodeValidationFailed).
		MaxLength(255)
	v.Field("city", d.City).MaxLength(120)
	if d.State != "" {
		v.Field("state", d.State).MaxLength(2)
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type MemberDTO struct {
	UserID int64 `json:"user_id"`
}

type ClinicsResponse struct {
	Clinics []*Clinic `json:"clinics"`
}
