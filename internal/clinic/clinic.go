package clinic

import (
	"context"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
)

var (
	ErrClinicNotFound = errors.NewNotFoundError("clinic not found", errors.ErrCodeClinicNotFound)
	ErrUserNotFound   = errors.NewNotFoundError("user not found", errors.ErrCodeUserNotFound)
	ErrNotAMember     = errors.NewNotFoundError("user is not a member of this clinic", errors.ErrCodeUserNotFound)
)

type Clinic struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type RepositoryAPI interface {
	List(ctx context.Context, activeOnly bool) ([]*datamodel.Clinic, error)
	GetByID(ctx context.Context, id int64) (*datamodel.Clinic, error)
	Create(ctx context.Context, c *datamodel.Clinic) error
	SetActive(ctx context.Context, id int64, active bool, at time.Time) error
	// UserRole returns the role of a user, or ErrUserNotFound.
	UserRole(ctx context.Context, userID int64) (string, error)
	AddMember(ctx context.Context, clinicID, userID int64) error
	RemoveMember(ctx context.Context, clinicID, userID int64) error
	MemberIDs(ctx context.Context, clinicID int64) ([]int64, error)
}

func FromDataModel(c *datamodel.Clinic) *Clinic {
	return &Clinic{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		City:      c.City,
		State:     c.State,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
	}
}
