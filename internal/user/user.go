package user

import (
	"context"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	userDatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/user"
)

var ErrNotFound = errors.NewNotFoundError("user not found", errors.ErrCodeUserNotFound)

type Clinic struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Phone       *string   `json:"phone,omitempty"`
	IsActive    bool      `json:"is_active"`
	Permissions []string  `json:"permissions"`
	Clinics     []Clinic  `json:"clinics"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	GetByID(ctx context.Context, userID int64) (*userDatamodel.User, error)
	GetPermissions(ctx context.Context, userID int64) ([]string, error)
	GetClinicsForUser(ctx context.Context, userID int64) ([]Clinic, error)
	ClinicUserIDs(ctx context.Context, clinicID int64) ([]int64, error)
	IsClinicMember(ctx context.Context, clinicID, userID int64) (bool, error)
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Phone:       u.Phone,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		Permissions: []string{},
		Clinics:     []Clinic{},
	}
}
