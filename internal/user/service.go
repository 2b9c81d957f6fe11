package user

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/dental-credit/internal"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetProfile returns the user with permissions and clinic memberships.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*User, error) {
	du, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := FromDataModel(du)

	perms, err := s.repo.GetPermissions(ctx, userID)
	if err != nil {
		return nil, errors.NewInternalError("failed to get user permissions", err)
	}
	if perms != nil {
		u.Permissions = perms
	}

	clinics, err := s.repo.GetClinicsForUser(ctx, userID)
	if err != nil {
		return nil, errors.NewInternalError("failed to get user clinics", err)
	}
	if clinics != nil {
		u.Clinics = clinics
	}

	return u, nil
}

// DisplayName falls back to the email when the name is blank.
func (s *Service) DisplayName(ctx context.Context, userID int64) (string, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Name != "" {
		return u.Name, nil
	}
	return u.Email, nil
}

func (s *Service) ClinicUserIDs(ctx context.Context, clinicID int64) ([]int64, error) {
	ids, err := s.repo.ClinicUserIDs(ctx, clinicID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list clinic users", err)
	}
	return ids, nil
}

func (s *Service) IsClinicMember(ctx context.Context, clinicID, userID int64) (bool, error) {
	ok, err := s.repo.IsClinicMember(ctx, clinicID, userID)
	if err != nil {
		return false, errors.NewInternalError("failed to check clinic membership", err)
	}
	return ok, nil
}

// EmailFor returns the address notifications for userID are sent to.
func (s *Service) EmailFor(ctx context.Context, userID int64) (string, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}
