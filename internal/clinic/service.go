package clinic

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/cache"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/core/user"
)

type Service struct {
	repo   RepositoryAPI
	clock  cache.Clock
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, clock cache.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Service{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// List returns the clinics patients can file requests with. Admins may include inactive ones.
func (s *Service) List(ctx context.Context, actor user.Actor, includeInactive bool) ([]*Clinic, error) {
	activeOnly := !(includeInactive && actor.IsAdmin())
	rows, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("failed to list clinics", "error", err)
		return nil, errors.NewInternalError("failed to list clinics", err)
	}

	out := make([]*Clinic, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	s.logger.Info("retrieved clinics", "count", len(out))
	return out, nil
}

func (s *Service) Get(ctx context.Context, actor user.Actor, id int64) (*Clinic, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !row.IsActive && !actor.IsAdmin() && !actor.IsClinicMember(id) {
		return nil, ErrClinicNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, actor user.Actor, dto *CreateClinicDTO) (*Clinic, error) {
	if !actor.IsAdmin() {
		return nil, errors.ErrUnauthorizedAccess
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	row := &datamodel.Clinic{
		Name:      dto.Name,
		Email:     dto.Email,
		Phone:     dto.Phone,
		City:      dto.City,
		State:     dto.State,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, errors.NewInternalError("failed to create clinic", err)
	}

	s.logger.Info("clinic created", "clinic_id", row.ID, "user_id", actor.ID)
	return FromDataModel(row), nil
}

// SetActive hides or restores a clinic in the patient facing directory. Existing requests are untouched.
func (s *Service) SetActive(ctx context.Context, actor user.Actor, id int64, active bool) (*Clinic, error) {
	if !actor.IsAdmin() {
		return nil, errors.ErrUnauthorizedAccess
	}
	if err := s.repo.SetActive(ctx, id, active, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("clinic activation changed", "clinic_id", id, "active", active, "user_id", actor.ID)
	return FromDataModel(row), nil
}

func (s *Service) Members(ctx context.Context, actor user.Actor, clinicID int64) ([]int64, error) {
	if !actor.IsAdmin() && !actor.IsClinicMember(clinicID) {
		return nil, errors.ErrUnauthorizedAccess
	}
	if _, err := s.repo.GetByID(ctx, clinicID); err != nil {
		return nil, err
	}
	ids, err := s.repo.MemberIDs(ctx, clinicID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list clinic members", err)
	}
	return ids, nil
}

// AddMember links a clinic staff account to a clinic. Adding an existing member is a no-op.
func (s *Service) AddMember(ctx context.Context, actor user.Actor, clinicID, userID int64) error {
	if !actor.IsAdmin() {
		return errors.ErrUnauthorizedAccess
	}
	if _, err := s.repo.GetByID(ctx, clinicID); err != nil {
		return err
	}
	role, err := s.repo.UserRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != user.RoleClinic {
		return errors.NewValidationFieldError("user_id", "only clinic accounts can join a clinic", errors.ErrCodeValidationFailed)
	}
	if err := s.repo.AddMember(ctx, clinicID, userID); err != nil {
		return errors.NewInternalError("failed to add clinic member", err)
	}
	s.logger.Info("clinic member added", "clinic_id", clinicID, "member_id", userID, "user_id", actor.ID)
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, actor user.Actor, clinicID, userID int64) error {
	if !actor.IsAdmin() {
		return errors.ErrUnauthorizedAccess
	}
	if err := s.repo.RemoveMember(ctx, clinicID, userID); err != nil {
		return err
	}
	s.logger.Info("clinic member removed", "clinic_id", clinicID, "member_id", userID, "user_id", actor.ID)
	return nil
}
