package credit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/cache"
	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	ndatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/notification"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Notifier stores notification drafts inside a transaction and announces them after commit.
type Notifier interface {
	Record(ctx context.Context, drafts ...notification.Draft) ([]*ndatamodel.Notification, error)
	Announce(ctx context.Context, rows []*ndatamodel.Notification)
}

// Directory answers the user lookups the notifications need.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
	ClinicUserIDs(ctx context.Context, clinicID int64) ([]int64, error)
}

// Transition is one requested status change.
type Transition struct {
	RequestID       int64
	To              Status
	Action          Action
	Comments        string
	AnalysisType    string
	SelectedOfferID *int64
}

// SideEffects runs inside the transition's transaction after the status write and returns the notifications to store.
type SideEffects func(ctx context.Context, req *datamodel.CreditRequest) ([]notification.Draft, error)

type Service struct {
	repo      RepositoryAPI
	tx        database.TxManager
	notifier  Notifier
	directory Directory
	cache     cache.Cache
	cacheTTL  time.Duration
	publisher events.Publisher
	clock     cache.Clock
	logger    *slog.Logger
}

type Deps struct {
	Repo      RepositoryAPI
	Tx        database.TxManager
	Notifier  Notifier
	Directory Directory
	Cache     cache.Cache
	CacheTTL  time.Duration
	Publisher events.Publisher
	Clock     cache.Clock
	Logger    *slog.Logger
}

func NewService(d Deps) *Service {
	clock := d.Clock
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Service{
		repo:      d.Repo,
		tx:        d.Tx,
		notifier:  d.Notifier,
		directory: d.Directory,
		cache:     d.Cache,
		cacheTTL:  d.CacheTTL,
		publisher: d.Publisher,
		clock:     clock,
		logger:    d.Logger,
	}
}

func (s *Service) CreateRequest(ctx context.Context, actor user.Actor, dto *CreateRequestDTO) (*CreditRequest, error) {
	dto.Normalize()

	switch {
	case actor.IsPatient():
		if dto.PatientID != 0 && dto.PatientID != actor.ID {
			return nil, errors.ErrUnauthorizedAccess
		}
		dto.PatientID = actor.ID
	case actor.IsAdmin(), actor.IsClinicMember(dto.ClinicID):
		if dto.PatientID == 0 {
			return nil, errors.NewValidationFieldError("patient_id", "patient_id is required", errors.ErrCodeValidationFailed)
		}
	default:
		return nil, errors.ErrUnauthorizedAccess
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	row := &datamodel.CreditRequest{
		PatientID:            dto.PatientID,
		ClinicID:             dto.ClinicID,
		RequestedAmount:      dto.RequestedAmount,
		Installments:         dto.Installments,
		TreatmentDescription: dto.TreatmentDescription,
		Status:               string(StatusPending),
		Notes:                dto.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, errors.NewInternalError("failed to create credit request", err)
	}

	s.logger.Info("credit request created",
		"credit_request_id", row.ID,
		"patient_id", row.PatientID,
		"clinic_id", row.ClinicID,
		"amount", row.RequestedAmount)

	s.publish(ctx, events.NewRecordChangedEvent("credit_requests", events.OpInsert, row.ID, ToRecord(row), row.UpdatedAt))
	return FromDataModel(row), nil
}

// GetRequest reads through the cache and enforces view access.
func (s *Service) GetRequest(ctx context.Context, actor user.Actor, id int64) (*CreditRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(req.PatientID, req.ClinicID) {
		s.logger.Warn("credit request access denied", "credit_request_id", id, "user_id", actor.ID)
		return nil, errors.ErrUnauthorizedAccess
	}
	return req, nil
}

func (s *Service) load(ctx context.Context, id int64) (*CreditRequest, error) {
	key := cache.RequestKey(id)
	var cached CreditRequest
	hit, err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if hit {
		return &cached, nil
	}

	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req := FromDataModel(row)
	if err := cache.SetJSON(ctx, s.cache, key, req, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return req, nil
}

func (s *Service) ListRequests(ctx context.Context, actor user.Actor, filter ListFilter) ([]*CreditRequest, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsClinicStaff():
		if filter.ClinicID != 0 && !actor.IsClinicMember(filter.ClinicID) {
			return nil, errors.ErrUnauthorizedAccess
		}
		if filter.ClinicID == 0 {
			filter.ClinicIDs = actor.ClinicIDs
		}
	default:
		filter.PatientID = actor.ID
	}

	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, errors.NewInternalError("failed to list credit requests", err)
	}
	out := make([]*CreditRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out, nil
}

func (s *Service) ClinicDecision(ctx context.Context, actor user.Actor, id int64, dto DecisionDTO) (*CreditRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	to := StatusClinicRejected
	if dto.Decision == DecisionApproved {
		to = StatusClinicApproved
	}
	t := Transition{RequestID: id, To: to, Action: ActionClinicDecision, Comments: dto.Comments, AnalysisType: AnalysisClinic}

	return s.Apply(ctx, actor, t, func(_ context.Context, req *datamodel.CreditRequest) ([]notification.Draft, error) {
		return []notification.Draft{
			notification.ClinicDecisionForPatient(req.PatientID, req.ID, dto.Decision, strings.TrimSpace(dto.Comments)),
		}, nil
	})
}

func (s *Service) StartAdminAnalysis(ctx context.Context, actor user.Actor, id int64) (*CreditRequest, error) {
	t := Transition{RequestID: id, To: StatusAdminAnalyzing, Action: ActionStartAnalysis}
	return s.Apply(ctx, actor, t, s.adminDrafts(notification.OutcomeAnalyzing, ""))
}

func (s *Service) AdminDecision(ctx context.Context, actor user.Actor, id int64, dto DecisionDTO) (*CreditRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	to := StatusAdminRejected
	if dto.Decision == DecisionApproved {
		to = StatusAdminApproved
	}
	t := Transition{RequestID: id, To: to, Action: ActionAdminDecision, Comments: dto.Comments, AnalysisType: AnalysisAdmin}
	return s.Apply(ctx, actor, t, s.adminDrafts(dto.Decision, strings.TrimSpace(dto.Comments)))
}

func (s *Service) PatientDecision(ctx context.Context, actor user.Actor, id int64, dto PatientDecisionDTO) (*CreditRequest, error) {
	to := StatusPatientRejected
	if dto.Accept {
		to = StatusPatientAccepted
	}
	t := Transition{RequestID: id, To: to, Action: ActionPatientDecision}

	return s.Apply(ctx, actor, t, func(ctx context.Context, req *datamodel.CreditRequest) ([]notification.Draft, error) {
		ids, name, err := s.ClinicAudience(ctx, req)
		if err != nil {
			return nil, err
		}
		return notification.PatientDecisionForClinic(ids, req.ID, name, dto.Accept), nil
	})
}

func (s *Service) ListAnalyses(ctx context.Context, actor user.Actor, id int64) ([]*Analysis, error) {
	if _, err := s.GetRequest(ctx, actor, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListAnalyses(ctx, id)
	if err != nil {
		return nil, errors.NewInternalError("failed to list credit analyses", err)
	}
	out := make([]*Analysis, 0, len(rows))
	for _, r := range rows {
		out = append(out, AnalysisFromDataModel(r))
	}
	return out, nil
}

// ClinicAudience returns the clinic users of req and the patient's display name.
func (s *Service) ClinicAudience(ctx context.Context, req *datamodel.CreditRequest) ([]int64, string, error) {
	ids, err := s.directory.ClinicUserIDs(ctx, req.ClinicID)
	if err != nil {
		return nil, "", err
	}
	name, err := s.directory.DisplayName(ctx, req.PatientID)
	if err != nil {
		return nil, "", err
	}
	return ids, name, nil
}

func (s *Service) adminDrafts(outcome, reason string) SideEffects {
	return func(ctx context.Context, req *datamodel.CreditRequest) ([]notification.Draft, error) {
		ids, name, err := s.ClinicAudience(ctx, req)
		if err != nil {
			return nil, err
		}
		drafts := []notification.Draft{notification.AdminDecisionForPatient(req.PatientID, req.ID, outcome, reason)}
		return append(drafts, notification.AdminDecisionForClinic(ids, req.ID, name, outcome, reason)...), nil
	}
}

// Apply performs a status change, its audit row and its notifications in one transaction,
// then invalidates the cache and publishes the change.
func (s *Service) Apply(ctx context.Context, actor user.Actor, t Transition, effects SideEffects) (*CreditRequest, error) {
	var (
		req   *datamodel.CreditRequest
		from  Status
		notes []*ndatamodel.Notification
	)

	err := s.tx.Begin(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetByID(txCtx, t.RequestID)
		if err != nil {
			return err
		}
		if err := authorize(actor, t.Action, row); err != nil {
			return err
		}

		from = Status(row.Status)
		rule, err := CheckTransition(from, t.To, t.Action)
		if err != nil {
			return err
		}
		if rule.CommentRequired && strings.TrimSpace(t.Comments) == "" {
			return errors.NewValidationFieldError("comments", "comments are required for this decision", errors.ErrCodeCommentRequired)
		}

		now := s.clock.Now().UTC()
		if now.Before(row.UpdatedAt) {
			now = row.UpdatedAt
		}
		affected, err := s.repo.UpdateStatus(txCtx, row.ID, from, t.To, nil, now)
		if err != nil {
			return errors.NewInternalError("failed to update credit request status", err)
		}
		if affected == 0 {
			return ErrStatusChanged
		}
		row.Status = string(t.To)
		row.UpdatedAt = now

		if t.AnalysisType != "" {
			analysis := &datamodel.CreditAnalysis{
				CreditRequestID: row.ID,
				AnalystID:       actor.ID,
				AnalysisType:    t.AnalysisType,
				Decision:        decisionFor(t.To),
				Comments:        strings.TrimSpace(t.Comments),
				CreatedAt:       now,
			}
			if err := s.repo.CreateAnalysis(txCtx, analysis); err != nil {
				return errors.NewInternalError("failed to record credit analysis", err)
			}
		}

		if effects != nil {
			drafts, err := effects(txCtx, row)
			if err != nil {
				return err
			}
			if notes, err = s.notifier.Record(txCtx, drafts...); err != nil {
				return err
			}
		}

		req = row
		return nil
	})
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, errors.NewInternalError("credit request transition failed", err)
	}

	s.logger.Info("credit request status changed",
		"credit_request_id", req.ID,
		"from", from,
		"to", t.To,
		"action", t.Action,
		"user_id", actor.ID)

	s.Invalidate(ctx, req.ID)
	s.notifier.Announce(ctx, notes)
	s.publish(ctx, events.NewCreditStatusChangedEvent(req.ID, string(from), string(t.To), actor.ID, t.SelectedOfferID))
	s.publish(ctx, events.NewRecordChangedEvent("credit_requests", events.OpUpdate, req.ID, ToRecord(req), req.UpdatedAt))

	return FromDataModel(req), nil
}

// Invalidate drops every cached view of the request.
func (s *Service) Invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(ctx, cache.RequestKey(id), cache.OffersKey(id)); err != nil {
		s.logger.Warn("cache invalidation failed", "credit_request_id", id, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", "event_type", e.EventType(), "error", err)
	}
}

func decisionFor(to Status) string {
	switch to {
	case StatusClinicRejected, StatusAdminRejected:
		return DecisionRejected
	}
	return DecisionApproved
}

func authorize(actor user.Actor, action Action, req *datamodel.CreditRequest) error {
	allowed := false
	switch action {
	case ActionClinicDecision:
		allowed = actor.IsClinicMember(req.ClinicID)
	case ActionSendToPatient, ActionSelectOffer:
		allowed = actor.IsAdmin() || actor.IsClinicMember(req.ClinicID)
	case ActionStartAnalysis, ActionAdminDecision:
		allowed = actor.IsAdmin() || actor.HasPermission(auth.PermAdminDecision)
	case ActionSubmitOffers:
		allowed = actor.IsAdmin() || actor.HasPermission(auth.PermSubmitOffers)
	case ActionPatientDecision:
		allowed = actor.ID == req.PatientID
	}
	if !allowed {
		return errors.ErrUnauthorizedAccess
	}
	return nil
}
