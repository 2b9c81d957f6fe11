package notification

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
)

type ServiceAPI interface {
	List(ctx context.Context, actor user.Actor, unreadOnly bool) ([]*Notification, error)
	UnreadCount(ctx context.Context, actor user.Actor) (int64, error)
	MarkRead(ctx context.Context, actor user.Actor, id int64) error
	MarkAllRead(ctx context.Context, actor user.Actor) (int64, error)
	Delete(ctx context.Context, actor user.Actor, id int64) error
}

type Service struct {
	repo      RepositoryAPI
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// Record stores drafts through the repository. Called inside the caller's transaction.
func (s *Service) Record(ctx context.Context, drafts ...Draft) ([]*datamodel.Notification, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	rows := make([]*datamodel.Notification, 0, len(drafts))
	for _, d := range drafts {
		rows = append(rows, d.toDataModel())
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return nil, errors.NewInternalError("failed to create notifications", err)
	}
	return rows, nil
}

// Announce publishes stored notifications. Call only after the transaction committed.
func (s *Service) Announce(ctx context.Context, rows []*datamodel.Notification) {
	for _, n := range rows {
		if err := s.publisher.Publish(ctx, events.NewNotificationCreatedEvent(n.ID, n.UserID, n.Title, n.Message)); err != nil {
			s.logger.Warn("failed to publish notification event", "notification_id", n.ID, "error", err)
		}
		if err := s.publisher.Publish(ctx, events.NewRecordChangedEvent("notifications", events.OpInsert, n.ID, ToRecord(n), n.CreatedAt)); err != nil {
			s.logger.Warn("failed to publish notification change", "notification_id", n.ID, "error", err)
		}
	}
}

func (s *Service) List(ctx context.Context, actor user.Actor, unreadOnly bool) ([]*Notification, error) {
	rows, err := s.repo.ListByUser(ctx, actor.ID, unreadOnly)
	if err != nil {
		return nil, errors.NewInternalError("failed to list notifications", err)
	}
	out := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, actor user.Actor) (int64, error) {
	n, err := s.repo.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, errors.NewInternalError("failed to count notifications", err)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, actor user.Actor, id int64) error {
	n, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return errors.NewInternalError("failed to mark notification read", err)
	}
	n.Read = true
	s.publishChange(ctx, events.OpUpdate, n)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor user.Actor) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return 0, errors.NewInternalError("failed to mark notifications read", err)
	}
	s.logger.Info("notifications marked read", "user_id", actor.ID, "count", updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor user.Actor, id int64) error {
	n, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.NewInternalError("failed to delete notification", err)
	}
	s.publishChange(ctx, events.OpDelete, n)
	return nil
}

func (s *Service) owned(ctx context.Context, actor user.Actor, id int64) (*datamodel.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != actor.ID {
		s.logger.Warn("notification access denied", "notification_id", id, "user_id", actor.ID)
		return nil, errors.ErrUnauthorizedAccess
	}
	return n, nil
}

func (s *Service) publishChange(ctx context.Context, op string, n *datamodel.Notification) {
	if err := s.publisher.Publish(ctx, events.NewRecordChangedEvent("notifications", op, n.ID, ToRecord(n), n.CreatedAt)); err != nil {
		s.logger.Warn("failed to publish notification change", "notification_id", n.ID, "error", err)
	}
}
