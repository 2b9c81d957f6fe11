package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/cache"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
)

type Requests interface {
	GetByID(ctx context.Context, id int64) (*datamodel.CreditRequest, error)
}

type Service struct {
	repo      RepositoryAPI
	requests  Requests
	storage   Storage
	maxSize   int64
	publisher events.Publisher
	clock     cache.Clock
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, requests Requests, storage Storage, maxSize int64, publisher events.Publisher, clock cache.Clock, logger *slog.Logger) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Service{
		repo:      repo,
		requests:  requests,
		storage:   storage,
		maxSize:   maxSize,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

func (s *Service) MaxSize() int64 { return s.maxSize }

// Upload stores body and its metadata. Only the request's patient or its clinic staff may upload.
func (s *Service) Upload(ctx context.Context, actor user.Actor, requestID int64, dto UploadDTO, body io.Reader) (*Document, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.PatientID && !actor.IsClinicMember(req.ClinicID) {
		return nil, errors.ErrUnauthorizedAccess
	}

	dto.Normalize()
	if err := dto.Validate(s.maxSize); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("credit-requests/%d/%s%s", requestID, uuid.NewString(), extension(dto.FileName))
	url, written, err := s.storage.Put(ctx, key, io.LimitReader(body, s.maxSize+1), dto.MimeType)
	if err != nil {
		return nil, errors.NewInternalError("failed to store document", err)
	}
	if written > s.maxSize {
		s.discard(ctx, key)
		return nil, errors.NewValidationFieldError("file_size", fmt.Sprintf("file_size must not exceed %d", s.maxSize), errors.ErrCodeInvalidDocument)
	}

	row := &datamodel.CreditDocument{
		CreditRequestID: requestID,
		UploadedBy:      actor.ID,
		DocumentType:    dto.DocumentType,
		FileName:        dto.FileName,
		FileURL:         url,
		StorageKey:      key,
		FileSize:        written,
		MimeType:        dto.MimeType,
		UploadedAt:      s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.discard(ctx, key)
		return nil, errors.NewInternalError("failed to save document", err)
	}

	s.logger.Info("document uploaded",
		"document_id", row.ID,
		"credit_request_id", requestID,
		"document_type", row.DocumentType,
		"file_size", row.FileSize,
		"user_id", actor.ID)
	s.publish(ctx, events.NewRecordChangedEvent("credit_documents", events.OpInsert, row.ID, ToRecord(row), row.UploadedAt))
	return FromDataModel(row), nil
}

func (s *Service) List(ctx context.Context, actor user.Actor, requestID int64) ([]*Document, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(req.PatientID, req.ClinicID) {
		return nil, errors.ErrUnauthorizedAccess
	}
	rows, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list documents", err)
	}
	out := make([]*Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out, nil
}

// Delete removes a document of the actor's own request and its stored body.
func (s *Service) Delete(ctx context.Context, actor user.Actor, id int64) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	req, err := s.requests.GetByID(ctx, doc.CreditRequestID)
	if err != nil {
		return err
	}
	if actor.ID != req.PatientID {
		return errors.ErrUnauthorizedAccess
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.NewInternalError("failed to delete document", err)
	}
	s.discard(ctx, doc.StorageKey)

	s.logger.Info("document deleted", "document_id", id, "user_id", actor.ID)
	s.publish(ctx, events.NewRecordChangedEvent("credit_documents", events.OpDelete, id, ToRecord(doc), s.clock.Now().UTC()))
	return nil
}

func (s *Service) Verify(ctx context.Context, actor user.Actor, id int64) (*Document, error) {
	if !actor.IsAdmin() && !actor.HasPermission(auth.PermVerifyDocuments) {
		return nil, errors.ErrUnauthorizedAccess
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkVerified(ctx, id); err != nil {
		return nil, errors.NewInternalError("failed to verify document", err)
	}
	doc.Verified = true

	s.logger.Info("document verified", "document_id", id, "user_id", actor.ID)
	s.publish(ctx, events.NewRecordChangedEvent("credit_documents", events.OpUpdate, id, ToRecord(doc), s.clock.Now().UTC()))
	return FromDataModel(doc), nil
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove stored document", "storage_key", key, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", "event_type", e.EventType(), "error", err)
	}
}
