package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/cache"
	"github.com/frahmantamala/dental-credit/internal/core/database"
	creditdm "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	ndatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/payment"
	"github.com/frahmantamala/dental-credit/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/notification"
	"github.com/frahmantamala/dental-credit/pkg/amortization"
)

// Requests loads credit requests. credit.RepositoryAPI satisfies it.
type Requests interface {
	GetByID(ctx context.Context, id int64) (*creditdm.CreditRequest, error)
}

type Notifier interface {
	Record(ctx context.Context, drafts ...notification.Draft) ([]*ndatamodel.Notification, error)
	Announce(ctx context.Context, rows []*ndatamodel.Notification)
}

type Service struct {
	repo      RepositoryAPI
	requests  Requests
	processor Processor
	tx        database.TxManager
	notifier  Notifier
	publisher events.Publisher
	clock     cache.Clock
	logger    *slog.Logger
}

type Deps struct {
	Repo      RepositoryAPI
	Requests  Requests
	Processor Processor
	Tx        database.TxManager
	Notifier  Notifier
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
		requests:  d.Requests,
		processor: d.Processor,
		tx:        d.Tx,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		clock:     clock,
		logger:    d.Logger,
	}
}

// Dispatch starts the payment of an approved request on behalf of its patient or an admin.
func (s *Service) Dispatch(ctx context.Context, actor user.Actor, requestID int64) (*DispatchResult, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !canOperate(actor, req) {
		return nil, errors.ErrUnauthorizedAccess
	}
	return s.ProcessApprovedCreditPayment(ctx, requestID)
}

// ProcessApprovedCreditPayment creates the processor side payment for an approved request.
// A request that already holds a pending payment gets that payment back without a processor call.
func (s *Service) ProcessApprovedCreditPayment(ctx context.Context, requestID int64) (*DispatchResult, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != string(credit.StatusAdminApproved) {
		return nil, ErrNotDispatchable
	}

	existing, err := s.repo.FindPendingByRequest(ctx, requestID)
	if err != nil {
		return nil, errors.NewInternalError("failed to look up pending payment", err)
	}
	if existing != nil {
		s.logger.Info("reusing pending payment", "credit_request_id", requestID, "payment_id", existing.ID)
		return resultFor(existing, ""), nil
	}

	now := s.clock.Now().UTC()
	row := &datamodel.CreditPayment{
		CreditRequestID: req.ID,
		Amount:          req.RequestedAmount,
		Installments:    req.Installments,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var clientSecret string
	if req.Installments <= 1 {
		clientSecret, err = s.createIntent(ctx, req, row)
	} else {
		clientSecret, err = s.createPlan(ctx, req, row, now)
	}
	if err != nil {
		s.logger.Error("payment processor call failed", "credit_request_id", requestID, "error", err)
		return nil, errors.NewExternalError("payment processor failed", errors.ErrCodeProcessorFailed, err)
	}

	if err := s.repo.Create(ctx, row); err != nil {
		if stderrors.Is(err, ErrDuplicatePending) {
			return s.concurrentWinner(ctx, row)
		}
		return nil, errors.NewInternalError("failed to store payment", err)
	}

	s.logger.Info("payment dispatched",
		"credit_request_id", requestID,
		"payment_id", row.ID,
		"payment_type", row.PaymentType,
		"processor_id", row.ProcessorID(),
		"amount", row.Amount)

	s.publish(ctx, events.NewRecordChangedEvent("credit_payments", events.OpInsert, row.ID, ToRecord(row), row.UpdatedAt))
	return resultFor(row, clientSecret), nil
}

func (s *Service) createIntent(ctx context.Context, req *creditdm.CreditRequest, row *datamodel.CreditPayment) (string, error) {
	intent, err := s.processor.CreatePaymentIntent(ctx, &paymentgateway.PaymentIntentRequest{
		Amount:         amortization.Cents(req.RequestedAmount),
		Currency:       Currency,
		Description:    descriptionFor(req.TreatmentDescription),
		Metadata:       metadataFor(req.ID, req.PatientID, req.ClinicID),
		IdempotencyKey: idempotencyKey(req.ID, req.UpdatedAt),
	})
	if err != nil {
		return "", err
	}
	row.PaymentType = TypeSingle
	row.Installments = 1
	row.InstallmentAmount = req.RequestedAmount
	row.ProcessorPaymentID = &intent.ID
	row.ProcessorResponse = marshal(intent)
	return intent.ClientSecret, nil
}

func (s *Service) createPlan(ctx context.Context, req *creditdm.CreditRequest, row *datamodel.CreditPayment, now time.Time) (string, error) {
	total := amortization.Cents(req.RequestedAmount)
	each, last := amortization.SplitCents(total, req.Installments)
	sub, err := s.processor.CreateInstallmentPlan(ctx, &paymentgateway.SubscriptionRequest{
		CreditRequestID:        req.ID,
		TotalAmount:            total,
		Installments:           req.Installments,
		InstallmentAmount:      each,
		FinalInstallmentAmount: last,
		StartDate:              now,
		Currency:               Currency,
	})
	if err != nil {
		return "", err
	}
	row.PaymentType = TypeInstallment
	row.InstallmentAmount = float64(each) / 100
	row.ProcessorSubscriptionID = &sub.ID
	if sub.LatestInvoice != "" {
		row.ProcessorPaymentID = &sub.LatestInvoice
	}
	row.ProcessorResponse = marshal(sub)
	return sub.ClientSecret, nil
}

// concurrentWinner answers a dispatch that lost the insert race with the row that won it.
func (s *Service) concurrentWinner(ctx context.Context, lost *datamodel.CreditPayment) (*DispatchResult, error) {
	winner, err := s.repo.FindPendingByRequest(ctx, lost.CreditRequestID)
	if err != nil || winner == nil {
		return nil, errors.NewConflictError("payment dispatch raced with another dispatch", errors.ErrCodeStatusChanged)
	}
	s.logger.Warn("concurrent payment dispatch",
		"credit_request_id", lost.CreditRequestID,
		"winner_payment_id", winner.ID,
		"orphan_processor_id", lost.ProcessorID())

	if lost.PaymentType == TypeInstallment && lost.ProcessorID() != winner.ProcessorID() {
		if err := s.processor.CancelSubscription(ctx, lost.ProcessorID()); err != nil {
			s.logger.Error("failed to cancel orphan subscription", "processor_id", lost.ProcessorID(), "error", err)
		}
	}
	return resultFor(winner, ""), nil
}

// UpdatePaymentStatus applies a processor reported status to the payment identified by its intent or subscription id.
func (s *Service) UpdatePaymentStatus(ctx context.Context, processorID, status, failureReason string, response []byte) (*Payment, error) {
	if !isLocalStatus(status) {
		return nil, errors.NewValidationFieldError("status", "unknown payment status", errors.ErrCodeValidationFailed)
	}

	var (
		row     *datamodel.CreditPayment
		from    string
		changed bool
		notes   []*ndatamodel.Notification
	)

	err := s.tx.Begin(ctx, func(txCtx context.Context) error {
		p, err := s.repo.FindByProcessorID(txCtx, processorID)
		if err != nil {
			return err
		}
		row, from = p, p.Status
		if p.Status == status {
			return nil
		}
		if !p.IsOpen() {
			s.logger.Warn("ignoring status for closed payment",
				"payment_id", p.ID,
				"current_status", p.Status,
				"reported_status", status)
			return nil
		}

		var reason *string
		if status == StatusFailed && failureReason != "" {
			reason = &failureReason
		}
		now := s.clock.Now().UTC()
		if now.Before(p.UpdatedAt) {
			now = p.UpdatedAt
		}
		if err := s.repo.UpdateStatus(txCtx, p.ID, status, reason, response, now); err != nil {
			return errors.NewInternalError("failed to update payment status", err)
		}
		p.Status, p.FailureReason, p.UpdatedAt = status, reason, now
		changed = true

		if status != StatusCompleted {
			return nil
		}
		req, err := s.requests.GetByID(txCtx, p.CreditRequestID)
		if err != nil {
			return err
		}
		notes, err = s.notifier.Record(txCtx, notification.PaymentConfirmed(req.PatientID, req.ID, p.Amount))
		return err
	})
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, errors.NewInternalError("payment status update failed", err)
	}
	if !changed {
		return FromDataModel(row), nil
	}

	s.logger.Info("payment status updated",
		"payment_id", row.ID,
		"credit_request_id", row.CreditRequestID,
		"from", from,
		"to", row.Status)

	s.notifier.Announce(ctx, notes)
	switch row.Status {
	case StatusCompleted:
		s.publish(ctx, events.NewPaymentCompletedEvent(row.ID, row.CreditRequestID, processorID, row.Amount))
	case StatusFailed:
		s.publish(ctx, events.NewPaymentFailedEvent(row.ID, row.CreditRequestID, processorID, failureReason))
	}
	s.publish(ctx, events.NewRecordChangedEvent("credit_payments", events.OpUpdate, row.ID, ToRecord(row), row.UpdatedAt))
	return FromDataModel(row), nil
}

// CancelSubscription stops an open installment plan at the processor and marks the payment cancelled.
func (s *Service) CancelSubscription(ctx context.Context, actor user.Actor, paymentID int64) (*Payment, error) {
	row, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, row.CreditRequestID)
	if err != nil {
		return nil, err
	}
	if !canOperate(actor, req) {
		return nil, errors.ErrUnauthorizedAccess
	}
	if row.PaymentType != TypeInstallment || !row.IsOpen() || row.ProcessorSubscriptionID == nil {
		return nil, ErrNotCancelable
	}

	if err := s.processor.CancelSubscription(ctx, *row.ProcessorSubscriptionID); err != nil {
		s.logger.Error("processor cancel failed", "payment_id", row.ID, "error", err)
		return nil, errors.NewExternalError("payment processor failed", errors.ErrCodeProcessorFailed, err)
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, row.ID, StatusCancelled, nil, nil, now); err != nil {
		return nil, errors.NewInternalError("failed to cancel payment", err)
	}
	row.Status, row.UpdatedAt = StatusCancelled, now

	s.logger.Info("installment plan cancelled", "payment_id", row.ID, "user_id", actor.ID)
	s.publish(ctx, events.NewRecordChangedEvent("credit_payments", events.OpUpdate, row.ID, ToRecord(row), row.UpdatedAt))
	return FromDataModel(row), nil
}

func (s *Service) GetPayments(ctx context.Context, actor user.Actor, requestID int64) ([]*Payment, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(req.PatientID, req.ClinicID) {
		return nil, errors.ErrUnauthorizedAccess
	}
	rows, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list payments", err)
	}
	out := make([]*Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", "event_type", e.EventType(), "error", err)
	}
}

// canOperate admits the request's patient, admins and payment operators.
func canOperate(actor user.Actor, req *creditdm.CreditRequest) bool {
	return actor.ID == req.PatientID || actor.IsAdmin() || actor.HasPermission(auth.PermDispatchPayments)
}

func isLocalStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func resultFor(p *datamodel.CreditPayment, clientSecret string) *DispatchResult {
	return &DispatchResult{
		PaymentID:    p.ID,
		ProcessorID:  p.ProcessorID(),
		PaymentType:  p.PaymentType,
		ClientSecret: clientSecret,
		PaymentURL:   PaymentURL(p),
	}
}

func idempotencyKey(requestID int64, approvedAt time.Time) string {
	return fmt.Sprintf("credit-%d-%d", requestID, approvedAt.UnixNano())
}

func marshal(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
