package offer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/cache"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/notification"
	"github.com/frahmantamala/dental-credit/pkg/amortization"
)

// Requests is the part of the credit service the offers build on.
type Requests interface {
	GetRequest(ctx context.Context, actor user.Actor, id int64) (*credit.CreditRequest, error)
	Apply(ctx context.Context, actor user.Actor, t credit.Transition, effects credit.SideEffects) (*credit.CreditRequest, error)
	ClinicAudience(ctx context.Context, req *datamodel.CreditRequest) ([]int64, string, error)
}

type Service struct {
	repo      RepositoryAPI
	requests  Requests
	cache     cache.Cache
	cacheTTL  time.Duration
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, requests Requests, c cache.Cache, ttl time.Duration, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		requests:  requests,
		cache:     c,
		cacheTTL:  ttl,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitOffers replaces the offers of a request and approves it.
func (s *Service) SubmitOffers(ctx context.Context, actor user.Actor, requestID int64, inputs []Input) ([]*Offer, error) {
	rows, err := buildBatch(requestID, inputs)
	if err != nil {
		return nil, err
	}

	var removed []*datamodel.CreditOffer
	t := credit.Transition{RequestID: requestID, To: credit.StatusAdminApproved, Action: credit.ActionSubmitOffers}
	_, err = s.requests.Apply(ctx, actor, t, func(txCtx context.Context, req *datamodel.CreditRequest) ([]notification.Draft, error) {
		old, err := s.repo.ReplaceForRequest(txCtx, req.ID, rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to store credit offers", err)
		}
		removed = old
		ids, name, err := s.requests.ClinicAudience(txCtx, req)
		if err != nil {
			return nil, err
		}
		drafts := []notification.Draft{notification.AdminDecisionForPatient(req.PatientID, req.ID, notification.OutcomeApproved, "")}
		return append(drafts, notification.AdminDecisionForClinic(ids, req.ID, name, notification.OutcomeApproved, "")...), nil
	})
	if err != nil {
		return nil, err
	}

	// The replaced batch is announced as deleted before the new rows.
	for _, r := range removed {
		if err := s.publisher.Publish(ctx, events.NewRecordChangedEvent("credit_offers", events.OpDelete, r.ID, ToRecord(r), rows[0].CreatedAt)); err != nil {
			s.logger.Warn("failed to publish offer change", "offer_id", r.ID, "error", err)
		}
	}

	out := make([]*Offer, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
		if err := s.publisher.Publish(ctx, events.NewRecordChangedEvent("credit_offers", events.OpInsert, r.ID, ToRecord(r), r.CreatedAt)); err != nil {
			s.logger.Warn("failed to publish offer change", "offer_id", r.ID, "error", err)
		}
	}

	s.logger.Info("credit offers submitted", "credit_request_id", requestID, "count", len(out), "user_id", actor.ID)
	return out, nil
}

func buildBatch(requestID int64, inputs []Input) ([]*datamodel.CreditOffer, error) {
	var valid []Input
	for _, in := range inputs {
		if in.valid() {
			valid = append(valid, in)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoValidOffers
	}
	if len(valid) > MaxOffersPerRequest {
		return nil, ErrTooManyOffers
	}

	now := time.Now().UTC()
	rows := make([]*datamodel.CreditOffer, 0, len(valid))
	for _, in := range valid {
		res, err := amortization.Amortize(in.ApprovedAmount, in.InterestRate, in.Installments)
		if err != nil {
			return nil, errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
		}
		var conditions *string
		if in.Conditions != nil && strings.TrimSpace(*in.Conditions) != "" {
			c := strings.TrimSpace(*in.Conditions)
			conditions = &c
		}
		rows = append(rows, &datamodel.CreditOffer{
			CreditRequestID: requestID,
			BankName:        strings.TrimSpace(in.BankName),
			ApprovedAmount:  in.ApprovedAmount,
			InterestRate:    in.InterestRate,
			Installments:    in.Installments,
			Conditions:      conditions,
			MonthlyPayment:  res.MonthlyPayment,
			TotalAmount:     res.TotalAmount,
			CreatedAt:       now,
		})
	}
	return rows, nil
}

// ListOffers reads through the cache after checking the caller may see the request.
func (s *Service) ListOffers(ctx context.Context, actor user.Actor, requestID int64) ([]*Offer, error) {
	if _, err := s.requests.GetRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}
	return s.offers(ctx, requestID)
}

func (s *Service) offers(ctx context.Context, requestID int64) ([]*Offer, error) {
	key := cache.OffersKey(requestID)
	var cached []*Offer
	hit, err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if hit {
		return cached, nil
	}

	rows, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list credit offers", err)
	}
	out := make([]*Offer, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	if err := cache.SetJSON(ctx, s.cache, key, out, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return out, nil
}

// GetMaxApprovedAmount is the highest approved amount among the stored offers, 0 when there are none.
func (s *Service) GetMaxApprovedAmount(ctx context.Context, requestID int64) (float64, error) {
	offers, err := s.offers(ctx, requestID)
	if err != nil {
		return 0, err
	}
	max, _ := MaxApproved(offers)
	return max, nil
}

func (s *Service) BestOffer(ctx context.Context, actor user.Actor, requestID int64) (*Offer, error) {
	offers, err := s.ListOffers(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	_, best := MaxApproved(offers)
	if best == nil {
		return nil, ErrOfferNotFound
	}
	return best, nil
}

// Summary computes the installment shown next to a request: the best offer's figures,
// or the requested amount at DefaultPreviewRate when no offer exists.
func (s *Service) Summary(ctx context.Context, actor user.Actor, requestID int64) (*Summary, error) {
	req, err := s.requests.GetRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	offers, err := s.offers(ctx, requestID)
	if err != nil {
		return nil, err
	}

	max, best := MaxApproved(offers)
	sum := &Summary{CreditRequestID: requestID, MaxApprovedAmount: max, BestOffer: best}
	if best != nil {
		sum.InterestRate = best.InterestRate
		sum.MonthlyPayment = best.MonthlyPayment
		sum.TotalAmount = best.TotalAmount
		return sum, nil
	}

	res, err := amortization.Amortize(req.RequestedAmount, DefaultPreviewRate, req.Installments)
	if err != nil {
		return nil, errors.NewInternalError("failed to compute installment", err)
	}
	sum.InterestRate = DefaultPreviewRate
	sum.MonthlyPayment = res.MonthlyPayment
	sum.TotalAmount = res.TotalAmount
	return sum, nil
}

// SelectOffer records the clinic's choice and moves the request back to clinic_approved.
func (s *Service) SelectOffer(ctx context.Context, actor user.Actor, requestID, offerID int64) (*credit.CreditRequest, error) {
	o, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.CreditRequestID != requestID {
		return nil, ErrOfferNotFound
	}

	t := credit.Transition{
		RequestID:       requestID,
		To:              credit.StatusClinicApproved,
		Action:          credit.ActionSelectOffer,
		SelectedOfferID: &o.ID,
	}
	req, err := s.requests.Apply(ctx, actor, t, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit offer selected",
		"credit_request_id", requestID,
		"offer_id", o.ID,
		"bank_name", o.BankName,
		"user_id", actor.ID)
	return req, nil
}

func (s *Service) SendOffersToPatient(ctx context.Context, actor user.Actor, requestID int64) (*credit.CreditRequest, error) {
	t := credit.Transition{RequestID: requestID, To: credit.StatusSentToPatient, Action: credit.ActionSendToPatient}
	return s.requests.Apply(ctx, actor, t, func(txCtx context.Context, req *datamodel.CreditRequest) ([]notification.Draft, error) {
		rows, err := s.repo.ListByRequest(txCtx, req.ID)
		if err != nil {
			return nil, errors.NewInternalError("failed to list credit offers", err)
		}
		return []notification.Draft{notification.OffersSentToPatient(req.PatientID, req.ID, len(rows))}, nil
	})
}

// Preview runs the installment math for the offer form without storing anything.
func (s *Service) Preview(dto PreviewDTO) (amortization.Result, error) {
	res, err := amortization.Amortize(dto.Amount, dto.InterestRate, dto.Installments)
	if err != nil {
		return amortization.Result{}, errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}
	return res, nil
}
