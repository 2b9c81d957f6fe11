package payment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/transport"
)

type ServiceAPI interface {
	Dispatch(ctx context.Context, actor user.Actor, requestID int64) (*DispatchResult, error)
	GetPayments(ctx context.Context, actor user.Actor, requestID int64) ([]*Payment, error)
	CancelSubscription(ctx context.Context, actor user.Actor, paymentID int64) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, processorID, status, failureReason string, response []byte) (*Payment, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// Dispatch handles POST /credit-requests/{id}/payments
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.Service.Dispatch(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("Dispatch: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Dispatch: payment ready",
		"credit_request_id", id,
		"payment_id", res.PaymentID,
		"payment_type", res.PaymentType)
	h.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	rows, err := h.Service.GetPayments(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"payments": rows})
}

// CancelSubscription handles POST /payments/{id}/cancel
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.Service.CancelSubscription(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("CancelSubscription: service error", "payment_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}
