package offer

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/transport"
	"github.com/frahmantamala/dental-credit/pkg/amortization"
)

type ServiceAPI interface {
	SubmitOffers(ctx context.Context, actor user.Actor, requestID int64, inputs []Input) ([]*Offer, error)
	ListOffers(ctx context.Context, actor user.Actor, requestID int64) ([]*Offer, error)
	BestOffer(ctx context.Context, actor user.Actor, requestID int64) (*Offer, error)
	Summary(ctx context.Context, actor user.Actor, requestID int64) (*Summary, error)
	SelectOffer(ctx context.Context, actor user.Actor, requestID, offerID int64) (*credit.CreditRequest, error)
	SendOffersToPatient(ctx context.Context, actor user.Actor, requestID int64) (*credit.CreditRequest, error)
	Preview(dto PreviewDTO) (amortization.Result, error)
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

func (h *Handler) SubmitOffers(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	var dto SubmitDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	offers, err := h.Service.SubmitOffers(r.Context(), actor, id, dto.Offers)
	if err != nil {
		h.Logger.Error("SubmitOffers: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("SubmitOffers: offers stored", "credit_request_id", id, "count", len(offers))
	h.WriteJSON(w, http.StatusCreated, map[string]interface{}{"offers": offers})
}

func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	offers, err := h.Service.ListOffers(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("ListOffers: service error", "credit_request_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"offers": offers})
}

func (h *Handler) BestOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	best, err := h.Service.BestOffer(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, best)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	sum, err := h.Service.Summary(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("Summary: service error", "credit_request_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) SelectOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}
	offerID, ok := h.PathID(w, r, "offerId")
	if !ok {
		return
	}

	req, err := h.Service.SelectOffer(r.Context(), actor, id, offerID)
	if err != nil {
		h.Logger.Error("SelectOffer: service error", "credit_request_id", id, "offer_id", offerID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) SendToPatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.Service.SendOffersToPatient(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("SendToPatient: service error", "credit_request_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// Preview handles POST /offers/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var dto PreviewDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	res, err := h.Service.Preview(dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}
