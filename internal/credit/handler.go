package credit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/transport"
)

type ServiceAPI interface {
	CreateRequest(ctx context.Context, actor user.Actor, dto *CreateRequestDTO) (*CreditRequest, error)
	GetRequest(ctx context.Context, actor user.Actor, id int64) (*CreditRequest, error)
	ListRequests(ctx context.Context, actor user.Actor, filter ListFilter) ([]*CreditRequest, error)
	ClinicDecision(ctx context.Context, actor user.Actor, id int64, dto DecisionDTO) (*CreditRequest, error)
	StartAdminAnalysis(ctx context.Context, actor user.Actor, id int64) (*CreditRequest, error)
	AdminDecision(ctx context.Context, actor user.Actor, id int64, dto DecisionDTO) (*CreditRequest, error)
	PatientDecision(ctx context.Context, actor user.Actor, id int64, dto PatientDecisionDTO) (*CreditRequest, error)
	ListAnalyses(ctx context.Context, actor user.Actor, id int64) ([]*Analysis, error)
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

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateRequestDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	req, err := h.Service.CreateRequest(r.Context(), actor, &dto)
	if err != nil {
		h.Logger.Error("CreateRequest: service error", "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateRequest: credit request created",
		"credit_request_id", req.ID,
		"user_id", actor.ID,
		"amount", req.RequestedAmount)
	h.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.Service.GetRequest(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("GetRequest: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// ListRequests handles GET /credit-requests?status=&clinic_id=&limit=&offset=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	filter := ListFilter{Limit: defaultListLimit}
	if raw := q.Get("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		filter.Status = st
	}
	if raw := q.Get("clinic_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.ClinicID = id
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= maxListLimit {
			filter.Limit = l
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if o, err := strconv.Atoi(raw); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	items, err := h.Service.ListRequests(r.Context(), actor, filter)
	if err != nil {
		h.Logger.Error("ListRequests: service error", "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"credit_requests": items,
		"limit":           filter.Limit,
		"offset":          filter.Offset,
	})
}

func (h *Handler) ClinicDecision(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "ClinicDecision", h.Service.ClinicDecision)
}

func (h *Handler) AdminDecision(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "AdminDecision", h.Service.AdminDecision)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, user.Actor, int64, DecisionDTO) (*CreditRequest, error)) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	var dto DecisionDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	req, err := fn(r.Context(), actor, id, dto)
	if err != nil {
		h.Logger.Error(op+": service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info(op+": decision recorded", "credit_request_id", id, "user_id", actor.ID, "status", req.Status)
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) StartAdminAnalysis(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.Service.StartAdminAnalysis(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("StartAdminAnalysis: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) PatientDecision(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	var dto PatientDecisionDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	req, err := h.Service.PatientDecision(r.Context(), actor, id, dto)
	if err != nil {
		h.Logger.Error("PatientDecision: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	items, err := h.Service.ListAnalyses(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("ListAnalyses: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"analyses": items})
}
