package clinic

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
	List(ctx context.Context, actor user.Actor, includeInactive bool) ([]*Clinic, error)
	Get(ctx context.Context, actor user.Actor, id int64) (*Clinic, error)
	Create(ctx context.Context, actor user.Actor, dto *CreateClinicDTO) (*Clinic, error)
	SetActive(ctx context.Context, actor user.Actor, id int64, active bool) (*Clinic, error)
	Members(ctx context.Context, actor user.Actor, clinicID int64) ([]int64, error)
	AddMember(ctx context.Context, actor user.Actor, clinicID, userID int64) error
	RemoveMember(ctx context.Context, actor user.Actor, clinicID, userID int64) error
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

// List handles GET /clinics?all=true
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	clinics, err := h.Service.List(r.Context(), actor, all)
	if err != nil {
		h.Logger.Error("ListClinics: failed to get clinics", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ClinicsResponse{Clinics: clinics})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateClinicDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	c, err := h.Service.Create(r.Context(), actor, &dto)
	if err != nil {
		h.Logger.Error("CreateClinic: service error", "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.Service.SetActive(r.Context(), actor, id, active)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	ids, err := h.Service.Members(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"user_ids": ids})
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}
	var dto MemberDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.AddMember(r.Context(), actor, id, dto.UserID); err != nil {
		h.Logger.Error("AddClinicMember: service error", "clinic_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.PathID(w, r, "userID")
	if !ok {
		return
	}

	if err := h.Service.RemoveMember(r.Context(), actor, id, userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
