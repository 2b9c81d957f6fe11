package document

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/transport"
)

// multipartOverhead leaves room for the form fields around the file part.
const multipartOverhead = 1 << 20

type ServiceAPI interface {
	MaxSize() int64
	Upload(ctx context.Context, actor user.Actor, requestID int64, dto UploadDTO, body io.Reader) (*Document, error)
	List(ctx context.Context, actor user.Actor, requestID int64) ([]*Document, error)
	Delete(ctx context.Context, actor user.Actor, id int64) error
	Verify(ctx context.Context, actor user.Actor, id int64) (*Document, error)
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

// Upload handles POST /credit-requests/{id}/documents as multipart/form-data with "file" and "document_type".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Service.MaxSize()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	dto := UploadDTO{
		DocumentType: r.FormValue("document_type"),
		FileName:     header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
	}
	doc, err := h.Service.Upload(r.Context(), actor, id, dto, file)
	if err != nil {
		h.Logger.Error("Upload: service error", "credit_request_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Upload: document stored", "document_id", doc.ID, "credit_request_id", id)
	h.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	docs, err := h.Service.List(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), actor, id); err != nil {
		h.Logger.Error("Delete: service error", "document_id", id, "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.PathID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.Service.Verify(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, doc)
}
