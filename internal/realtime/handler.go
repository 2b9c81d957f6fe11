package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/transport"
	"github.com/frahmantamala/dental-credit/pkg/logger"
)

const heartbeatInterval = 25 * time.Second

// RequestViewer checks that the actor may read a credit request.
type RequestViewer interface {
	GetRequest(ctx context.Context, actor user.Actor, id int64) (*credit.CreditRequest, error)
}

type Handler struct {
	*transport.BaseHandler
	hub       *Hub
	requests  RequestViewer
	heartbeat time.Duration
}

func NewHandler(hub *Hub, requests RequestViewer, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		hub:         hub,
		requests:    requests,
		heartbeat:   heartbeatInterval,
	}
}

// Stream serves GET /realtime?table=...[&credit_request_id=...] as text/event-stream.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filters, requestID, msg := h.scope(r, actor)
	if msg != "" {
		h.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if requestID > 0 {
		if _, err := h.requests.GetRequest(r.Context(), actor, requestID); err != nil {
			h.HandleServiceError(w, err)
			return
		}
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.Logger.Error("Stream: response does not support flushing", "error", err)
		return
	}

	sub := h.hub.Subscribe(filters...)
	defer h.hub.Unsubscribe(sub)
	lg := logger.From(r.Context()).With("subscription_id", sub.ID)
	lg.Info("Stream: subscriber connected", "table", filters[0].Table)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			lg.Info("Stream: subscriber disconnected")
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				lg.Error("Stream: failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Table, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// scope builds the subscription filters visible to actor, plus the credit request they are pinned to, if any.
// A non-empty message rejects the request.
func (h *Handler) scope(r *http.Request, actor user.Actor) ([]Filter, int64, string) {
	table := r.URL.Query().Get("table")
	if !knownTable(table) {
		return nil, 0, "unknown table"
	}

	if table == TableNotifications {
		return []Filter{{Table: table, Column: "user_id", Value: actor.ID}}, 0, ""
	}

	if raw := r.URL.Query().Get("credit_request_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, 0, "invalid credit_request_id"
		}
		column := "credit_request_id"
		if table == TableCreditRequests {
			column = "id"
		}
		return []Filter{{Table: table, Column: column, Value: id}}, id, ""
	}

	switch {
	case actor.IsAdmin():
		return []Filter{{Table: table}}, 0, ""
	case table != TableCreditRequests:
		return nil, 0, "credit_request_id is required"
	case actor.IsClinicStaff():
		filters := make([]Filter, 0, len(actor.ClinicIDs))
		for _, cid := range actor.ClinicIDs {
			filters = append(filters, Filter{Table: table, Column: "clinic_id", Value: cid})
		}
		return filters, 0, ""
	default:
		return []Filter{{Table: table, Column: "patient_id", Value: actor.ID}}, 0, ""
	}
}

func knownTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}
