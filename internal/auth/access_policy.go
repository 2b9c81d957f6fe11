package auth

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

// RequestAccessPolicy is an attribute check on the credit request named by the {id} URL param.
// Services repeat the check; this rejects foreign requests before a body is read.
type RequestAccessPolicy struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewRequestAccessPolicy(db *sqlx.DB, logger *slog.Logger) *RequestAccessPolicy {
	return &RequestAccessPolicy{db: db, logger: logger}
}

type requestOwner struct {
	PatientID int64 `db:"patient_id"`
	ClinicID  int64 `db:"clinic_id"`
}

func (p *RequestAccessPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid credit request id", http.StatusBadRequest)
			return
		}

		var owner requestOwner
		err = p.db.GetContext(r.Context(), &owner, "SELECT patient_id, clinic_id FROM credit_requests WHERE id = $1", id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "credit request not found", http.StatusNotFound)
				return
			}
			p.logger.Error("access policy lookup failed", "credit_request_id", id, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !u.Actor().CanView(owner.PatientID, owner.ClinicID) {
			p.logger.Warn("access denied to credit request", "credit_request_id", id, "user_id", u.ID)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
