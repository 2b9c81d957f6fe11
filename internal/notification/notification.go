package notification

import (
	"context"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
)

const (
	TypeCreditUpdate = "credit_update"
	TypeSuccess      = "success"
	TypePayment      = "payment"
)

var ErrNotificationNotFound = errors.NewNotFoundError("notification not found", errors.ErrCodeNotificationNotFound)

type Notification struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	CreditRequestID *int64    `json:"credit_request_id,omitempty"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}

// Draft is a notification that has not been stored yet.
type Draft struct {
	UserID          int64
	CreditRequestID *int64
	Type            string
	Title           string
	Message         string
}

type RepositoryAPI interface {
	CreateBatch(ctx context.Context, rows []*datamodel.Notification) error
	ListByUser(ctx context.Context, userID int64, unreadOnly bool) ([]*datamodel.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*datamodel.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

func FromDataModel(n *datamodel.Notification) *Notification {
	return &Notification{
		ID:              n.ID,
		UserID:          n.UserID,
		CreditRequestID: n.CreditRequestID,
		Type:            n.Type,
		Title:           n.Title,
		Message:         n.Message,
		Read:            n.Read,
		CreatedAt:       n.CreatedAt,
	}
}

func (d Draft) toDataModel() *datamodel.Notification {
	return &datamodel.Notification{
		UserID:          d.UserID,
		CreditRequestID: d.CreditRequestID,
		Type:            d.Type,
		Title:           d.Title,
		Message:         d.Message,
	}
}

func ToRecord(n *datamodel.Notification) map[string]interface{} {
	rec := map[string]interface{}{
		"id":         n.ID,
		"user_id":    n.UserID,
		"type":       n.Type,
		"title":      n.Title,
		"message":    n.Message,
		"read":       n.Read,
		"created_at": n.CreatedAt,
	}
	if n.CreditRequestID != nil {
		rec["credit_request_id"] = *n.CreditRequestID
	}
	return rec
}
