package realtime

import (
	"fmt"
	"time"

	"github.com/frahmantamala/dental-credit/internal/core/events"
)

// Tables that publish change events.
const (
	TableCreditRequests  = "credit_requests"
	TableCreditOffers    = "credit_offers"
	TableCreditDocuments = "credit_documents"
	TableCreditPayments  = "credit_payments"
	TableNotifications   = "notifications"
)

var Tables = []string{TableCreditRequests, TableCreditOffers, TableCreditDocuments, TableCreditPayments, TableNotifications}

// ChangeEvent is a committed row change as delivered to subscribers.
type ChangeEvent struct {
	ID        string                 `json:"id,omitempty"`
	Table     string                 `json:"table"`
	Type      string                 `json:"type"`
	RecordID  int64                  `json:"record_id"`
	Record    map[string]interface{} `json:"record,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// FromEvent extracts the change carried by a record.changed bus event.
func FromEvent(e events.Event) (ChangeEvent, bool) {
	rc, ok := e.(*events.RecordChangedEvent)
	if !ok || rc == nil {
		return ChangeEvent{}, false
	}
	return ChangeEvent{
		ID:        rc.EventID(),
		Table:     rc.Table,
		Type:      rc.Operation,
		RecordID:  rc.RecordID,
		Record:    rc.Record,
		UpdatedAt: rc.UpdatedAt,
	}, true
}

// Filter selects events of one table, optionally where Column equals Value in the record.
type Filter struct {
	Table  string
	Column string
	Value  interface{}
}

func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Table != ev.Table {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := ev.Record[f.Column]
	if !ok {
		return false
	}
	// records may come back from JSON or DynamoDB with numbers widened to float64
	return fmt.Sprint(v) == fmt.Sprint(f.Value)
}
