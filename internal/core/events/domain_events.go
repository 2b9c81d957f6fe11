package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRecordChanged       = "record.changed"
	EventTypeCreditStatusChanged = "credit.status_changed"
	EventTypeNotificationCreated = "notification.created"
	EventTypePaymentCompleted    = "payment.completed"
	EventTypePaymentFailed       = "payment.failed"
)

// Change operations carried by RecordChangedEvent.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// AllDomainEventTypes lists every event type published by the services.
var AllDomainEventTypes = []string{
	EventTypeRecordChanged,
	EventTypeCreditStatusChanged,
	EventTypeNotificationCreated,
	EventTypePaymentCompleted,
	EventTypePaymentFailed,
}

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// RecordChangedEvent mirrors a committed row change so subscribers can refresh their view of it.
type RecordChangedEvent struct {
	BaseEvent
	Table     string                 `json:"table"`
	Operation string                 `json:"type"`
	RecordID  int64                  `json:"record_id"`
	Record    map[string]interface{} `json:"record,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func NewRecordChangedEvent(table, op string, recordID int64, record map[string]interface{}, updatedAt time.Time) *RecordChangedEvent {
	return &RecordChangedEvent{
		BaseEvent: newBase(EventTypeRecordChanged, map[string]interface{}{
			"table":      table,
			"type":       op,
			"record_id":  recordID,
			"record":     record,
			"updated_at": updatedAt,
		}),
		Table:     table,
		Operation: op,
		RecordID:  recordID,
		Record:    record,
		UpdatedAt: updatedAt,
	}
}

type CreditStatusChangedEvent struct {
	BaseEvent
	CreditRequestID int64  `json:"credit_request_id"`
	From            string `json:"from"`
	To              string `json:"to"`
	ActorID         int64  `json:"actor_id"`
	SelectedOfferID *int64 `json:"selected_offer_id,omitempty"`
}

func NewCreditStatusChangedEvent(requestID int64, from, to string, actorID int64, selectedOfferID *int64) *CreditStatusChangedEvent {
	data := map[string]interface{}{
		"credit_request_id": requestID,
		"from":              from,
		"to":                to,
		"actor_id":          actorID,
	}
	if selectedOfferID != nil {
		data["selected_offer_id"] = *selectedOfferID
	}
	return &CreditStatusChangedEvent{
		BaseEvent:       newBase(EventTypeCreditStatusChanged, data),
		CreditRequestID: requestID,
		From:            from,
		To:              to,
		ActorID:         actorID,
		SelectedOfferID: selectedOfferID,
	}
}

type NotificationCreatedEvent struct {
	BaseEvent
	NotificationID int64  `json:"notification_id"`
	UserID         int64  `json:"user_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

func NewNotificationCreatedEvent(notificationID, userID int64, title, message string) *NotificationCreatedEvent {
	return &NotificationCreatedEvent{
		BaseEvent: newBase(EventTypeNotificationCreated, map[string]interface{}{
			"notification_id": notificationID,
			"user_id":         userID,
			"title":           title,
			"message":         message,
		}),
		NotificationID: notificationID,
		UserID:         userID,
		Title:          title,
		Message:        message,
	}
}

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID       int64   `json:"payment_id"`
	CreditRequestID int64   `json:"credit_request_id"`
	ProcessorID     string  `json:"processor_id"`
	Amount          float64 `json:"amount"`
}

func NewPaymentCompletedEvent(paymentID, requestID int64, processorID string, amount float64) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: newBase(EventTypePaymentCompleted, map[string]interface{}{
			"payment_id":        paymentID,
			"credit_request_id": requestID,
			"processor_id":      processorID,
			"amount":            amount,
		}),
		PaymentID:       paymentID,
		CreditRequestID: requestID,
		ProcessorID:     processorID,
		Amount:          amount,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID       int64  `json:"payment_id"`
	CreditRequestID int64  `json:"credit_request_id"`
	ProcessorID     string `json:"processor_id"`
	FailureReason   string `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID, requestID int64, processorID, reason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: newBase(EventTypePaymentFailed, map[string]interface{}{
			"payment_id":        paymentID,
			"credit_request_id": requestID,
			"processor_id":      processorID,
			"failure_reason":    reason,
		}),
		PaymentID:       paymentID,
		CreditRequestID: requestID,
		ProcessorID:     processorID,
		FailureReason:   reason,
	}
}
