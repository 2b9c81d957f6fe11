package notification

import "time"

type Notification struct {
	ID              int64     `gorm:"primaryKey"`
	UserID          int64     `gorm:"column:user_id;not null;index"`
	CreditRequestID *int64    `gorm:"column:credit_request_id"`
	Type            string    `gorm:"column:type;not null"`
	Title           string    `gorm:"column:title;not null"`
	Message         string    `gorm:"column:message;not null"`
	Read            bool      `gorm:"column:read;default:false"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (Notification) TableName() string { return "notifications" }
