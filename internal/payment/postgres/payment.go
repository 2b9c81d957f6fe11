package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/payment"
	"github.com/frahmantamala/dental-credit/internal/payment"
)

const uniqueViolation = "23505"

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

var _ payment.RepositoryAPI = (*PaymentRepository)(nil)

func (r *PaymentRepository) Create(ctx context.Context, p *datamodel.CreditPayment) error {
	err := database.Conn(ctx, r.db).Create(p).Error
	if isDuplicate(err) {
		return payment.ErrDuplicatePending
	}
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*datamodel.CreditPayment, error) {
	var p datamodel.CreditPayment
	if err := database.Conn(ctx, r.db).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) FindPendingByRequest(ctx context.Context, requestID int64) (*datamodel.CreditPayment, error) {
	var rows []*datamodel.CreditPayment
	err := database.Conn(ctx, r.db).
		Where("credit_request_id = ? AND status = ?", requestID, datamodel.StatusPending).
		Order("id ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *PaymentRepository) FindByProcessorID(ctx context.Context, processorID string) (*datamodel.CreditPayment, error) {
	var p datamodel.CreditPayment
	err := database.Conn(ctx, r.db).
		Where("processor_payment_id = ? OR processor_subscription_id = ?", processorID, processorID).
		Order("id DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByRequest(ctx context.Context, requestID int64) ([]*datamodel.CreditPayment, error) {
	var rows []*datamodel.CreditPayment
	err := database.Conn(ctx, r.db).
		Where("credit_request_id = ?", requestID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *PaymentRepository) ListOpenBefore(ctx context.Context, before time.Time, limit int) ([]*datamodel.CreditPayment, error) {
	var rows []*datamodel.CreditPayment
	q := database.Conn(ctx, r.db).
		Where("status IN ? AND updated_at < ?", []string{datamodel.StatusPending, datamodel.StatusProcessing}, before).
		Order("updated_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// UpdateStatus leaves processor_response untouched when response is empty.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, status string, failureReason *string, response []byte, at time.Time) error {
	updates := map[string]interface{}{
		"status":         status,
		"failure_reason": failureReason,
		"updated_at":     at,
	}
	if len(response) > 0 {
		updates["processor_response"] = response
	}
	res := database.Conn(ctx, r.db).
		Model(&datamodel.CreditPayment{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return payment.ErrPaymentNotFound
	}
	return nil
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
