package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/offer"
)

type OfferRepository struct {
	db *gorm.DB
}

func NewOfferRepository(db *gorm.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

var _ offer.RepositoryAPI = (*OfferRepository)(nil)

// ReplaceForRequest returns the rows it removed so callers can announce their deletion.
func (r *OfferRepository) ReplaceForRequest(ctx context.Context, requestID int64, rows []*datamodel.CreditOffer) ([]*datamodel.CreditOffer, error) {
	conn := database.Conn(ctx, r.db)
	var removed []*datamodel.CreditOffer
	if err := conn.Where("credit_request_id = ?", requestID).Order("id ASC").Find(&removed).Error; err != nil {
		return nil, err
	}
	if err := conn.Where("credit_request_id = ?", requestID).Delete(&datamodel.CreditOffer{}).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return removed, nil
	}
	if err := conn.Create(&rows).Error; err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *OfferRepository) ListByRequest(ctx context.Context, requestID int64) ([]*datamodel.CreditOffer, error) {
	var rows []*datamodel.CreditOffer
	err := database.Conn(ctx, r.db).
		Where("credit_request_id = ?", requestID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *OfferRepository) GetByID(ctx context.Context, id int64) (*datamodel.CreditOffer, error) {
	var o datamodel.CreditOffer
	if err := database.Conn(ctx, r.db).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, offer.ErrOfferNotFound
		}
		return nil, err
	}
	return &o, nil
}
