package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/document"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

var _ document.RepositoryAPI = (*DocumentRepository)(nil)

func (r *DocumentRepository) Create(ctx context.Context, doc *datamodel.CreditDocument) error {
	return database.Conn(ctx, r.db).Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*datamodel.CreditDocument, error) {
	var doc datamodel.CreditDocument
	if err := database.Conn(ctx, r.db).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, document.ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByRequest(ctx context.Context, requestID int64) ([]*datamodel.CreditDocument, error) {
	var rows []*datamodel.CreditDocument
	err := database.Conn(ctx, r.db).
		Where("credit_request_id = ?", requestID).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	res := database.Conn(ctx, r.db).Delete(&datamodel.CreditDocument{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return document.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) MarkVerified(ctx context.Context, id int64) error {
	res := database.Conn(ctx, r.db).
		Model(&datamodel.CreditDocument{}).
		Where("id = ?", id).
		Update("verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return document.ErrDocumentNotFound
	}
	return nil
}
