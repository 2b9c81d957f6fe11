package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/credit"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

var _ credit.RepositoryAPI = (*CreditRepository)(nil)

func (r *CreditRepository) Create(ctx context.Context, req *datamodel.CreditRequest) error {
	return database.Conn(ctx, r.db).Create(req).Error
}

func (r *CreditRepository) GetByID(ctx context.Context, id int64) (*datamodel.CreditRequest, error) {
	var req datamodel.CreditRequest
	if err := database.Conn(ctx, r.db).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credit.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *CreditRepository) List(ctx context.Context, f credit.ListFilter) ([]*datamodel.CreditRequest, error) {
	q := database.Conn(ctx, r.db).Model(&datamodel.CreditRequest{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.PatientID != 0 {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.ClinicID != 0 {
		q = q.Where("clinic_id = ?", f.ClinicID)
	} else if f.ClinicIDs != nil {
		if len(f.ClinicIDs) == 0 {
			return []*datamodel.CreditRequest{}, nil
		}
		q = q.Where("clinic_id IN ?", f.ClinicIDs)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var rows []*datamodel.CreditRequest
	err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *CreditRepository) UpdateStatus(ctx context.Context, id int64, from, to credit.Status, notes *string, at time.Time) (int64, error) {
	values := map[string]interface{}{
		"status":     string(to),
		"updated_at": at,
	}
	if notes != nil {
		values["notes"] = *notes
	}
	res := database.Conn(ctx, r.db).Model(&datamodel.CreditRequest{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *CreditRepository) CreateAnalysis(ctx context.Context, a *datamodel.CreditAnalysis) error {
	return database.Conn(ctx, r.db).Create(a).Error
}

func (r *CreditRepository) ListAnalyses(ctx context.Context, requestID int64) ([]*datamodel.CreditAnalysis, error) {
	var rows []*datamodel.CreditAnalysis
	err := database.Conn(ctx, r.db).
		Where("credit_request_id = ?", requestID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	return rows, err
}
