package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/dental-credit/internal/clinic"
	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	userdatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/user"
)

type ClinicRepository struct {
	db *gorm.DB
}

func NewClinicRepository(db *gorm.DB) *ClinicRepository {
	return &ClinicRepository{db: db}
}

var _ clinic.RepositoryAPI = (*ClinicRepository)(nil)

func (r *ClinicRepository) List(ctx context.Context, activeOnly bool) ([]*datamodel.Clinic, error) {
	q := database.Conn(ctx, r.db).Order("name ASC, id ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []*datamodel.Clinic
	err := q.Find(&rows).Error
	return rows, err
}

func (r *ClinicRepository) GetByID(ctx context.Context, id int64) (*datamodel.Clinic, error) {
	var row datamodel.Clinic
	if err := database.Conn(ctx, r.db).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, clinic.ErrClinicNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *ClinicRepository) Create(ctx context.Context, c *datamodel.Clinic) error {
	return database.Conn(ctx, r.db).Create(c).Error
}

func (r *ClinicRepository) SetActive(ctx context.Context, id int64, active bool, at time.Time) error {
	res := database.Conn(ctx, r.db).
		Model(&datamodel.Clinic{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return clinic.ErrClinicNotFound
	}
	return nil
}

func (r *ClinicRepository) UserRole(ctx context.Context, userID int64) (string, error) {
	var u userdatamodel.User
	err := database.Conn(ctx, r.db).Select("id", "role").First(&u, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", clinic.ErrUserNotFound
		}
		return "", err
	}
	return u.Role, nil
}

func (r *ClinicRepository) AddMember(ctx context.Context, clinicID, userID int64) error {
	return database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&datamodel.ClinicUser{ClinicID: clinicID, UserID: userID}).Error
}

func (r *ClinicRepository) RemoveMember(ctx context.Context, clinicID, userID int64) error {
	res := database.Conn(ctx, r.db).
		Where("clinic_id = ? AND user_id = ?", clinicID, userID).
		Delete(&datamodel.ClinicUser{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return clinic.ErrNotAMember
	}
	return nil
}

func (r *ClinicRepository) MemberIDs(ctx context.Context, clinicID int64) ([]int64, error) {
	var ids []int64
	err := database.Conn(ctx, r.db).
		Model(&datamodel.ClinicUser{}).
		Where("clinic_id = ?", clinicID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
