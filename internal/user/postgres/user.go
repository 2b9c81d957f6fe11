package user

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/core/database"
	creditdatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	userdatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/user"
	"github.com/frahmantamala/dental-credit/internal/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ user.Repository = (*Repository)(nil)

func (r *Repository) GetByID(ctx context.Context, userID int64) (*userdatamodel.User, error) {
	var u userdatamodel.User
	if err := database.Conn(ctx, r.db).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetPermissions(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := database.Conn(ctx, r.db).Table("permissions p").
		Joins("JOIN user_permissions up ON p.id = up.permission_id").
		Where("up.user_id = ?", userID).
		Order("p.name").
		Pluck("p.name", &names).Error
	return names, err
}

func (r *Repository) GetClinicsForUser(ctx context.Context, userID int64) ([]user.Clinic, error) {
	var rows []creditdatamodel.Clinic
	err := database.Conn(ctx, r.db).
		Joins("JOIN clinic_users cu ON cu.clinic_id = clinics.id").
		Where("cu.user_id = ?", userID).
		Order("clinics.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]user.Clinic, 0, len(rows))
	for _, c := range rows {
		out = append(out, user.Clinic{ID: c.ID, Name: c.Name, Email: c.Email})
	}
	return out, nil
}

func (r *Repository) ClinicUserIDs(ctx context.Context, clinicID int64) ([]int64, error) {
	var ids []int64
	err := database.Conn(ctx, r.db).Model(&creditdatamodel.ClinicUser{}).
		Where("clinic_id = ?", clinicID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *Repository) IsClinicMember(ctx context.Context, clinicID, userID int64) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&creditdatamodel.ClinicUser{}).
		Where("clinic_id = ? AND user_id = ?", clinicID, userID).
		Count(&count).Error
	return count > 0, err
}
