package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/database"
	userdatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/user"
)

var errUserNotFound = errors.New("user not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetPasswordForEmail(ctx context.Context, email string) (string, int64, error) {
	var u userdatamodel.User
	err := database.Conn(ctx, r.db).
		Select("id", "password_hash").
		Where("email = ? AND is_active = ?", email, true).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, errUserNotFound
		}
		return "", 0, err
	}
	return u.PasswordHash, u.ID, nil
}

func (r *Repository) GetUserWithPermissions(ctx context.Context, userID int64) (*auth.User, error) {
	conn := database.Conn(ctx, r.db)

	var u userdatamodel.User
	err := conn.Where("id = ? AND is_active = ?", userID, true).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, err
	}

	var permissions []string
	err = conn.Table("permissions p").
		Joins("JOIN user_permissions up ON p.id = up.permission_id").
		Where("up.user_id = ?", userID).
		Pluck("p.name", &permissions).Error
	if err != nil {
		return nil, err
	}

	var clinicIDs []int64
	err = conn.Table("clinic_users").Where("user_id = ?", userID).Pluck("clinic_id", &clinicIDs).Error
	if err != nil {
		return nil, err
	}

	return &auth.User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Permissions: permissions,
		ClinicIDs:   clinicIDs,
	}, nil
}
