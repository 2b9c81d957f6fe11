package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/dental-credit/internal/core/user"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// User is the authenticated principal loaded by the auth middleware.
type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	ClinicIDs   []int64  `json:"clinic_ids,omitempty"`
}

func (u *User) Actor() user.Actor {
	return user.Actor{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		ClinicIDs:   u.ClinicIDs,
		Permissions: u.Permissions,
	}
}

func (u *User) HasPermission(permission string) bool {
	return u.Actor().HasPermission(permission)
}

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetUserWithPermissions(ctx context.Context, userID int64) (*User, error)
}

type RepositoryAPI interface {
	GetPasswordForEmail(ctx context.Context, email string) (passwordHash string, userID int64, err error)
	GetUserWithPermissions(ctx context.Context, userID int64) (*User, error)
}

type TokenGenerator interface {
	GenerateAccessToken(userID int64, email, role string) (string, error)
	GenerateRefreshToken(userID int64, email, role string) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Claims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}
