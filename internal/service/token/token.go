// Package token issues and validates the HS256 access/refresh cookie pair and
// provides the echo middleware that authenticates requests, rotating expired
// access tokens from a stored refresh token.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trowool/yarnshop/internal/models"
)

const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	jwt.RegisteredClaims
}

type Service struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
}

func (s *Service) SignAccess(userID uint, role string, exp time.Time) (string, error) {
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
}

func (s *Service) SignRefresh(userID uint, role string, exp time.Time) (string, error) {
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.RefreshSecret)
}

// SaveRefresh persists a refresh token so it can be revoked later.
func (s *Service) SaveRefresh(tokenString string, userID uint, exp time.Time) error {
	row := models.RefreshToken{
		Token:     tokenString,
		UserID:    userID,
		ExpiresAt: exp,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *Service) Revoke(tokenString string) error {
	return s.DB.Model(&models.RefreshToken{}).
		Where("token = ?", tokenString).
		Update("revoked", true).Error
}

func ParseAccess(tokenString string, secret []byte) (*AccessClaims, error) {
	claims := &AccessClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (c *AccessClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject claim: %w", err)
	}
	return uint(id), nil
}

// Rotate validates the stored refresh token and issues a fresh pair. The old
// token is revoked so it cannot be replayed.
func (s *Service) Rotate(rawToken string) (access, refresh string, err error) {
	claims, err := ParseAccess(rawToken, s.RefreshSecret)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	var stored models.RefreshToken
	if err := s.DB.Where("token = ?", rawToken).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", errors.New("refresh token not found")
		}
		return "", "", fmt.Errorf("db error: %w", err)
	}
	if stored.Revoked {
		return "", "", errors.New("refresh token revoked")
	}
	if time.Now().After(stored.ExpiresAt) {
		return "", "", errors.New("refresh token expired")
	}

	userID, err := claims.UserID()
	if err != nil {
		return "", "", err
	}

	access, err = s.SignAccess(userID, claims.Role, time.Now().Add(AccessTTL))
	if err != nil {
		return "", "", err
	}

	refreshExp := time.Now().Add(RefreshTTL)
	refresh, err = s.SignRefresh(userID, claims.Role, refreshExp)
	if err != nil {
		return "", "", err
	}

	if err := s.Revoke(rawToken); err != nil {
		return "", "", err
	}
	if err := s.SaveRefresh(refresh, userID, refreshExp); err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name, path string) *http.Cookie {
	return CreateCookie(name, "", path, time.Now().Add(-time.Hour))
}
