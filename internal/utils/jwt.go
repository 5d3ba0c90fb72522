package utils

import (
	"errors"
	"fmt"
	"time"

	"venty/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

const (
	userIssuer    = "venty-negotiation"
	userAudience  = "venty-app"
	adminIssuer   = "venty-negotiation-admin"
	adminAudience = "venty-admin"
)

var ErrInvalidToken = errors.New("invalid token")

// UserProfile is the identity the marketplace identity service vouches for.
// Name and contact details are what a counterpart sees once both sides agree.
type UserProfile struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}

// UserClaims are issued by the marketplace identity service for app users.
type UserClaims struct {
	UserProfile
	jwt.StandardClaims
}

// AdminClaims represents JWT claims for admin users
type AdminClaims struct {
	AdminID  string `json:"admin_id"`
	Username string `json:"username"`
	jwt.StandardClaims
}

// TokenManager signs and validates user and admin tokens.
type TokenManager struct {
	secret      []byte
	adminSecret []byte
	userTTL     time.Duration
	adminTTL    time.Duration
	now         func() time.Time
}

func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{
		secret:      []byte(cfg.Secret),
		adminSecret: []byte(cfg.AdminSecret),
		userTTL:     time.Duration(cfg.ExpiryHour) * time.Hour,
		adminTTL:    time.Duration(cfg.AdminExpiryHour) * time.Hour,
		now:         time.Now,
	}
}

// GenerateUserJWT issues a user token. Production tokens come from the
// identity service; this is used by tooling and tests.
func (m *TokenManager) GenerateUserJWT(profile UserProfile) (string, error) {
	now := m.now()
	claims := UserClaims{
		UserProfile: profile,
		StandardClaims: jwt.StandardClaims{
			Issuer:    userIssuer,
			Subject:   profile.UserID,
			Audience:  userAudience,
			ExpiresAt: now.Add(m.userTTL).Unix(),
			NotBefore: now.Unix(),
			IssuedAt:  now.Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// GenerateAdminJWT generates a JWT token for admin users
func (m *TokenManager) GenerateAdminJWT(adminID, username string) (string, error) {
	now := m.now()
	claims := AdminClaims{
		AdminID:  adminID,
		Username: username,
		StandardClaims: jwt.StandardClaims{
			Issuer:    adminIssuer,
			Subject:   adminID,
			Audience:  adminAudience,
			ExpiresAt: now.Add(m.adminTTL).Unix(),
			NotBefore: now.Unix(),
			IssuedAt:  now.Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.adminSecret)
}

// ValidateUserJWT validates a user JWT token
func (m *TokenManager) ValidateUserJWT(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := m.parse(tokenString, claims, m.secret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateAdminJWT validates an admin JWT token
func (m *TokenManager) ValidateAdminJWT(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := m.parse(tokenString, claims, m.adminSecret); err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(adminAudience, true) {
		return nil, fmt.Errorf("%w: wrong audience", ErrInvalidToken)
	}
	return claims, nil
}

func (m *TokenManager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
