package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"lms-backend/pkg/config"
	"lms-backend/pkg/models"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var (
	ErrInvalidToken   = errors.New("could not validate credentials")
	ErrWrongTokenKind = errors.New("invalid token type")
)

// Claims carries the principal. Refresh tokens only fill Subject and Kind.
type Claims struct {
	Email      string      `json:"email,omitempty"`
	Username   string      `json:"username,omitempty"`
	Role       models.Role `json:"role,omitempty"`
	IsActive   bool        `json:"is_active,omitempty"`
	IsVerified bool        `json:"is_verified,omitempty"`
	Kind       TokenKind   `json:"type"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type TokenManager struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(cfg *config.Config) *TokenManager {
	return &TokenManager{
		secret:     []byte(cfg.SecretKey),
		method:     jwt.GetSigningMethod(strings.ToUpper(cfg.Algorithm)),
		accessTTL:  cfg.AccessTokenTTL(),
		refreshTTL: cfg.RefreshTokenTTL(),
		now:        time.Now,
	}
}

func (m *TokenManager) Issue(u models.User) (*TokenPair, error) {
	access, err := m.sign(AccessToken, u)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(RefreshToken, u)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(m.accessTTL.Seconds()),
	}, nil
}

func (m *TokenManager) sign(kind TokenKind, u models.User) (string, error) {
	now := m.now()
	ttl := m.accessTTL
	claims := &Claims{Kind: kind}
	if kind == RefreshToken {
		ttl = m.refreshTTL
	} else {
		claims.Email = u.Email
		claims.Username = u.Username
		claims.Role = u.Role
		claims.IsActive = u.IsActive
		claims.IsVerified = u.IsVerified
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(u.ID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return s, nil
}

// Verify is the only way tokens are checked: signature, expiry and the
// expected kind. A refresh token presented as access (or the reverse)
// fails with ErrWrongTokenKind.
func (m *TokenManager) Verify(token string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrWrongTokenKind
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
