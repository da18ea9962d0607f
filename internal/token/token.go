// Package token issues and verifies the signed session credentials. The
// service is a pure function of its signing secret and the clock: no issued
// token is ever stored, and verification is signature + expiry only.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the claim set.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// DefaultAccessTTL applies when no access-token lifetime is configured.
const DefaultAccessTTL = 7 * 24 * time.Hour

// RefreshTTL is fixed and not configurable.
const RefreshTTL = 30 * 24 * time.Hour

var (
	// ErrTokenInvalid covers signature failures and malformed payloads.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenExpired indicates the token is past its expiry claim.
	ErrTokenExpired = errors.New("token: expired")
)

// Claims is the signed payload bound to a principal.
type Claims struct {
	UserID int64  `json:"uid"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// Pair bundles the two credentials issued per session.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Config holds the immutable signing configuration, constructed once at
// process start.
type Config struct {
	Secret    string
	AccessTTL time.Duration
}

// Service signs and verifies session tokens.
type Service struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewService constructs a Service. The secret is required.
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: signing secret required")
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &Service{
		secret:    []byte(cfg.Secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

// IssuePair produces an access/refresh token pair for the given principal.
// The two tokens differ only in kind and validity window.
func (s *Service) IssuePair(userID int64) (Pair, error) {
	access, err := s.sign(userID, KindAccess, s.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.sign(userID, KindRefresh, RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks signature and expiry and returns the claim set.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) sign(userID int64, kind string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign %s token: %w", kind, err)
	}
	return signed, nil
}
