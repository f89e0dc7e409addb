// Package token signs and verifies the two credential kinds: short-lived
// access tokens and long-lived refresh tokens. It performs no I/O; refresh
// liveness is the caller's concern.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"devforge.org/internal/principal"
)

const (
	issuer       = "devforge"
	minSecretLen = 32

	typeAccess  = "access"
	typeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers bad signatures, wrong algorithms and malformed
	// tokens. Callers must surface it as a generic unauthorized outcome.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrTokenExpired is distinguished internally for logs only; the wire
	// response is identical to ErrInvalidToken.
	ErrTokenExpired = errors.New("token: expired")

	errWeakSecret = errors.New("token: signing secret must be at least 32 bytes")
)

// Claims is the JWT payload for both token kinds.
type Claims struct {
	Role       string `json:"role"`
	SchoolID   string `json:"school_id,omitempty"`
	TokenType  string `json:"token_type"`
	Generation int    `json:"gen,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens with injected secrets. Construction
// fails on weak configuration; a constructed Service can never verify
// against an empty secret.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service. Both secrets must be at least 32 bytes and
// distinct from each other.
func NewService(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration, opts ...Option) (*Service, error) {
	if len(accessSecret) < minSecretLen || len(refreshSecret) < minSecretLen {
		return nil, errWeakSecret
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be greater than zero")
	}
	s := &Service{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccess signs a short-lived access token for the principal.
func (s *Service) IssueAccess(p principal.Principal) (string, time.Time, error) {
	return s.sign(p, typeAccess, 0, s.accessSecret, s.accessTTL)
}

// IssueRefresh signs a refresh token carrying a generation counter.
func (s *Service) IssueRefresh(p principal.Principal, generation int) (string, time.Time, error) {
	return s.sign(p, typeRefresh, generation, s.refreshSecret, s.refreshTTL)
}

func (s *Service) sign(p principal.Principal, kind string, generation int, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if !p.Valid() {
		return "", time.Time{}, fmt.Errorf("token: refusing to sign invalid principal")
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role:       string(p.Role),
		SchoolID:   p.SchoolID,
		TokenType:  kind,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ulid.Make().String(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess validates signature, algorithm, type and expiry of an access
// token and returns the embedded principal.
func (s *Service) VerifyAccess(raw string) (principal.Principal, error) {
	claims, err := s.verify(raw, typeAccess, s.accessSecret)
	if err != nil {
		return principal.Principal{}, err
	}
	return claimsPrincipal(claims)
}

// VerifyRefresh validates a refresh token and returns the embedded principal
// and generation. Server-side liveness is checked separately by the caller.
func (s *Service) VerifyRefresh(raw string) (principal.Principal, int, error) {
	claims, err := s.verify(raw, typeRefresh, s.refreshSecret)
	if err != nil {
		return principal.Principal{}, 0, err
	}
	p, err := claimsPrincipal(claims)
	if err != nil {
		return principal.Principal{}, 0, err
	}
	return p, claims.Generation, nil
}

func (s *Service) verify(raw, kind string, secret []byte) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// Pin the algorithm; the token's own header is untrusted.
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != kind {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func claimsPrincipal(claims *Claims) (principal.Principal, error) {
	role, err := principal.ParseRole(claims.Role)
	if err != nil {
		return principal.Principal{}, ErrInvalidToken
	}
	p := principal.Principal{
		Subject:  claims.Subject,
		Role:     role,
		SchoolID: claims.SchoolID,
	}
	if !p.Valid() {
		return principal.Principal{}, ErrInvalidToken
	}
	return p, nil
}
