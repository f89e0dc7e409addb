// Package authflow orchestrates login, refresh, registration and logout over
// the credential store and the token service.
package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"devforge.org/internal/principal"
	"devforge.org/internal/school"
	"devforge.org/internal/token"
)

const userStatusApproved = "approved"

// TokenPair carries freshly issued credentials.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// UserView is the user block of the login response.
type UserView struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	SchoolID     string `json:"school_id,omitempty"`
	SchoolStatus string `json:"school_status,omitempty"`
}

// LoginResult is the successful outcome of Login.
type LoginResult struct {
	Pair      TokenPair
	Principal principal.Principal
	User      UserView
}

// RegisterInput is a parent self-registration against a school slug.
type RegisterInput struct {
	FullName   string
	Email      string
	Password   string
	SchoolSlug string
}

// Service implements the authentication flows. It owns no HTTP concerns.
type Service struct {
	store  school.Store
	tokens *token.Service
	now    func() time.Time
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

// NewService constructs the flow service.
func NewService(store school.Store, tokens *token.Service, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates an email/password pair. Platform owners are checked
// first; school users must be approved. The school's lifecycle state does
// not block credentials: the tenant lock confines sessions of suspended or
// cancelled schools, and keeping /api/auth reachable lets those accounts
// recover. Every failure collapses to ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrUnauthorized
	}

	if owner, err := s.store.FindOwnerByEmail(ctx, email); err == nil {
		if VerifyPassword(owner.PasswordHash, password) != nil {
			return LoginResult{}, ErrUnauthorized
		}
		p := principal.Principal{Subject: owner.ID, Role: principal.RolePlatformOwner}
		pair, err := s.mint(ctx, p)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{
			Pair:      pair,
			Principal: p,
			User:      UserView{ID: owner.ID, Email: owner.Email, FullName: owner.FullName, Role: string(principal.RolePlatformOwner)},
		}, nil
	} else if !errors.Is(err, school.ErrNotFound) {
		return LoginResult{}, err
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}
	if user.Status != userStatusApproved {
		return LoginResult{}, ErrUnauthorized
	}
	if VerifyPassword(user.PasswordHash, password) != nil {
		return LoginResult{}, ErrUnauthorized
	}
	sc, err := s.store.FindSchool(ctx, user.SchoolID)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}
	role, err := principal.ParseRole(user.Role)
	if err != nil {
		return LoginResult{}, ErrUnauthorized
	}

	p := principal.Principal{Subject: user.ID, Role: role, SchoolID: user.SchoolID}
	pair, err := s.mint(ctx, p)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Pair:      pair,
		Principal: p,
		User: UserView{
			ID:           user.ID,
			Email:        user.Email,
			FullName:     user.FullName,
			Role:         user.Role,
			SchoolID:     user.SchoolID,
			SchoolStatus: string(sc.Status),
		},
	}, nil
}

// Refresh exchanges a refresh token for a fresh access token. The baseline
// flow does not rotate the refresh token. Possession of a valid signature is
// not sufficient: the specific token's record must still be live.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (string, time.Time, error) {
	p, _, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	rec, err := s.store.FindLiveRefresh(ctx, p.Subject, hashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			return "", time.Time{}, ErrRefreshRevoked
		}
		return "", time.Time{}, err
	}
	if !rec.Live(s.now()) {
		return "", time.Time{}, ErrRefreshRevoked
	}
	return s.issueAccess(p)
}

func (s *Service) issueAccess(p principal.Principal) (string, time.Time, error) {
	access, exp, err := s.tokens.IssueAccess(p)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, exp, nil
}

// Register creates a pending parent account on a trial or active school.
func (s *Service) Register(ctx context.Context, in RegisterInput) (UserView, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Email == "" || len(in.Password) < 8 || in.FullName == "" || strings.TrimSpace(in.SchoolSlug) == "" {
		return UserView{}, ErrInvalidInput
	}

	sc, err := s.store.FindSchoolBySlug(ctx, in.SchoolSlug)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			return UserView{}, ErrSchoolNotFound
		}
		return UserView{}, err
	}
	if !sc.Status.AcceptsRegistrations() {
		return UserView{}, ErrSchoolClosed
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return UserView{}, err
	}
	user := &school.User{
		SchoolID:     sc.ID,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         string(principal.RoleParent),
		Status:       "pending",
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, school.ErrAlreadyExists) {
			return UserView{}, ErrAlreadyExists
		}
		return UserView{}, err
	}
	return UserView{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role, SchoolID: user.SchoolID}, nil
}

// Logout revokes every live refresh record for the subject.
func (s *Service) Logout(ctx context.Context, subject string) error {
	return s.store.RevokeAllForUser(ctx, subject)
}

func (s *Service) mint(ctx context.Context, p principal.Principal) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(p)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(p, 1)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.CreateRefresh(ctx, &school.RefreshRecord{
		UserID:     p.Subject,
		TokenHash:  hashToken(refresh),
		Generation: 1,
		ExpiresAt:  refreshExp,
	}); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
