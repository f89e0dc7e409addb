package httpapi

import (
	"context"
	"fmt"
	"testing"
	"time"

	"devforge.org/internal/authflow"
	"devforge.org/internal/school"
	"devforge.org/internal/token"
)

const (
	testSchoolID  = "33333333-3333-3333-3333-333333333333"
	otherSchoolID = "44444444-4444-4444-4444-444444444444"
)

// fakeStore is an in-memory school.Store for handler tests.
type fakeStore struct {
	users   map[string]*school.User
	owners  map[string]*school.PlatformOwner
	schools map[string]*school.School
	refresh map[string]*school.RefreshRecord
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*school.User),
		owners:  make(map[string]*school.PlatformOwner),
		schools: make(map[string]*school.School),
		refresh: make(map[string]*school.RefreshRecord),
	}
}

func (m *fakeStore) FindUserByEmail(_ context.Context, email string) (*school.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, school.ErrNotFound
}

func (m *fakeStore) FindUser(_ context.Context, id string) (*school.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, school.ErrNotFound
}

func (m *fakeStore) CreateUser(_ context.Context, u *school.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email && existing.SchoolID == u.SchoolID {
			return school.ErrAlreadyExists
		}
	}
	if u.ID == "" {
		m.nextID++
		u.ID = fmt.Sprintf("user-%d", m.nextID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *fakeStore) FindOwnerByEmail(_ context.Context, email string) (*school.PlatformOwner, error) {
	for _, o := range m.owners {
		if o.Email == email {
			return o, nil
		}
	}
	return nil, school.ErrNotFound
}

func (m *fakeStore) FindSchool(_ context.Context, id string) (*school.School, error) {
	if s, ok := m.schools[id]; ok {
		return s, nil
	}
	return nil, school.ErrNotFound
}

func (m *fakeStore) FindSchoolBySlug(_ context.Context, slug string) (*school.School, error) {
	for _, s := range m.schools {
		if s.Slug == slug {
			return s, nil
		}
	}
	return nil, school.ErrNotFound
}

func (m *fakeStore) SchoolStatus(ctx context.Context, id string) (school.Status, error) {
	s, err := m.FindSchool(ctx, id)
	if err != nil {
		return "", err
	}
	return s.Status, nil
}

func (m *fakeStore) CreateSchool(_ context.Context, s *school.School) error {
	for _, existing := range m.schools {
		if existing.Slug == s.Slug {
			return school.ErrAlreadyExists
		}
	}
	if s.ID == "" {
		m.nextID++
		s.ID = fmt.Sprintf("school-%d", m.nextID)
	}
	if s.Status == "" {
		s.Status = school.StatusTrial
	}
	m.schools[s.ID] = s
	return nil
}

func (m *fakeStore) UpdateSchoolStatus(_ context.Context, id string, status school.Status, reason string) error {
	s, ok := m.schools[id]
	if !ok {
		return school.ErrNotFound
	}
	s.Status = status
	s.SuspensionReason = reason
	return nil
}

func (m *fakeStore) ListSchools(_ context.Context) ([]*school.School, error) {
	var res []*school.School
	for _, s := range m.schools {
		res = append(res, s)
	}
	return res, nil
}

func (m *fakeStore) CreateRefresh(_ context.Context, rec *school.RefreshRecord) error {
	if rec.ID == "" {
		m.nextID++
		rec.ID = fmt.Sprintf("refresh-%d", m.nextID)
	}
	m.refresh[rec.ID] = rec
	return nil
}

func (m *fakeStore) FindLiveRefresh(_ context.Context, userID, tokenHash string) (*school.RefreshRecord, error) {
	now := time.Now()
	for _, rec := range m.refresh {
		if rec.UserID == userID && rec.TokenHash == tokenHash && rec.Live(now) {
			return rec, nil
		}
	}
	return nil, school.ErrNotFound
}

func (m *fakeStore) RevokeRefresh(_ context.Context, id string) error {
	rec, ok := m.refresh[id]
	if !ok {
		return school.ErrNotFound
	}
	now := time.Now()
	rec.RevokedAt = &now
	return nil
}

func (m *fakeStore) RevokeAllForUser(_ context.Context, userID string) error {
	now := time.Now()
	for _, rec := range m.refresh {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	}
	return nil
}

// env bundles the wired-up test API.
type env struct {
	api    *API
	store  *fakeStore
	tokens *token.Service
	auth   *authflow.Service
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	store := newFakeStore()
	tokens, err := token.NewService(
		[]byte("access-secret-0123456789-0123456789"),
		[]byte("refresh-secret-0123456789-0123456789"),
		15*time.Minute, 30*24*time.Hour,
	)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	auth := authflow.NewService(store, tokens)
	api := New(Deps{Store: store, Auth: auth, Tokens: tokens, Version: "test"})
	return &env{api: api, store: store, tokens: tokens, auth: auth}
}

func (e *env) addSchool(id string, status school.Status) *school.School {
	s := &school.School{
		ID:           id,
		Name:         "School " + id[:4],
		Slug:         "school-" + id[:4],
		ContactEmail: "office@" + id[:4] + ".test",
		Status:       status,
		CreatedAt:    time.Now(),
	}
	e.store.schools[id] = s
	return s
}

func (e *env) addUser(t *testing.T, schoolID, email, password, role string) *school.User {
	t.Helper()
	hash, err := authflow.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &school.User{
		SchoolID:     schoolID,
		Email:        email,
		PasswordHash: hash,
		FullName:     "Test User",
		Role:         role,
		Status:       "approved",
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
