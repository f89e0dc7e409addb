package school

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"devforge.org/internal/ids"
)

const uniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Users ---------------------------------------------------------------------

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx, `
		select id, school_id, email, password_hash, full_name, role, status, created_at, updated_at
		from users where email = $1
	`, email)
	return scanUser(row)
}

func (s *PGStore) FindUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, school_id, email, password_hash, full_name, role, status, created_at, updated_at
		from users where id = $1
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.SchoolID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, school_id, email, password_hash, full_name, role, status)
		values($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.SchoolID, strings.ToLower(u.Email), u.PasswordHash, u.FullName, u.Role, u.Status)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// Platform owners -----------------------------------------------------------

func (s *PGStore) FindOwnerByEmail(ctx context.Context, email string) (*PlatformOwner, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, full_name, created_at
		from platform_owners where email = $1
	`, email)
	var o PlatformOwner
	err := row.Scan(&o.ID, &o.Email, &o.PasswordHash, &o.FullName, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Schools -------------------------------------------------------------------

const schoolColumns = `id, name, slug, contact_email, status, coalesce(suspension_reason,''), created_at, updated_at`

func (s *PGStore) FindSchool(ctx context.Context, id string) (*School, error) {
	row := s.db.QueryRowContext(ctx, `select `+schoolColumns+` from schools where id = $1`, id)
	return scanSchool(row)
}

func (s *PGStore) FindSchoolBySlug(ctx context.Context, slug string) (*School, error) {
	row := s.db.QueryRowContext(ctx, `select `+schoolColumns+` from schools where slug = $1`, slug)
	return scanSchool(row)
}

func scanSchool(row *sql.Row) (*School, error) {
	var (
		sc  School
		raw string
	)
	err := row.Scan(&sc.ID, &sc.Name, &sc.Slug, &sc.ContactEmail, &raw, &sc.SuspensionReason, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	sc.Status = status
	return &sc, nil
}

func (s *PGStore) SchoolStatus(ctx context.Context, id string) (Status, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `select status from schools where id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return ParseStatus(raw)
}

// CreateSchool assigns a UUID id: the tenant identifier feeds the uuid-typed
// RLS context and must stay parseable as one.
func (s *PGStore) CreateSchool(ctx context.Context, sc *School) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Status == "" {
		sc.Status = StatusTrial
	}
	_, err := s.db.ExecContext(ctx, `
		insert into schools(id, name, slug, contact_email, status)
		values($1,$2,$3,$4,$5)
	`, sc.ID, sc.Name, sc.Slug, sc.ContactEmail, string(sc.Status))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGStore) UpdateSchoolStatus(ctx context.Context, id string, status Status, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		update schools set status = $2, suspension_reason = nullif($3,''), updated_at = now()
		where id = $1
	`, id, string(status), reason)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListSchools(ctx context.Context) ([]*School, error) {
	rows, err := s.db.QueryContext(ctx, `select `+schoolColumns+` from schools order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*School
	for rows.Next() {
		var (
			sc  School
			raw string
		)
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Slug, &sc.ContactEmail, &raw, &sc.SuspensionReason, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		status, err := ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		sc.Status = status
		res = append(res, &sc)
	}
	return res, rows.Err()
}

// Refresh records -----------------------------------------------------------

func (s *PGStore) CreateRefresh(ctx context.Context, rec *RefreshRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens(id, user_id, token_hash, generation, expires_at)
		values($1,$2,$3,$4,$5)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.Generation, rec.ExpiresAt)
	return err
}

// FindLiveRefresh matches the specific token's hash, not just any record for
// the subject, so revoking one device does not validate the others' tokens.
func (s *PGStore) FindLiveRefresh(ctx context.Context, userID, tokenHash string) (*RefreshRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, generation, expires_at, created_at, revoked_at
		from refresh_tokens
		where user_id = $1 and token_hash = $2 and revoked_at is null and expires_at > now()
	`, userID, tokenHash)
	var rec RefreshRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.Generation, &rec.ExpiresAt, &rec.CreatedAt, &rec.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PGStore) RevokeRefresh(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2 where id = $1 and revoked_at is null
	`, id, time.Now().UTC())
	return err
}

func (s *PGStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2 where user_id = $1 and revoked_at is null
	`, userID, time.Now().UTC())
	return err
}
