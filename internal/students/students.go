// Package students is the representative tenant-scoped resource. Every
// operation takes a tenantdb.Querier, so it is impossible to reach the
// students table without a bound tenant context; row-level security keeps
// each school confined to its own rows.
package students

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"devforge.org/internal/ids"
	"devforge.org/internal/tenantdb"
)

var ErrNotFound = errors.New("students: not found")

// Student is a pupil record owned by exactly one school.
type Student struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	StudentNo string    `json:"student_no"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns the bound school's students, newest first.
func List(ctx context.Context, q tenantdb.Querier, limit int) ([]Student, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		select id, school_id, student_no, first_name, last_name, created_at
		from students
		order by created_at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.SchoolID, &st.StudentNo, &st.FirstName, &st.LastName, &st.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// Create inserts a student under the bound school. The school id comes from
// the connection's tenant context, not from the caller.
func Create(ctx context.Context, q tenantdb.Querier, st *Student) error {
	if st.ID == "" {
		st.ID = ids.New()
	}
	return q.QueryRowContext(ctx, `
		insert into students(id, school_id, student_no, first_name, last_name)
		values ($1, app.current_school(), $2, $3, $4)
		returning school_id, created_at
	`, st.ID, st.StudentNo, st.FirstName, st.LastName).Scan(&st.SchoolID, &st.CreatedAt)
}

// FindByNo looks a student up by their school-local number.
func FindByNo(ctx context.Context, q tenantdb.Querier, studentNo string) (*Student, error) {
	row := q.QueryRowContext(ctx, `
		select id, school_id, student_no, first_name, last_name, created_at
		from students where student_no = $1
	`, studentNo)
	var st Student
	err := row.Scan(&st.ID, &st.SchoolID, &st.StudentNo, &st.FirstName, &st.LastName, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
