package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"devforge.org/internal/principal"
	"devforge.org/internal/students"
	"devforge.org/internal/tenantdb"
)

type createStudentRequest struct {
	StudentNo string `json:"student_no"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a *API) handleStudents(w http.ResponseWriter, r *http.Request) {
	if rest := strings.TrimPrefix(r.URL.Path, "/api/students"); rest != "" && rest != "/" {
		studentNo := strings.Trim(rest, "/")
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getStudent(w, r, studentNo)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.listStudents(w, r)
	case http.MethodPost:
		a.createStudent(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = val
	}

	var items []students.Student
	err := a.pool.WithTenant(r.Context(), p.SchoolID, func(q tenantdb.Querier) error {
		var err error
		items, err = students.List(r.Context(), q, limit)
		return err
	})
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	if items == nil {
		items = []students.Student{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (a *API) createStudent(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	var req createStudentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.StudentNo = strings.TrimSpace(req.StudentNo)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.StudentNo == "" || req.FirstName == "" || req.LastName == "" {
		writeError(w, r, http.StatusBadRequest, "student_no, first_name and last_name are required")
		return
	}

	st := students.Student{
		StudentNo: req.StudentNo,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	err := a.pool.WithTenant(r.Context(), p.SchoolID, func(q tenantdb.Querier) error {
		return students.Create(r.Context(), q, &st)
	})
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "student": st})
}

func (a *API) getStudent(w http.ResponseWriter, r *http.Request, studentNo string) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	var st *students.Student
	err := a.pool.WithTenant(r.Context(), p.SchoolID, func(q tenantdb.Querier) error {
		var err error
		st, err = students.FindByNo(r.Context(), q, studentNo)
		return err
	})
	if err != nil {
		if errors.Is(err, students.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "student not found")
			return
		}
		handleTenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "student": st})
}

// handleTenantError maps tenant-binding failures onto wire responses. Pool
// exhaustion is the only retryable case.
func handleTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenantdb.ErrInvalidTenantID):
		unauthorized(w, r)
	case errors.Is(err, tenantdb.ErrPoolExhausted):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "server busy, retry shortly")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
