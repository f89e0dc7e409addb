package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"devforge.org/internal/audit"
	"devforge.org/internal/principal"
	"devforge.org/internal/school"
)

type createSchoolRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ContactEmail string `json:"contact_email"`
}

type schoolView struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	ContactEmail     string    `json:"contact_email"`
	Status           string    `json:"status"`
	SuspensionReason string    `json:"suspension_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func viewSchool(s *school.School) schoolView {
	return schoolView{
		ID:               s.ID,
		Name:             s.Name,
		Slug:             s.Slug,
		ContactEmail:     s.ContactEmail,
		Status:           string(s.Status),
		SuspensionReason: s.SuspensionReason,
		CreatedAt:        s.CreatedAt,
	}
}

func (a *API) handleSchoolsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listSchools(w, r)
	case http.MethodPost:
		a.createSchool(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listSchools(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListSchools(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]schoolView, 0, len(items))
	for _, s := range items {
		views = append(views, viewSchool(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": views})
}

func (a *API) createSchool(w http.ResponseWriter, r *http.Request) {
	var req createSchoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(strings.ToLower(req.Slug))
	req.ContactEmail = strings.TrimSpace(strings.ToLower(req.ContactEmail))
	if req.Name == "" || req.Slug == "" {
		writeError(w, r, http.StatusBadRequest, "name and slug are required")
		return
	}

	s := school.School{
		Name:         req.Name,
		Slug:         req.Slug,
		ContactEmail: req.ContactEmail,
	}
	if err := a.store.CreateSchool(r.Context(), &s); err != nil {
		if errors.Is(err, school.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "slug already in use")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "school.created", map[string]any{
		"school_id": s.ID,
		"slug":      s.Slug,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "school": viewSchool(&s)})
}

type schoolStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (a *API) handleSchoolResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/platform/schools/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, found := strings.CutSuffix(rest, "/status"); found {
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "school not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.updateSchoolStatus(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, err := a.store.FindSchool(r.Context(), strings.Trim(rest, "/"))
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "school not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "school": viewSchool(s)})
}

func (a *API) updateSchoolStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req schoolStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := school.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown status")
		return
	}
	if status == school.StatusSuspended && strings.TrimSpace(req.Reason) == "" {
		writeError(w, r, http.StatusBadRequest, "reason is required when suspending")
		return
	}

	if err := a.store.UpdateSchoolStatus(r.Context(), id, status, strings.TrimSpace(req.Reason)); err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "school not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	// The next status lookup must see the change immediately.
	a.statusCache.invalidate(r.Context(), id)

	_ = audit.LogEvent(r.Context(), "school.status_changed", map[string]any{
		"school_id": id,
		"status":    string(status),
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": string(status)})
}

func (a *API) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principal.FromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	if p.IsPlatformOwner() {
		writeError(w, r, http.StatusBadRequest, "platform accounts have no billing state")
		return
	}

	s, err := a.store.FindSchool(r.Context(), p.SchoolID)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "school not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	payload := map[string]any{
		"ok":     true,
		"status": string(s.Status),
	}
	if s.SuspensionReason != "" {
		payload["reason"] = s.SuspensionReason
	}
	writeJSON(w, http.StatusOK, payload)
}
