package httpapi

import (
	"errors"
	"net/http"
	"time"

	"devforge.org/internal/audit"
	"devforge.org/internal/authflow"
	"devforge.org/internal/obs"
	"devforge.org/internal/principal"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK        bool              `json:"ok"`
	Access    string            `json:"access"`
	Refresh   string            `json:"refresh"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      authflow.UserView `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authflow.ErrUnauthorized) {
			obs.CountAuthFailure("credentials")
			obs.LogAuthEvent("auth.login_failed", "credentials", nil)
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(principal.ContextWith(r.Context(), res.Principal), "auth.login", map[string]any{
		"user_id": res.User.ID,
		"role":    res.User.Role,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		OK:        true,
		Access:    res.Pair.Access,
		Refresh:   res.Pair.Refresh,
		ExpiresAt: res.Pair.AccessExpiresAt,
		User:      res.User,
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	access, expiresAt, err := a.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		reason := "invalid_refresh"
		if errors.Is(err, authflow.ErrRefreshRevoked) {
			reason = "revoked_refresh"
		}
		obs.CountAuthFailure(reason)
		obs.LogAuthEvent("auth.refresh_failed", reason, nil)
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"access":     access,
		"expires_at": expiresAt,
	})
}

type registerRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	SchoolSlug string `json:"school_slug"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Register(r.Context(), authflow.RegisterInput{
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   req.Password,
		SchoolSlug: req.SchoolSlug,
	})
	if err != nil {
		switch {
		case errors.Is(err, authflow.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "invalid registration input")
		case errors.Is(err, authflow.ErrSchoolNotFound):
			writeError(w, r, http.StatusNotFound, "school not found")
		case errors.Is(err, authflow.ErrSchoolClosed):
			writeError(w, r, http.StatusForbidden, "school is not accepting registrations")
		case errors.Is(err, authflow.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "account already exists")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.registered", map[string]any{
		"user_id":   user.ID,
		"school_id": user.SchoolID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":   true,
		"user": user,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := principal.FromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	if err := a.auth.Logout(r.Context(), p.Subject); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principal.FromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	user := map[string]any{
		"id":   p.Subject,
		"role": string(p.Role),
	}
	if p.SchoolID != "" {
		user["school_id"] = p.SchoolID
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": user})
}
