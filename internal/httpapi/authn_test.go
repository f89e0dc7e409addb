package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"devforge.org/internal/principal"
	"devforge.org/internal/school"
)

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	handler := RequireRole(principal.RoleSchoolAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(principal.ContextWith(req.Context(), principal.Principal{
		Subject: "user-1", Role: principal.RoleSchoolAdmin, SchoolID: testSchoolID,
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	handler := RequireRole(principal.RoleSchoolAdmin, principal.RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(principal.ContextWith(req.Context(), principal.Principal{
		Subject: "user-1", Role: principal.RoleParent, SchoolID: testSchoolID,
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireRoleRejectsMissingPrincipal(t *testing.T) {
	handler := RequireRole(principal.RoleSchoolAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestWithAuthUniform401(t *testing.T) {
	e := newTestEnv(t)
	e.addSchool(testSchoolID, school.StatusActive)
	h := e.api.Handler()

	cases := map[string]func(r *http.Request){
		"no header":     func(r *http.Request) {},
		"wrong scheme":  func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
		"empty bearer":  func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") },
		"garbage token": func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") },
	}
	for name, mutate := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		mutate(req)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
		body := decodeBody(t, rr)
		if body["error"] != "unauthorized" {
			t.Fatalf("%s: expected generic error, got %v", name, body["error"])
		}
	}
}

func TestWithAuthSkipsPublicPaths(t *testing.T) {
	e := newTestEnv(t)
	h := e.api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from health without a token, got %d", rr.Code)
	}
}
