package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"devforge.org/internal/obs"
	"devforge.org/internal/principal"
	"devforge.org/internal/school"
)

const accountWarningHeader = "X-Account-Warning"

// Paths a suspended school may still reach: settling the bill and logging out
// must stay possible.
var suspendedExempt = []string{"/api/auth/", "/api/auth", "/api/billing/", "/api/billing", "/api/health"}

// A cancelled school keeps only the auth surface.
var cancelledExempt = []string{"/api/auth/", "/api/auth"}

// withTenantLock denies requests from schools whose account state forbids
// them. It runs after withAuth so the principal is already in context.
func (a *API) withTenantLock(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		p, ok := principal.FromContext(r.Context())
		if !ok || p.IsPlatformOwner() {
			// Public paths carry no principal; owner traffic is never gated.
			next.ServeHTTP(w, r)
			return
		}

		status, err := a.schoolStatus(r.Context(), p.SchoolID)
		if err != nil {
			if errors.Is(err, school.ErrNotFound) {
				obs.CountTenantDenial("unknown")
				writeError(w, r, http.StatusForbidden, "account unavailable")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		switch status {
		case school.StatusTrial, school.StatusActive:
			next.ServeHTTP(w, r)
		case school.StatusPastDue:
			w.Header().Set(accountWarningHeader, "payment past due")
			next.ServeHTTP(w, r)
		case school.StatusSuspended:
			if pathExempt(r.URL.Path, suspendedExempt) {
				next.ServeHTTP(w, r)
				return
			}
			obs.CountTenantDenial(string(status))
			writeLocked(w, r, "account suspended")
		case school.StatusCancelled:
			if pathExempt(r.URL.Path, cancelledExempt) {
				next.ServeHTTP(w, r)
				return
			}
			obs.CountTenantDenial(string(status))
			writeLocked(w, r, "account cancelled")
		default:
			obs.CountTenantDenial("unknown")
			writeLocked(w, r, "account unavailable")
		}
	})
}

func writeLocked(w http.ResponseWriter, r *http.Request, msg string) {
	payload := map[string]any{
		"ok":       false,
		"error":    msg,
		"redirect": "/billing",
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusForbidden, payload)
}

func pathExempt(path string, exempt []string) bool {
	for _, e := range exempt {
		if path == e || strings.HasSuffix(e, "/") && strings.HasPrefix(path, e) {
			return true
		}
	}
	return false
}

// schoolStatus resolves the lifecycle state, first from the short-TTL cache
// when one is configured, then from the store.
func (a *API) schoolStatus(ctx context.Context, schoolID string) (school.Status, error) {
	if status, ok := a.statusCache.get(ctx, schoolID); ok {
		return status, nil
	}
	status, err := a.store.SchoolStatus(ctx, schoolID)
	if err != nil {
		return "", err
	}
	a.statusCache.put(ctx, schoolID, status)
	return status, nil
}

// statusCache is a nil-safe go-redis wrapper. A short TTL keeps suspensions
// effective within seconds while sparing the store one query per request.
type statusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func newStatusCache(rdb *redis.Client) *statusCache {
	return &statusCache{rdb: rdb, ttl: 30 * time.Second}
}

func statusKey(schoolID string) string { return "school:status:" + schoolID }

func (c *statusCache) get(ctx context.Context, schoolID string) (school.Status, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	raw, err := c.rdb.Get(ctx, statusKey(schoolID)).Result()
	if err != nil {
		return "", false
	}
	status, err := school.ParseStatus(raw)
	if err != nil {
		return "", false
	}
	return status, true
}

func (c *statusCache) put(ctx context.Context, schoolID string, status school.Status) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, statusKey(schoolID), string(status), c.ttl).Err()
}

func (c *statusCache) invalidate(ctx context.Context, schoolID string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, statusKey(schoolID)).Err()
}
