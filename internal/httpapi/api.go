package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"devforge.org/internal/authflow"
	"devforge.org/internal/obs"
	"devforge.org/internal/principal"
	"devforge.org/internal/realtime"
	"devforge.org/internal/school"
	"devforge.org/internal/tenantdb"
	"devforge.org/internal/token"
)

// ReadyProbe pings the backing database for the health endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs. Redis and Hub are optional.
type Deps struct {
	Store   school.Store
	Auth    *authflow.Service
	Tokens  *token.Service
	Pool    *tenantdb.Pool
	Redis   *redis.Client
	Hub     *realtime.Hub
	Version string
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	store       school.Store
	auth        *authflow.Service
	tokens      *token.Service
	pool        *tenantdb.Pool
	statusCache *statusCache
	readyProbe  ReadyProbe
	version     string
}

func New(d Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		store:       d.Store,
		auth:        d.Auth,
		tokens:      d.Tokens,
		pool:        d.Pool,
		statusCache: newStatusCache(d.Redis),
		version:     d.Version,
	}
	if d.Pool != nil {
		a.readyProbe = ReadyProbe{DB: d.Pool.DB()}
	}

	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/api/me", a.handleMe)
	a.mux.HandleFunc("/api/billing/status", a.handleBillingStatus)

	students := http.HandlerFunc(a.handleStudents)
	a.mux.Handle("/api/students", RequireRole(principal.RoleSchoolAdmin, principal.RoleStaff)(students))
	a.mux.Handle("/api/students/", RequireRole(principal.RoleSchoolAdmin, principal.RoleStaff)(students))

	platform := RequireRole(principal.RolePlatformOwner)
	a.mux.Handle("/api/platform/schools", platform(http.HandlerFunc(a.handleSchoolsCollection)))
	a.mux.Handle("/api/platform/schools/", platform(http.HandlerFunc(a.handleSchoolResource)))

	if d.Hub != nil && d.Tokens != nil {
		a.mux.Handle("/api/realtime", realtime.NewBinder(d.Hub, d.Tokens))
	}

	a.mux.HandleFunc("/api/health", a.handleHealth)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler composes the middleware chain around the mux. Order matters: the
// request id exists before logging, authentication runs before the tenant
// lock, and the lock runs before any tenant-scoped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withTenantLock(h)
	h = a.withAuth(h)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"service": "devforge-api",
			"version": a.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "devforge-api",
		"version": a.version,
	})
}
