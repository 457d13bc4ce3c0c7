// Package httpapi is the HTTP surface over the security core: credential
// endpoints, principal administration and scoped entity access.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"gatehouse.org/internal/alert"
	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/obs"
	"gatehouse.org/internal/policy"
	"gatehouse.org/internal/principal"
	"gatehouse.org/internal/scope"
	"gatehouse.org/internal/session"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires handlers to their dependencies. All dependencies arrive through
// New; nothing here reaches for package state.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	sessions   *session.Manager
	principals principal.Store
	policy     *policy.Engine
	entities   *scope.Store
	auditor    session.Auditor
	alerts     *alert.Broadcaster

	maxBody   int64
	rateBurst int
	ratePerS  int
}

// Options carries the API dependencies.
type Options struct {
	Ready      ReadyProbe
	Version    string
	Sessions   *session.Manager
	Principals principal.Store
	Policy     *policy.Engine
	Entities   *scope.Store
	Auditor    session.Auditor
	Alerts     *alert.Broadcaster

	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: opts.Ready,
		version:    opts.Version,
		sessions:   opts.Sessions,
		principals: opts.Principals,
		policy:     opts.Policy,
		entities:   opts.Entities,
		auditor:    opts.Auditor,
		alerts:     opts.Alerts,
		maxBody:    opts.MaxBodyBytes,
		rateBurst:  opts.RateBurst,
		ratePerS:   opts.RatePerSec,
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerS <= 0 {
		a.ratePerS = 10
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/mfa", a.handleVerifyMFA)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/whoami", a.handleWhoAmI)

	a.mux.HandleFunc("/v1/principals", a.handlePrincipalsCollection)
	a.mux.HandleFunc("/v1/principals/", a.handlePrincipalResource)

	a.mux.HandleFunc("/v1/entities/", a.handleEntities)

	a.mux.HandleFunc("/v1/alerts/stream", a.StreamAlerts)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerS)
	h = MaxBodyBytes(h, a.maxBody)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatehouse-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func (a *API) record(ctx context.Context, e audit.Event) {
	if a.auditor == nil {
		return
	}
	a.auditor.Record(ctx, e)
}

// handleSessionError maps credential and session errors to HTTP statuses
// without distinguishing unknown accounts from wrong passwords.
func handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, r, http.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, session.ErrAccountSuspended):
		writeError(w, r, http.StatusForbidden, "account suspended")
	case errors.Is(err, session.ErrMFARequired):
		writeError(w, r, http.StatusUnauthorized, "mfa verification required")
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, r, http.StatusUnauthorized, "session expired")
	case errors.Is(err, session.ErrSessionRevoked):
		writeError(w, r, http.StatusUnauthorized, "session revoked")
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
