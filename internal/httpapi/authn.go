package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/obs"
	"gatehouse.org/internal/principal"
	"gatehouse.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

const (
	principalKey ctxKey = "principal"
	sessionKey   ctxKey = "session"
)

// Endpoints reachable without an access token.
var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/mfa",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth resolves the bearer token to a principal and session on every
// request. Resolution always consults session state, so a revocation upstream
// takes effect on the very next request.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.sessions == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		p, s, err := a.sessions.Authenticate(r.Context(), token)
		if err != nil {
			handleSessionError(w, r, err)
			return
		}
		ctx := ContextWithPrincipal(r.Context(), p)
		ctx = context.WithValue(ctx, sessionKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithPrincipal attaches the authenticated principal.
func ContextWithPrincipal(ctx context.Context, p *principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*principal.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*principal.Principal)
	return p, ok
}

// SessionFromContext returns the authenticated session, if any.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}

// requireAccess gates a handler on the policy table. A denial is counted,
// audited and reported as 403 with no rule detail.
func (a *API) requireAccess(w http.ResponseWriter, r *http.Request, resourcePath, action string) (*principal.Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if a.policy != nil && !a.policy.Resolve(p.Role, resourcePath, action) {
		obs.CountDenial(string(p.Role))
		sessionID := ""
		if s, ok := SessionFromContext(r.Context()); ok {
			sessionID = s.ID
		}
		a.record(r.Context(), audit.Event{
			Type:         audit.TypeAccessDenied,
			PrincipalID:  p.ID,
			SessionID:    sessionID,
			Origin:       clientIP(r),
			ResourceType: resourcePath,
			Action:       action,
			Outcome:      audit.OutcomeFailure,
		})
		writeError(w, r, http.StatusForbidden, "access denied")
		return nil, false
	}
	return p, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
