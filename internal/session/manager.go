package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/ids"
	"gatehouse.org/internal/obs"
	"gatehouse.org/internal/principal"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	defaultLifetime   = 14 * 24 * time.Hour
	defaultInactivity = 2 * time.Hour
)

// Auditor receives security events. Record must be fire-and-forget: it never
// blocks the calling operation and never surfaces a failure to it.
type Auditor interface {
	Record(ctx context.Context, e audit.Event)
}

// Manager owns all session state transitions. It is constructed explicitly
// and passed by reference to whoever handles requests; there is no package
// level instance, so tests run isolated managers side by side.
type Manager struct {
	principals principal.Store
	sessions   Store
	auditor    Auditor
	now        func() time.Time

	secret []byte
	issuer string

	accessTTL   time.Duration
	refreshTTL  time.Duration
	lifetimeCap time.Duration
	inactivity  time.Duration

	limitBurst  int
	limitWindow time.Duration
	limiter     *loginLimiter

	locks sessionLocks
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source. Useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithIssuer overrides the access token issuer claim.
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the rolling expiry granted per login or refresh.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
	}
}

// WithLifetimeCap bounds total session lifetime from creation. No refresh
// sequence extends expiry past creation plus this cap.
func WithLifetimeCap(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetimeCap = d
		}
	}
}

// WithInactivityTimeout configures the idle threshold.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.inactivity = d
		}
	}
}

// WithRateLimit sizes the failed-login limiter: burst failures allowed per
// rolling window, per identifier.
func WithRateLimit(burst int, window time.Duration) Option {
	return func(m *Manager) {
		if burst > 0 {
			m.limitBurst = burst
		}
		if window > 0 {
			m.limitWindow = window
		}
	}
}

// WithAuditor attaches the audit pipeline.
func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.auditor = a }
}

// NewManager constructs a Manager. The token secret is required.
func NewManager(principals principal.Store, sessions Store, secret string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session: token secret is required")
	}
	m := &Manager{
		principals:  principals,
		sessions:    sessions,
		now:         time.Now,
		secret:      []byte(secret),
		issuer:      "gatehouse",
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		lifetimeCap: defaultLifetime,
		inactivity:  defaultInactivity,
		limitBurst:  5,
		limitWindow: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.lifetimeCap < m.refreshTTL {
		return nil, errors.New("session: lifetime cap shorter than refresh ttl")
	}
	m.limiter = newLoginLimiter(m.limitBurst, m.limitWindow, m.now)
	return m, nil
}

// Login validates credentials and opens a session. When the principal is
// enrolled in MFA the returned handle is mfa-pending: it carries the session
// id and refresh token but no access token until VerifyMFA succeeds.
//
// The failed-attempt limiter is consulted before credentials are checked and
// fed on every failure, keyed by email and origin, whether or not the
// account exists.
func (m *Manager) Login(ctx context.Context, in LoginInput) (Handle, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	keys := []string{email, in.Origin}

	if m.limiter.blocked(keys...) {
		obs.CountLogin("rate_limited")
		m.record(ctx, audit.Event{
			Type: audit.TypeLoginRateLimited, Origin: in.Origin, DeviceID: in.DeviceID,
			Outcome: audit.OutcomeFailure, Payload: map[string]any{"email": email},
		})
		return Handle{}, ErrRateLimited
	}
	if email == "" || in.Password == "" {
		m.failLogin(ctx, "", in, keys)
		return Handle{}, ErrInvalidCredentials
	}

	p, err := m.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			// Equalize timing with the real verification path.
			burnPasswordCheck(in.Password)
			m.failLogin(ctx, "", in, keys)
			return Handle{}, ErrInvalidCredentials
		}
		return Handle{}, err
	}
	if err := VerifyPassword(p.PasswordHash, in.Password); err != nil {
		m.failLogin(ctx, p.ID, in, keys)
		return Handle{}, ErrInvalidCredentials
	}
	// A timed-out verification is an authentication failure, never a success.
	if err := ctx.Err(); err != nil {
		return Handle{}, ErrInvalidCredentials
	}
	switch p.Status {
	case principal.StatusActive:
	case principal.StatusSuspended:
		obs.CountLogin("suspended")
		m.record(ctx, audit.Event{
			Type: audit.TypeLoginFailure, PrincipalID: p.ID, Origin: in.Origin,
			DeviceID: in.DeviceID, Outcome: audit.OutcomeFailure,
			Payload: map[string]any{"reason": "suspended"},
		})
		return Handle{}, ErrAccountSuspended
	default:
		m.failLogin(ctx, p.ID, in, keys)
		return Handle{}, ErrInvalidCredentials
	}

	now := m.now()
	deviceID := in.DeviceID
	if deviceID == "" {
		deviceID = ids.NewDevice()
	}
	s := &Session{
		ID:              ids.New(),
		PrincipalID:     p.ID,
		CreatedAt:       now,
		ExpiresAt:       m.boundedExpiry(now, now),
		LastActivityAt:  now,
		Origin:          in.Origin,
		ClientSignature: in.ClientSignature,
		DeviceID:        deviceID,
		MFAVerified:     !p.MFAEnrolled,
	}
	refreshToken, refreshHash, err := newRefreshCredential(s.ID)
	if err != nil {
		return Handle{}, err
	}
	s.RefreshHash = refreshHash
	if err := m.sessions.Create(ctx, s); err != nil {
		return Handle{}, err
	}

	handle := Handle{
		SessionID:    s.ID,
		RefreshToken: refreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
	if p.MFAEnrolled {
		handle.MFAPending = true
		obs.CountLogin("mfa_pending")
		m.record(ctx, audit.Event{
			Type: audit.TypeLoginMFAPending, PrincipalID: p.ID, SessionID: s.ID,
			Origin: in.Origin, DeviceID: deviceID, Outcome: audit.OutcomeSuccess,
		})
		return handle, nil
	}

	token, accessExp, err := m.signAccessToken(s, string(p.Role), now)
	if err != nil {
		return Handle{}, err
	}
	handle.AccessToken = token
	handle.AccessExpiresAt = accessExp
	obs.CountLogin("success")
	m.record(ctx, audit.Event{
		Type: audit.TypeLoginSuccess, PrincipalID: p.ID, SessionID: s.ID,
		Origin: in.Origin, DeviceID: deviceID, Outcome: audit.OutcomeSuccess,
	})
	return handle, nil
}

// VerifyMFA completes the second factor for an mfa-pending session and
// returns a handle carrying the access token.
func (m *Manager) VerifyMFA(ctx context.Context, sessionID, code string) (Handle, error) {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	s, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		return Handle{}, err
	}
	if s.Revoked() {
		return Handle{}, ErrSessionRevoked
	}
	now := m.now()
	if s.Expired(now) || s.TimedOut(now, m.inactivity) {
		return Handle{}, ErrSessionExpired
	}
	p, err := m.principals.Find(ctx, s.PrincipalID)
	if err != nil {
		return Handle{}, err
	}
	if !p.Active() {
		return Handle{}, ErrAccountSuspended
	}
	if !p.MFAEnrolled || !verifyTOTP(p.MFASecret, code, now) {
		m.record(ctx, audit.Event{
			Type: audit.TypeMFAFailure, PrincipalID: p.ID, SessionID: s.ID,
			Origin: s.Origin, DeviceID: s.DeviceID, Outcome: audit.OutcomeFailure,
		})
		return Handle{}, ErrInvalidCredentials
	}
	if err := m.sessions.MarkMFAVerified(ctx, s.ID); err != nil {
		return Handle{}, err
	}
	token, accessExp, err := m.signAccessToken(s, string(p.Role), now)
	if err != nil {
		return Handle{}, err
	}
	obs.CountLogin("success")
	m.record(ctx, audit.Event{
		Type: audit.TypeMFASuccess, PrincipalID: p.ID, SessionID: s.ID,
		Origin: s.Origin, DeviceID: s.DeviceID, Outcome: audit.OutcomeSuccess,
	})
	return Handle{
		SessionID:       s.ID,
		AccessToken:     token,
		AccessExpiresAt: accessExp,
		ExpiresAt:       s.ExpiresAt,
	}, nil
}

// Refresh exchanges a valid refresh token for a rotated one and a new access
// token. The new expiry rolls forward but never past creation plus the
// lifetime cap. Refresh is all-or-nothing: on any failure the prior session
// state is unchanged.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Handle, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return Handle{}, ErrInvalidCredentials
	}

	unlock := m.locks.lock(sessionID)
	defer unlock()

	s, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Handle{}, ErrInvalidCredentials
		}
		return Handle{}, err
	}
	if s.Revoked() {
		return Handle{}, ErrSessionRevoked
	}
	now := m.now()
	if s.Expired(now) || s.TimedOut(now, m.inactivity) {
		return Handle{}, ErrSessionExpired
	}
	if hashRefreshSecret(secret) != s.RefreshHash {
		// A wrong secret for a live session smells like token theft; kill
		// the session rather than give the holder more attempts.
		_ = m.sessions.Revoke(ctx, s.ID, "system", "refresh token mismatch", now)
		m.record(ctx, audit.Event{
			Type: audit.TypeSessionRevoked, PrincipalID: s.PrincipalID, SessionID: s.ID,
			Origin: s.Origin, Outcome: audit.OutcomeError,
			Payload: map[string]any{"reason": "refresh token mismatch"},
		})
		return Handle{}, ErrInvalidCredentials
	}

	newExpiry := m.boundedExpiry(s.CreatedAt, now)
	if !newExpiry.After(now) {
		return Handle{}, ErrSessionExpired
	}

	// Everything fallible happens before Rotate: once the stored hash changes
	// the caller must be guaranteed to receive the replacement token.
	p, err := m.principals.Find(ctx, s.PrincipalID)
	if err != nil {
		return Handle{}, err
	}
	if !p.Active() {
		return Handle{}, ErrAccountSuspended
	}
	newToken, newHash, err := newRefreshCredential(s.ID)
	if err != nil {
		return Handle{}, err
	}
	handle := Handle{
		SessionID:    s.ID,
		RefreshToken: newToken,
		ExpiresAt:    newExpiry,
		MFAPending:   !s.MFAVerified,
	}
	if s.MFAVerified {
		token, accessExp, err := m.signAccessToken(s, string(p.Role), now)
		if err != nil {
			return Handle{}, err
		}
		handle.AccessToken = token
		handle.AccessExpiresAt = accessExp
	}
	if err := m.sessions.Rotate(ctx, s.ID, newHash, newExpiry, now); err != nil {
		return Handle{}, err
	}
	m.record(ctx, audit.Event{
		Type: audit.TypeSessionRefreshed, PrincipalID: s.PrincipalID, SessionID: s.ID,
		Origin: s.Origin, DeviceID: s.DeviceID, Outcome: audit.OutcomeSuccess,
	})
	return handle, nil
}

// Revoke terminates a session. Revoking an already revoked session is a
// no-op; racing a refresh, revoke wins because both serialize on the session
// lock and refresh re-reads state before rotating.
func (m *Manager) Revoke(ctx context.Context, sessionID, actor, reason string) error {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	s, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Revoked() {
		return nil
	}
	now := m.now()
	if err := m.sessions.Revoke(ctx, sessionID, actor, reason, now); err != nil {
		return err
	}
	m.record(ctx, audit.Event{
		Type: audit.TypeSessionRevoked, PrincipalID: s.PrincipalID, SessionID: s.ID,
		Origin: s.Origin, Outcome: audit.OutcomeSuccess,
		Payload: map[string]any{"actor": actor, "reason": reason},
	})
	return nil
}

// RevokeAllForPrincipal is the administrative kill switch for one account.
func (m *Manager) RevokeAllForPrincipal(ctx context.Context, principalID, actor, reason string) error {
	if err := m.sessions.RevokeAllForPrincipal(ctx, principalID, actor, reason, m.now()); err != nil {
		return err
	}
	m.record(ctx, audit.Event{
		Type: audit.TypeSessionRevoked, PrincipalID: principalID,
		Outcome: audit.OutcomeSuccess,
		Payload: map[string]any{"actor": actor, "reason": reason, "all_sessions": true},
	})
	return nil
}

// Authenticate resolves an access token to its principal and session. Every
// call re-reads session state, so revocation or expiry is effective for
// in-flight traffic with no grace period, and advances last_activity.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (*principal.Principal, *Session, error) {
	claims, err := m.parseAccessToken(accessToken)
	if err != nil {
		return nil, nil, err
	}
	s, err := m.sessions.Find(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if s.Revoked() {
		return nil, nil, ErrSessionRevoked
	}
	now := m.now()
	if s.Expired(now) {
		return nil, nil, ErrSessionExpired
	}
	if s.TimedOut(now, m.inactivity) {
		return nil, nil, ErrSessionExpired
	}
	if !s.MFAVerified {
		return nil, nil, ErrMFARequired
	}
	p, err := m.principals.Find(ctx, s.PrincipalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !p.Active() {
		return nil, nil, ErrAccountSuspended
	}
	// Activity refresh rides on the request; its failure must not fail
	// authentication.
	_ = m.sessions.Touch(ctx, s.ID, now)
	return p, s, nil
}

// CurrentPrincipal is the narrow accessor consumed by business layers.
func (m *Manager) CurrentPrincipal(ctx context.Context, accessToken string) (*principal.Principal, error) {
	p, _, err := m.Authenticate(ctx, accessToken)
	return p, err
}

// RunSweeper periodically marks expired and idle sessions revoked and
// refreshes the active-session gauge. This is housekeeping: per-request
// checks remain authoritative, so losing a sweep costs nothing.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.sessions.SweepExpired(ctx, m.now(), m.inactivity); err != nil {
				obs.Logger().Warn().Err(err).Msg("session sweep failed")
			}
			if n, err := m.sessions.CountActive(ctx, m.now()); err == nil {
				obs.SetActiveSessions(n)
			}
			m.limiter.sweep(2 * m.limitWindow)
		}
	}
}

func (m *Manager) boundedExpiry(createdAt, now time.Time) time.Time {
	expiry := now.Add(m.refreshTTL)
	if ceiling := createdAt.Add(m.lifetimeCap); expiry.After(ceiling) {
		return ceiling
	}
	return expiry
}

func (m *Manager) failLogin(ctx context.Context, principalID string, in LoginInput, keys []string) {
	m.limiter.fail(keys...)
	obs.CountLogin("invalid")
	m.record(ctx, audit.Event{
		Type: audit.TypeLoginFailure, PrincipalID: principalID, Origin: in.Origin,
		DeviceID: in.DeviceID, Outcome: audit.OutcomeFailure,
		Payload: map[string]any{"email": strings.TrimSpace(strings.ToLower(in.Email))},
	})
}

func (m *Manager) record(ctx context.Context, e audit.Event) {
	if m.auditor == nil {
		return
	}
	m.auditor.Record(ctx, e)
}
