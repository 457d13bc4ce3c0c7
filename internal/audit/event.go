package audit

import "time"

// Outcome classifies how the originating operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// Event types recorded by the security core.
const (
	TypeLoginSuccess     = "login.success"
	TypeLoginFailure     = "login.failure"
	TypeLoginRateLimited = "login.rate_limited"
	TypeLoginMFAPending  = "login.mfa_pending"
	TypeMFASuccess       = "mfa.success"
	TypeMFAFailure       = "mfa.failure"
	TypeSessionRefreshed = "session.refreshed"
	TypeSessionRevoked   = "session.revoked"
	TypeSessionExpired   = "session.expired"
	TypeAccessDenied     = "access.denied"
	TypeScopeDenied      = "scope.denied"
)

// Anomaly flags attached by the risk scorer.
const (
	FlagFailureVelocity = "failure_velocity"
	FlagNewDevice       = "new_device"
	FlagNewOrigin       = "new_origin"
	FlagRapidTravel     = "rapid_travel"
	FlagOffHours        = "off_hours"
)

// Event is one append-only audit record. Events are never updated or deleted
// after creation; a correction is a new event referencing the original via
// payload["corrects"].
type Event struct {
	ID           string
	Type         string
	PrincipalID  string // empty for unauthenticated attempts
	SessionID    string
	RequestID    string // stamped by the recorder from the request context
	Origin       string
	DeviceID     string
	ResourceType string
	ResourceID   string
	Action       string
	Outcome      Outcome
	RiskScore    int // 0..100, filled by the pipeline
	AnomalyFlags []string
	Payload      map[string]any
	Error        string
	CreatedAt    time.Time
}
