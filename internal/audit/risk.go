package audit

import (
	"sync"
	"time"
)

// Scorer computes a deterministic 0..100 risk score from signals present at
// event time: failed-attempt velocity per origin, first-time device or
// origin for the principal, an origin change between consecutive logins too
// quick to be plausible travel, and access at hours outside the principal's
// observed pattern. History is kept in memory and bounded; losing it only
// resets scores toward zero, never blocks an operation.
type Scorer struct {
	mu  sync.Mutex
	now func() time.Time

	failureWindow time.Duration
	travelWindow  time.Duration

	originFailures map[string][]time.Time
	profiles       map[string]*profile
}

type profile struct {
	devices    map[string]struct{}
	origins    map[string]struct{}
	lastOrigin string
	lastLogin  time.Time
	hours      [24]int
	logins     int
}

// Score weights. Illustrative but fixed: the listed signals are the
// contract, the exact formula is tunable.
const (
	weightVelocity    = 40
	weightNewDevice   = 15
	weightNewOrigin   = 15
	weightRapidTravel = 25
	weightOffHours    = 10

	velocityThreshold = 3 // failures from one origin inside the window
	offHoursMinLogins = 10
)

func NewScorer(now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{
		now:            now,
		failureWindow:  10 * time.Minute,
		travelWindow:   5 * time.Minute,
		originFailures: make(map[string][]time.Time),
		profiles:       make(map[string]*profile),
	}
}

// Score evaluates one event and returns its risk score and anomaly flags,
// then folds the event into history.
func (s *Scorer) Score(e *Event) (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := e.CreatedAt
	if now.IsZero() {
		now = s.now()
	}
	score := 0
	var flags []string

	if e.Outcome == OutcomeFailure && e.Origin != "" {
		recent := s.recentFailures(e.Origin, now)
		recent = append(recent, now)
		s.originFailures[e.Origin] = recent
		if len(recent) >= velocityThreshold {
			score += weightVelocity
			flags = append(flags, FlagFailureVelocity)
		}
	}

	if e.PrincipalID != "" && isLoginType(e.Type) {
		p := s.profile(e.PrincipalID)
		if e.DeviceID != "" {
			if _, seen := p.devices[e.DeviceID]; !seen && p.logins > 0 {
				score += weightNewDevice
				flags = append(flags, FlagNewDevice)
			}
		}
		if e.Origin != "" {
			if _, seen := p.origins[e.Origin]; !seen && p.logins > 0 {
				score += weightNewOrigin
				flags = append(flags, FlagNewOrigin)
			}
			if p.lastOrigin != "" && p.lastOrigin != e.Origin &&
				now.Sub(p.lastLogin) < s.travelWindow {
				score += weightRapidTravel
				flags = append(flags, FlagRapidTravel)
			}
		}
		hour := now.UTC().Hour()
		if p.logins >= offHoursMinLogins && p.hours[hour] == 0 {
			score += weightOffHours
			flags = append(flags, FlagOffHours)
		}

		if e.Outcome == OutcomeSuccess {
			if e.DeviceID != "" {
				p.devices[e.DeviceID] = struct{}{}
			}
			if e.Origin != "" {
				p.origins[e.Origin] = struct{}{}
				p.lastOrigin = e.Origin
				p.lastLogin = now
			}
			p.hours[hour]++
			p.logins++
		}
	}

	if score > 100 {
		score = 100
	}
	return score, flags
}

func (s *Scorer) recentFailures(origin string, now time.Time) []time.Time {
	cutoff := now.Add(-s.failureWindow)
	kept := s.originFailures[origin][:0]
	for _, t := range s.originFailures[origin] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Scorer) profile(principalID string) *profile {
	p, ok := s.profiles[principalID]
	if !ok {
		p = &profile{devices: map[string]struct{}{}, origins: map[string]struct{}{}}
		s.profiles[principalID] = p
	}
	return p
}

func isLoginType(t string) bool {
	switch t {
	case TypeLoginSuccess, TypeLoginFailure, TypeLoginMFAPending, TypeMFASuccess, TypeMFAFailure:
		return true
	}
	return false
}
