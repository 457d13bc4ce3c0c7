package audit

import (
	"testing"
	"time"
)

func scorerAt(t time.Time) (*Scorer, func(time.Duration) time.Time) {
	current := t
	s := NewScorer(func() time.Time { return current })
	advance := func(d time.Duration) time.Time {
		current = current.Add(d)
		return current
	}
	return s, advance
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func loginEvent(principal, origin, device string, outcome Outcome, at time.Time) *Event {
	return &Event{
		Type:        TypeLoginSuccess,
		PrincipalID: principal,
		Origin:      origin,
		DeviceID:    device,
		Outcome:     outcome,
		CreatedAt:   at,
	}
}

func TestScorerFirstLoginIsQuiet(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, _ := scorerAt(base)

	score, flags := s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base))
	if score != 0 || len(flags) != 0 {
		t.Fatalf("first login must not flag: score=%d flags=%v", score, flags)
	}
}

func TestScorerFailureVelocity(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, _ := scorerAt(base)

	fail := func(at time.Time) (int, []string) {
		return s.Score(&Event{
			Type: TypeLoginFailure, Origin: "10.0.0.9",
			Outcome: OutcomeFailure, CreatedAt: at,
		})
	}
	fail(base)
	fail(base.Add(time.Minute))
	score, flags := fail(base.Add(2 * time.Minute))
	if score != weightVelocity || !hasFlag(flags, FlagFailureVelocity) {
		t.Fatalf("third failure inside window must flag velocity: score=%d flags=%v", score, flags)
	}

	// Outside the window the counter has rolled off.
	score, flags = fail(base.Add(30 * time.Minute))
	if hasFlag(flags, FlagFailureVelocity) {
		t.Fatalf("stale failures must not count: score=%d flags=%v", score, flags)
	}
}

func TestScorerNewDeviceAndOrigin(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, _ := scorerAt(base)

	s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base))
	score, flags := s.Score(loginEvent("p1", "172.16.0.1", "dev-2", OutcomeSuccess, base.Add(time.Hour)))
	if !hasFlag(flags, FlagNewDevice) || !hasFlag(flags, FlagNewOrigin) {
		t.Fatalf("unfamiliar device and origin must flag: flags=%v", flags)
	}
	if score != weightNewDevice+weightNewOrigin {
		t.Fatalf("score=%d", score)
	}

	// Once seen, the same pair is quiet.
	score, flags = s.Score(loginEvent("p1", "172.16.0.1", "dev-2", OutcomeSuccess, base.Add(2*time.Hour)))
	if score != 0 || len(flags) != 0 {
		t.Fatalf("known device and origin must not flag: score=%d flags=%v", score, flags)
	}
}

func TestScorerRapidTravel(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, _ := scorerAt(base)

	s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base))
	_, flags := s.Score(loginEvent("p1", "203.0.113.5", "dev-1", OutcomeSuccess, base.Add(2*time.Minute)))
	if !hasFlag(flags, FlagRapidTravel) {
		t.Fatalf("origin change inside travel window must flag: %v", flags)
	}

	// A slow origin change is ordinary.
	s2, _ := scorerAt(base)
	s2.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base))
	_, flags = s2.Score(loginEvent("p1", "203.0.113.5", "dev-1", OutcomeSuccess, base.Add(time.Hour)))
	if hasFlag(flags, FlagRapidTravel) {
		t.Fatalf("slow origin change must not flag: %v", flags)
	}
}

func TestScorerOffHours(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, _ := scorerAt(base)

	// Build a daytime habit.
	for i := 0; i < offHoursMinLogins; i++ {
		s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base.AddDate(0, 0, i)))
	}
	night := base.AddDate(0, 0, 30).Add(17 * time.Hour) // 03:00 UTC
	_, flags := s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, night))
	if !hasFlag(flags, FlagOffHours) {
		t.Fatalf("login outside the observed pattern must flag: %v", flags)
	}
}

func TestScorerIsDeterministic(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	run := func() (int, []string) {
		s, _ := scorerAt(base)
		s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base))
		return s.Score(loginEvent("p1", "172.16.0.1", "dev-2", OutcomeSuccess, base.Add(time.Minute)))
	}
	s1, f1 := run()
	s2, f2 := run()
	if s1 != s2 || len(f1) != len(f2) {
		t.Fatalf("identical inputs must score identically: %d/%v vs %d/%v", s1, f1, s2, f2)
	}
}

func TestScorerCapsAtHundred(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, _ := scorerAt(base)

	// Prime a daytime habit, then hit every signal in one event: a third
	// failure from the same origin inside the window, an unseen device and
	// origin, an origin change minutes after the last login, at an hour the
	// principal has never used. The raw sum is 105.
	for i := 0; i < offHoursMinLogins; i++ {
		s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, base.AddDate(0, 0, i)))
	}
	night := time.Date(2025, 7, 2, 2, 58, 0, 0, time.UTC)
	s.Score(loginEvent("p1", "10.0.0.1", "dev-1", OutcomeSuccess, night))
	s.Score(&Event{Type: TypeLoginFailure, Origin: "203.0.113.5", Outcome: OutcomeFailure, CreatedAt: night.Add(time.Minute)})
	s.Score(&Event{Type: TypeLoginFailure, Origin: "203.0.113.5", Outcome: OutcomeFailure, CreatedAt: night.Add(2 * time.Minute)})

	e := &Event{
		Type: TypeLoginFailure, PrincipalID: "p1", Origin: "203.0.113.5",
		DeviceID: "dev-9", Outcome: OutcomeFailure,
		CreatedAt: night.Add(3 * time.Minute),
	}
	score, flags := s.Score(e)
	if score != 100 {
		t.Fatalf("score must cap at 100, got %d (flags %v)", score, flags)
	}
	if len(flags) != 5 {
		t.Fatalf("expected all five flags, got %v", flags)
	}
}
