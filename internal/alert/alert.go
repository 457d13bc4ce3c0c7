package alert

import (
	"sync"
	"time"
)

// Alert is the real-time surfacing of a high-risk audit event, distinct from
// the audit record itself.
type Alert struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	RiskScore   int       `json:"risk_score"`
	Flags       []string  `json:"flags"`
	CreatedAt   time.Time `json:"created_at"`
}

// Broadcaster fans alerts out to all active subscribers. Publishing is
// best-effort and never blocks: a subscriber that stops draining loses
// alerts rather than stalling the pipeline.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[int]chan Alert
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Alert)}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release the channel.
func (b *Broadcaster) Subscribe() (<-chan Alert, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Alert, 16)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the alert to every subscriber that can take it now.
func (b *Broadcaster) Publish(a Alert) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

// Subscribers reports the current listener count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
