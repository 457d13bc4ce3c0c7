package session

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// sessionLocks serializes state transitions per session id. Transitions for
// one session take its stripe's mutex, so a refresh and a revocation racing
// on the same session are linearized; unrelated sessions rarely contend.
type sessionLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *sessionLocks) lock(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
