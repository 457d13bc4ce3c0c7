package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
// Sessions and audit events use these so ordering by id follows creation order.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewDevice returns a random identifier for client devices. Device ids are
// minted once per client and echoed back on later logins, so they use plain
// UUIDs rather than sortable ULIDs.
func NewDevice() string {
	return uuid.NewString()
}

// NewRequest returns a random identifier attached to each inbound request
// and propagated into audit events.
func NewRequest() string {
	return uuid.NewString()
}
