package httpapi

import (
	"encoding/json"
	"net/http"

	"gatehouse.org/internal/principal"
)

// StreamAlerts pushes security alerts to operators over Server-Sent Events.
// Only unscoped roles may watch the feed.
func (a *API) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	if a.alerts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	p, ok := a.requireAccess(w, r, "/v1/alerts/stream", "read")
	if !ok {
		return
	}
	switch p.Role {
	case principal.RoleOwner, principal.RoleBackoffice:
	default:
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := a.alerts.Subscribe()
	defer cancel()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case alrt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(alrt)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
