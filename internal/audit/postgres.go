package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore persists events to PostgreSQL. Append is the only operation: the
// table is written once per event and never touched again through this API.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, e *Event) error {
	payload, _ := json.Marshal(e.Payload)
	flags := strings.Join(e.AnomalyFlags, ",")
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events(id, event_type, principal_id, session_id, request_id,
			origin, device_id, resource_type, resource_id, action, outcome, risk_score,
			anomaly_flags, payload, error, created_at)
		values($1,$2,nullif($3,''),nullif($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.Type, e.PrincipalID, e.SessionID, e.RequestID, e.Origin, e.DeviceID,
		e.ResourceType, e.ResourceID, e.Action, string(e.Outcome), e.RiskScore,
		flags, payload, e.Error, e.CreatedAt,
	)
	return err
}
