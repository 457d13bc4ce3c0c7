package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/ids"
	"gatehouse.org/internal/principal"
	"gatehouse.org/internal/session"
)

type createPrincipalRequest struct {
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Role       string            `json:"role"`
	RetailerID string            `json:"retailer_id"`
	LocationID string            `json:"location_id"`
	MFAEnroll  bool              `json:"mfa_enroll"`
	Metadata   map[string]string `json:"metadata"`
}

type updatePrincipalRequest struct {
	Email      *string           `json:"email"`
	Role       *string           `json:"role"`
	RetailerID *string           `json:"retailer_id"`
	LocationID *string           `json:"location_id"`
	Status     *string           `json:"status"`
	Metadata   map[string]string `json:"metadata"`
}

type principalResponse struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Role        string            `json:"role"`
	RetailerID  string            `json:"retailer_id,omitempty"`
	LocationID  string            `json:"location_id,omitempty"`
	Status      string            `json:"status"`
	MFAEnrolled bool              `json:"mfa_enrolled"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// MFASecret is returned exactly once, on creation with mfa_enroll set.
	MFASecret string `json:"mfa_secret,omitempty"`
}

func toPrincipalResponse(p *principal.Principal) principalResponse {
	return principalResponse{
		ID:          p.ID,
		Email:       p.Email,
		Role:        string(p.Role),
		RetailerID:  p.Scope.RetailerID,
		LocationID:  p.Scope.LocationID,
		Status:      p.Status,
		MFAEnrolled: p.MFAEnrolled,
		Metadata:    p.Metadata,
	}
}

func (a *API) handlePrincipalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createPrincipal(w, r)
	case http.MethodGet:
		a.listPrincipals(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createPrincipal(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireAccess(w, r, "/v1/principals", "create")
	if !ok {
		return
	}
	var req createPrincipalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := principal.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The rank rule covers creation too: nobody mints an account at or
	// above their own rank.
	if !actor.Role.Outranks(role) {
		writeError(w, r, http.StatusForbidden, "cannot create a principal at or above your rank")
		return
	}
	if len(req.Password) < 12 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 12 characters")
		return
	}
	hash, err := session.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	p := &principal.Principal{
		ID:           ids.New(),
		Email:        strings.TrimSpace(strings.ToLower(req.Email)),
		Role:         role,
		Scope:        principal.Scope{RetailerID: req.RetailerID, LocationID: req.LocationID},
		Status:       principal.StatusActive,
		PasswordHash: hash,
		MFAEnrolled:  req.MFAEnroll,
		Metadata:     req.Metadata,
	}
	var mfaSecret string
	if req.MFAEnroll {
		mfaSecret, err = session.NewMFASecret()
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		p.MFASecret = mfaSecret
	}
	if err := a.principals.Create(r.Context(), p); err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	a.record(r.Context(), audit.Event{
		Type: "principal.created", PrincipalID: actor.ID, Origin: clientIP(r),
		ResourceType: "principal", ResourceID: p.ID, Action: "create",
		Outcome: audit.OutcomeSuccess,
		Payload: map[string]any{"email": p.Email, "role": string(p.Role)},
	})

	resp := toPrincipalResponse(p)
	resp.MFASecret = mfaSecret
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) listPrincipals(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireAccess(w, r, "/v1/principals", "list")
	if !ok {
		return
	}
	retailerID := strings.TrimSpace(r.URL.Query().Get("retailer_id"))
	// Retailer-scoped actors only ever see their own organization.
	if actor.Scope.RetailerID != "" {
		retailerID = actor.Scope.RetailerID
	}
	if retailerID == "" {
		writeError(w, r, http.StatusBadRequest, "retailer_id is required")
		return
	}
	list, err := a.principals.ListByRetailer(r.Context(), retailerID)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	items := make([]principalResponse, 0, len(list))
	for _, p := range list {
		items = append(items, toPrincipalResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handlePrincipalResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/principals/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getPrincipal(w, r, id)
	case http.MethodPatch:
		a.updatePrincipal(w, r, id)
	case http.MethodDelete:
		a.deactivatePrincipal(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) getPrincipal(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireAccess(w, r, "/v1/principals/:id", "read")
	if !ok {
		return
	}
	p, err := a.principals.Find(r.Context(), id)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	if !visibleTo(actor, p) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, http.StatusOK, toPrincipalResponse(p))
}

func (a *API) updatePrincipal(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireAccess(w, r, "/v1/principals/:id", "update")
	if !ok {
		return
	}
	var req updatePrincipalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	target, err := a.principals.Find(r.Context(), id)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}

	upd := principal.Update{
		Email:    req.Email,
		Status:   req.Status,
		Metadata: req.Metadata,
	}
	if req.Role != nil {
		role, err := principal.ParseRole(*req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd.Role = &role
	}
	if req.RetailerID != nil || req.LocationID != nil {
		next := target.Scope
		if req.RetailerID != nil {
			next.RetailerID = *req.RetailerID
		}
		if req.LocationID != nil {
			next.LocationID = *req.LocationID
		}
		upd.Scope = &next
	}
	if err := principal.AuthorizeMutation(actor, target, upd); err != nil {
		handlePrincipalError(w, r, err)
		return
	}

	updated, err := a.principals.Update(r.Context(), id, upd)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	// A role or scope change invalidates every live session the change
	// would otherwise leak through.
	if upd.Role != nil || upd.Scope != nil {
		_ = a.sessions.RevokeAllForPrincipal(r.Context(), id, actor.ID, "role or scope changed")
	}
	a.record(r.Context(), audit.Event{
		Type: "principal.updated", PrincipalID: actor.ID, Origin: clientIP(r),
		ResourceType: "principal", ResourceID: id, Action: "update",
		Outcome: audit.OutcomeSuccess,
	})
	writeJSON(w, http.StatusOK, toPrincipalResponse(updated))
}

func (a *API) deactivatePrincipal(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireAccess(w, r, "/v1/principals/:id", "deactivate")
	if !ok {
		return
	}
	target, err := a.principals.Find(r.Context(), id)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	if actor.ID == target.ID || !actor.Role.Outranks(target.Role) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	if err := a.principals.Deactivate(r.Context(), id); err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	_ = a.sessions.RevokeAllForPrincipal(r.Context(), id, actor.ID, "deactivated")
	a.record(r.Context(), audit.Event{
		Type: "principal.deactivated", PrincipalID: actor.ID, Origin: clientIP(r),
		ResourceType: "principal", ResourceID: id, Action: "deactivate",
		Outcome: audit.OutcomeSuccess,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

// visibleTo bounds principal reads: unscoped roles see everyone, scoped
// actors see their own organization and themselves.
func visibleTo(actor, target *principal.Principal) bool {
	switch actor.Role {
	case principal.RoleOwner, principal.RoleBackoffice:
		return true
	}
	if actor.ID == target.ID {
		return true
	}
	return actor.Scope.RetailerID != "" && actor.Scope.RetailerID == target.Scope.RetailerID
}

func handlePrincipalError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, principal.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "principal not found")
	case errors.Is(err, principal.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "principal already exists")
	case errors.Is(err, principal.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, principal.ErrRankViolation):
		writeError(w, r, http.StatusForbidden, "actor does not outrank target")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
