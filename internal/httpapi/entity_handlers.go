package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/scope"
)

type entityRequest struct {
	RetailerID string         `json:"retailer_id"`
	LocationID string         `json:"location_id"`
	Attrs      map[string]any `json:"attrs"`
}

type entityResponse struct {
	ID         string         `json:"id"`
	RetailerID string         `json:"retailer_id"`
	LocationID string         `json:"location_id,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

func toEntityResponse(r *scope.Row) entityResponse {
	return entityResponse{
		ID:         r.ID,
		RetailerID: r.RetailerID,
		LocationID: r.LocationID,
		Attrs:      r.Attrs,
	}
}

// handleEntities routes /v1/entities/{class} and /v1/entities/{class}/{id}.
// Every operation flows through the scoped store, so row visibility never
// depends on which handler reached it.
func (a *API) handleEntities(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/entities/")
	parts := strings.SplitN(strings.TrimSuffix(rest, "/"), "/", 2)
	if parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	entity := scope.EntityClass(parts[0])

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.listEntities(w, r, entity)
		case http.MethodPost:
			a.createEntity(w, r, entity)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	id := parts[1]
	switch r.Method {
	case http.MethodGet:
		a.getEntity(w, r, entity, id)
	case http.MethodPut:
		a.updateEntity(w, r, entity, id)
	case http.MethodDelete:
		a.deleteEntity(w, r, entity, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listEntities(w http.ResponseWriter, r *http.Request, entity scope.EntityClass) {
	p, ok := a.requireAccess(w, r, "/v1/entities/"+string(entity), "list")
	if !ok {
		return
	}
	rows, err := a.entities.List(r.Context(), p, entity)
	if err != nil {
		a.handleScopeError(w, r, entity, "", "list", err)
		return
	}
	items := make([]entityResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, toEntityResponse(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getEntity(w http.ResponseWriter, r *http.Request, entity scope.EntityClass, id string) {
	p, ok := a.requireAccess(w, r, "/v1/entities/"+string(entity)+"/:id", "read")
	if !ok {
		return
	}
	row, err := a.entities.Get(r.Context(), p, entity, id)
	if err != nil {
		a.handleScopeError(w, r, entity, id, "read", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(row))
}

func (a *API) createEntity(w http.ResponseWriter, r *http.Request, entity scope.EntityClass) {
	p, ok := a.requireAccess(w, r, "/v1/entities/"+string(entity), "create")
	if !ok {
		return
	}
	var req entityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	row := &scope.Row{
		RetailerID: req.RetailerID,
		LocationID: req.LocationID,
		Attrs:      req.Attrs,
	}
	if err := a.entities.Insert(r.Context(), p, entity, row); err != nil {
		a.handleScopeError(w, r, entity, "", "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntityResponse(row))
}

func (a *API) updateEntity(w http.ResponseWriter, r *http.Request, entity scope.EntityClass, id string) {
	p, ok := a.requireAccess(w, r, "/v1/entities/"+string(entity)+"/:id", "update")
	if !ok {
		return
	}
	var req entityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	row := &scope.Row{
		ID:         id,
		RetailerID: req.RetailerID,
		LocationID: req.LocationID,
		Attrs:      req.Attrs,
	}
	if err := a.entities.Update(r.Context(), p, entity, row); err != nil {
		a.handleScopeError(w, r, entity, id, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(row))
}

func (a *API) deleteEntity(w http.ResponseWriter, r *http.Request, entity scope.EntityClass, id string) {
	p, ok := a.requireAccess(w, r, "/v1/entities/"+string(entity)+"/:id", "delete")
	if !ok {
		return
	}
	if err := a.entities.Delete(r.Context(), p, entity, id); err != nil {
		a.handleScopeError(w, r, entity, id, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// handleScopeError maps scoped-store failures and audits boundary denials.
func (a *API) handleScopeError(w http.ResponseWriter, r *http.Request, entity scope.EntityClass, id, action string, err error) {
	switch {
	case errors.Is(err, scope.ErrForbidden):
		if p, ok := PrincipalFromContext(r.Context()); ok {
			a.record(r.Context(), audit.Event{
				Type:         audit.TypeScopeDenied,
				PrincipalID:  p.ID,
				Origin:       clientIP(r),
				ResourceType: string(entity),
				ResourceID:   id,
				Action:       action,
				Outcome:      audit.OutcomeFailure,
			})
		}
		writeError(w, r, http.StatusForbidden, "access denied")
	case errors.Is(err, scope.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
