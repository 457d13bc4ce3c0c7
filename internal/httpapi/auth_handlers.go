package httpapi

import (
	"net/http"
	"strings"
	"time"

	"gatehouse.org/internal/session"
)

type loginRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	DeviceID        string `json:"device_id"`
	ClientSignature string `json:"client_signature"`
}

type mfaRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	SessionID       string     `json:"session_id"`
	AccessToken     string     `json:"access_token,omitempty"`
	RefreshToken    string     `json:"refresh_token,omitempty"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	MFAPending      bool       `json:"mfa_pending,omitempty"`
}

func toSessionResponse(h session.Handle) sessionResponse {
	resp := sessionResponse{
		SessionID:    h.SessionID,
		AccessToken:  h.AccessToken,
		RefreshToken: h.RefreshToken,
		ExpiresAt:    h.ExpiresAt,
		MFAPending:   h.MFAPending,
	}
	if !h.AccessExpiresAt.IsZero() {
		t := h.AccessExpiresAt
		resp.AccessExpiresAt = &t
	}
	return resp
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	h, err := a.sessions.Login(r.Context(), session.LoginInput{
		Email:           req.Email,
		Password:        req.Password,
		Origin:          clientIP(r),
		ClientSignature: req.ClientSignature,
		DeviceID:        req.DeviceID,
	})
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	code := http.StatusOK
	if h.MFAPending {
		// The handle is not usable yet; the client must complete the
		// second factor first.
		code = http.StatusAccepted
	}
	writeJSON(w, code, toSessionResponse(h))
}

func (a *API) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req mfaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" || req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "session_id and code are required")
		return
	}
	h, err := a.sessions.VerifyMFA(r.Context(), req.SessionID, req.Code)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(h))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	h, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(h))
}

// handleLogout revokes the caller's own session.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	s, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.sessions.Revoke(r.Context(), s.ID, p.ID, "logout"); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type whoAmIResponse struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Role        string            `json:"role"`
	RetailerID  string            `json:"retailer_id,omitempty"`
	LocationID  string            `json:"location_id,omitempty"`
	Status      string            `json:"status"`
	MFAEnrolled bool              `json:"mfa_enrolled"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SessionID   string            `json:"session_id"`
	ExpiresAt   time.Time         `json:"session_expires_at"`
}

func (a *API) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	s, _ := SessionFromContext(r.Context())
	resp := whoAmIResponse{
		ID:          p.ID,
		Email:       p.Email,
		Role:        string(p.Role),
		RetailerID:  p.Scope.RetailerID,
		LocationID:  p.Scope.LocationID,
		Status:      p.Status,
		MFAEnrolled: p.MFAEnrolled,
		Metadata:    p.Metadata,
	}
	if s != nil {
		resp.SessionID = s.ID
		resp.ExpiresAt = s.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}
