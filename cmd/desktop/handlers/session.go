package handlers

import (
	"net/http"

	"github.com/medadhere/backend/internal/auth"
	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/network"
)

// SessionHandler signs users in and out.
type SessionHandler struct {
	session *auth.Session
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(session *auth.Session) *SessionHandler {
	return &SessionHandler{session: session}
}

// SignIn handles POST /api/session with {"token": "..."}.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(r, &req); err != nil || req.Token == "" {
		badRequest(w, "token is required")
		return
	}
	user, err := h.session.SignInWithToken(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Current handles GET /api/session.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	user := h.session.CurrentUser()
	if user == nil {
		writeError(w, apperrors.New(apperrors.ErrSyncAuthFailed, "not signed in"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SignOut handles DELETE /api/session.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.session.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

// NetworkHandler lets the host platform report reachability changes.
type NetworkHandler struct {
	monitor *network.Monitor
}

// NewNetworkHandler creates a new NetworkHandler.
func NewNetworkHandler(monitor *network.Monitor) *NetworkHandler {
	return &NetworkHandler{monitor: monitor}
}

// SetStatus handles POST /api/network with {"online": bool}.
func (h *NetworkHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := decode(r, &req); err != nil || req.Online == nil {
		badRequest(w, "online is required")
		return
	}
	h.monitor.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.monitor.Online()})
}

// GetStatus handles GET /api/network.
func (h *NetworkHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.monitor.Online()})
}
