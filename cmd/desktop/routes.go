package main

import (
	"net/http"

	"github.com/medadhere/backend/cmd/desktop/handlers"
	"github.com/medadhere/backend/internal/app"
)

// newMux registers every REST and WebSocket route.
func newMux(a *app.App, hub *WSHub) *http.ServeMux {
	syncH := handlers.NewSyncHandler(a.Orchestrator)
	recordH := handlers.NewRecordHandler(a.Records)
	sessionH := handlers.NewSessionHandler(a.Session)
	networkH := handlers.NewNetworkHandler(a.Network)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handleHealth)

	// Sync
	mux.HandleFunc("POST /api/sync", syncH.TriggerSync)
	mux.HandleFunc("GET /api/sync/status", syncH.GetStatus)
	mux.HandleFunc("POST /api/sync/queue", syncH.QueueAction)
	mux.HandleFunc("GET /api/sync/conflicts", syncH.ListConflicts)
	mux.HandleFunc("POST /api/sync/conflicts/{id}/resolve", syncH.ResolveConflict)
	mux.HandleFunc("GET /api/sync/diagnostics", syncH.GetDiagnostics)
	mux.HandleFunc("GET /api/sync/logs", syncH.GetLogs)
	mux.HandleFunc("GET /api/sync/config", syncH.GetConfig)
	mux.HandleFunc("PUT /api/sync/config", syncH.UpdateConfig)

	// Session and connectivity
	mux.HandleFunc("GET /api/session", sessionH.Current)
	mux.HandleFunc("POST /api/session", sessionH.SignIn)
	mux.HandleFunc("DELETE /api/session", sessionH.SignOut)
	mux.HandleFunc("GET /api/network", networkH.GetStatus)
	mux.HandleFunc("POST /api/network", networkH.SetStatus)

	// Records
	mux.HandleFunc("GET /api/records/{kind}", recordH.List)
	mux.HandleFunc("POST /api/records/{kind}", recordH.Create)
	mux.HandleFunc("GET /api/records/{kind}/{id}", recordH.Get)
	mux.HandleFunc("PUT /api/records/{kind}/{id}", recordH.Update)
	mux.HandleFunc("DELETE /api/records/{kind}/{id}", recordH.Delete)

	mux.HandleFunc("GET /ws", HandleWebSocket(hub))

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"medadhere-desktop"}`))
}
