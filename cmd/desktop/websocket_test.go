package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medadhere/backend/internal/models"
)

func dial(t *testing.T, srv *httptest.Server, hub *WSHub, want int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) WSEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env WSEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8090", true},
		{"https://evil.example.com", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, checkOrigin(r), "origin %q", tt.origin)
	}
}

func TestWebSocket_BroadcastsStatus(t *testing.T) {
	_, hub, srv := setupServer(t)
	conn := dial(t, srv, hub, 1)

	hub.BroadcastSyncStatus(models.SyncState{Status: models.StatusPending, PendingChanges: 2})

	env := readEnvelope(t, conn)
	assert.Equal(t, EventSyncStatus, env.Type)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pending", data["status"])
	assert.EqualValues(t, 2, data["pendingChanges"])
	assert.NotZero(t, env.Timestamp)
}

func TestWebSocket_StatusChangeIsForwarded(t *testing.T) {
	a, hub, srv := setupServer(t)
	conn := dial(t, srv, hub, 1)

	a.Network.SetOnline(false)
	a.Orchestrator.NotifyLocalChange()

	env := readEnvelope(t, conn)
	assert.Equal(t, EventSyncStatus, env.Type)
}

func TestWebSocket_SubscriptionFilter(t *testing.T) {
	_, hub, srv := setupServer(t)
	conn := dial(t, srv, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"events": []string{EventSyncConflictDetected},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribe_ack", ack["action"])

	hub.BroadcastSyncStatus(models.SyncState{Status: models.StatusSynced})
	hub.BroadcastConflictDetected(models.UnresolvableConflict{ID: "c1", RecordID: "m1"})

	env := readEnvelope(t, conn)
	assert.Equal(t, EventSyncConflictDetected, env.Type, "status event should be filtered out")
}

func TestWebSocket_Ping(t *testing.T) {
	_, hub, srv := setupServer(t)
	conn := dial(t, srv, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg["action"])
}

func TestWSHub_CloseDisconnectsClients(t *testing.T) {
	_, hub, srv := setupServer(t)
	conn := dial(t, srv, hub, 1)

	hub.Close()
	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
