package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/model"
	"github.com/udisondev/playersync/internal/registry"
	"github.com/udisondev/playersync/internal/testutil"
)

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expectEvent(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, event, f.Event, "payload: %s", f.Data)
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	f, err := NewFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(f))
}

// TestSessionOverWebSocket runs the whole control plane against a real store:
// handshake auth, connect, periodic sync, disconnect, crash recovery and the
// batch flow, all over one inbound WebSocket connection.
func TestSessionOverWebSocket(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := testutil.SetupTestDB(t)
	store := db.NewStore(db.NewFromPool(pool))
	eng := engine.New(store)
	reg := registry.New(db.NewServerRepository(pool), store.Players())

	srv, err := reg.RegisterServer(ctx, "gs-ws")
	require.NoError(t, err)

	listener := NewListener("", eng, reg)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listener.serve(context.Background(), w, r)
	}))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	t.Run("handshake without token is rejected", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	header := http.Header{TokenHeader: []string{srv.Token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	t.Run("greeting", func(t *testing.T) {
		f := expectEvent(t, conn, EventAuthSuccess)
		var auth AuthSuccess
		require.NoError(t, json.Unmarshal(f.Data, &auth))
		assert.Equal(t, "gs-ws", auth.ServerID)

		f = expectEvent(t, conn, EventServerInfo)
		var info ServerInfo
		require.NoError(t, json.Unmarshal(f.Data, &info))
		assert.Equal(t, 0, info.PlayerCount)
	})

	t.Run("connect", func(t *testing.T) {
		sendFrame(t, conn, EventPlayerConnect, ConnectRequest{SteamID: testutil.SteamID1})
		f := expectEvent(t, conn, EventPlayerData)
		var data PlayerData
		require.NoError(t, json.Unmarshal(f.Data, &data))
		assert.Equal(t, testutil.SteamID1, data.SteamID)
		assert.Equal(t, int64(0), data.SyncSeq)
		assert.Nil(t, data.Data.Tracking)
	})

	t.Run("connect with bad steam id", func(t *testing.T) {
		sendFrame(t, conn, EventPlayerConnect, ConnectRequest{SteamID: "not-a-steam-id"})
		f := expectEvent(t, conn, EventPlayerError)
		var pe PlayerError
		require.NoError(t, json.Unmarshal(f.Data, &pe))
		assert.Equal(t, string(engine.StatusValidationFailed), pe.Error)
	})

	t.Run("periodic sync", func(t *testing.T) {
		sendFrame(t, conn, EventPlayerSync, testutil.Doc(testutil.SteamID1, testutil.WithSyncSeq(1)))
		f := expectEvent(t, conn, EventSyncAck)
		var ack SyncAck
		require.NoError(t, json.Unmarshal(f.Data, &ack))
		assert.Equal(t, int64(1), ack.SyncSeq)
		assert.False(t, ack.Flagged)
	})

	t.Run("duplicate sequence is rejected", func(t *testing.T) {
		sendFrame(t, conn, EventPlayerSync, testutil.Doc(testutil.SteamID1, testutil.WithSyncSeq(1)))
		f := expectEvent(t, conn, EventSyncError)
		var se SyncError
		require.NoError(t, json.Unmarshal(f.Data, &se))
		assert.Equal(t, string(engine.StatusInvalidSyncSeq), se.Error)
		require.NotEmpty(t, se.Errors)
		assert.Contains(t, se.Errors[0], "expected syncSeq 1")
	})

	t.Run("disconnect", func(t *testing.T) {
		sendFrame(t, conn, EventPlayerDisconnect, testutil.Doc(testutil.SteamID1, testutil.WithSyncSeq(2)))
		f := expectEvent(t, conn, EventDisconnectAck)
		var ack DisconnectAck
		require.NoError(t, json.Unmarshal(f.Data, &ack))
		assert.Equal(t, int64(2), ack.SyncSeq)
	})

	t.Run("crash recovery skips stale", func(t *testing.T) {
		// Recovery needs a live session; reconnect first.
		sendFrame(t, conn, EventPlayerConnect, ConnectRequest{SteamID: testutil.SteamID1})
		expectEvent(t, conn, EventPlayerData)

		sendFrame(t, conn, EventPlayerCrashRecovery, testutil.Doc(testutil.SteamID1, testutil.WithSyncSeq(1)))
		f := expectEvent(t, conn, EventRecoveryAck)
		var ack RecoveryAck
		require.NoError(t, json.Unmarshal(f.Data, &ack))
		assert.True(t, ack.Skipped)
		assert.Equal(t, "stale_data", ack.Reason)
	})

	t.Run("batch recovery", func(t *testing.T) {
		sendFrame(t, conn, EventPlayerConnect, ConnectRequest{SteamID: testutil.SteamID2})
		expectEvent(t, conn, EventPlayerData)

		sendFrame(t, conn, EventPlayerBatchRecovery, BatchRequest{Players: []model.Document{
			testutil.Doc(testutil.SteamID2, testutil.WithSyncSeq(1)),
			testutil.Doc(testutil.SteamID3), // never connected
		}})

		expectEvent(t, conn, EventRecoveryAck)
		expectEvent(t, conn, EventRecoveryError)

		f := expectEvent(t, conn, EventBatchComplete)
		var done BatchComplete
		require.NoError(t, json.Unmarshal(f.Data, &done))
		assert.Equal(t, 2, done.Total)
		assert.Equal(t, 1, done.Successful)
		assert.Equal(t, 1, done.Failed)
	})
}

func TestFrameEnvelope(t *testing.T) {
	f, err := NewFrame(EventSyncAck, SyncAck{SteamID: testutil.SteamID1, SyncSeq: 7, Flagged: true})
	require.NoError(t, err)

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"sync:ack"`)

	var back Frame
	require.NoError(t, json.Unmarshal(raw, &back))
	var ack SyncAck
	require.NoError(t, json.Unmarshal(back.Data, &ack))
	assert.Equal(t, int64(7), ack.SyncSeq)
	assert.True(t, ack.Flagged)
}
