package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/model"
	"github.com/udisondev/playersync/internal/registry"
	"github.com/udisondev/playersync/internal/testutil"
)

const testAPIKey = "test-key"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pool := testutil.SetupTestDB(t)
	store := db.NewStore(db.NewFromPool(pool))
	eng := engine.New(store)
	reg := registry.New(db.NewServerRepository(pool), store.Players())
	return New("", testAPIKey, eng, store, reg)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, withKey bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withKey {
		req.Header.Set(APIKeyHeader, testAPIKey)
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHTTPSurface(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestServer(t)

	t.Run("health needs no key", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/sync/health", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Status    string `json:"status"`
			Service   string `json:"service"`
			Timestamp string `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "playersync", body.Service)
		_, err := time.Parse(time.RFC3339, body.Timestamp)
		assert.NoError(t, err)
	})

	t.Run("missing api key", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/sync/status/"+testutil.SteamID1, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("import player", func(t *testing.T) {
		doc := testutil.Doc(testutil.SteamID1, testutil.WithSyncSeq(2))
		rec := doJSON(t, s, http.MethodPost, "/api/sync/player", doc, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Status  string `json:"status"`
			SyncSeq int64  `json:"syncSeq"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, string(engine.StatusOK), body.Status)
		assert.Equal(t, int64(2), body.SyncSeq)
	})

	t.Run("import is idempotent", func(t *testing.T) {
		doc := testutil.Doc(testutil.SteamID1, testutil.WithSyncSeq(2))
		rec := doJSON(t, s, http.MethodPost, "/api/sync/player", doc, true)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, string(engine.StatusOK), body.Status, "equal sequence re-applies")
	})

	t.Run("import invalid document", func(t *testing.T) {
		doc := testutil.Doc(testutil.SteamID2)
		doc.Stats.Prestige = 101
		rec := doJSON(t, s, http.MethodPost, "/api/sync/player", doc, true)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("status", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/sync/status/"+testutil.SteamID1, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Exists   bool   `json:"exists"`
			LastSync string `json:"lastSync"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Exists)
		assert.NotEmpty(t, body.LastSync)

		rec = doJSON(t, s, http.MethodGet, "/api/sync/status/"+testutil.SteamID3, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Exists)
	})

	t.Run("export player", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/sync/player/"+testutil.SteamID1, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		var doc model.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, testutil.SteamID1, doc.SteamID)
		assert.Equal(t, int64(2), doc.SyncSeq)
		assert.NotNil(t, doc.Tracking, "http export includes tracking")
	})

	t.Run("export unknown player", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/sync/player/"+testutil.SteamID3, nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("batch", func(t *testing.T) {
		body := map[string]any{"players": []model.Document{
			testutil.Doc(testutil.SteamID2, testutil.WithSyncSeq(1)),
			testutil.Doc(testutil.SteamID3, testutil.WithSyncSeq(1)),
		}}
		rec := doJSON(t, s, http.MethodPost, "/api/sync/batch", body, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out struct {
			Total      int `json:"total"`
			Successful int `json:"successful"`
			Failed     int `json:"failed"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, 2, out.Total)
		assert.Equal(t, 2, out.Successful, "import creates unknown players")
		assert.Equal(t, 0, out.Failed)
	})

	t.Run("batch over limit", func(t *testing.T) {
		docs := make([]model.Document, engine.MaxBatchSize+1)
		for i := range docs {
			docs[i] = testutil.Doc(fmt.Sprintf("765611980%08d", i))
		}
		rec := doJSON(t, s, http.MethodPost, "/api/sync/batch", map[string]any{"players": docs}, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("audit entries", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/sync/audit/"+testutil.SteamID1, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Entries []map[string]any `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.NotEmpty(t, out.Entries)
	})

	t.Run("discord link round trip", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sync/discord/"+testutil.SteamID1,
			map[string]string{"discordId": "discord-42"}, true)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, s, http.MethodGet, "/api/sync/discord/"+testutil.SteamID1, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Links []struct {
				DiscordID string `json:"discordId"`
			} `json:"links"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out.Links, 1)
		assert.Equal(t, "discord-42", out.Links[0].DiscordID)
	})
}
