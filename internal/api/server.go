// Package api exposes the HTTP surface of the sync service: health, document
// import (single and batch), status lookups and operator reads. Every route
// except health requires the shared X-API-Key.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/model"
	"github.com/udisondev/playersync/internal/registry"
)

// APIKeyHeader authenticates HTTP callers.
const APIKeyHeader = "X-API-Key"

// importSource tags audit entries written through the HTTP surface.
const importSource = "http-import"

// Server is the HTTP surface.
type Server struct {
	addr   string
	apiKey string
	eng    *engine.Engine
	store  *db.Store
	reg    *registry.Registry
	http   *http.Server
}

// New builds the server and its routes.
func New(addr, apiKey string, eng *engine.Engine, store *db.Store, reg *registry.Registry) *Server {
	s := &Server{
		addr:   addr,
		apiKey: apiKey,
		eng:    eng,
		store:  store,
		reg:    reg,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/sync/health", s.health)

	authed := router.Group("/api/sync", s.requireAPIKey)
	authed.POST("/player", s.importPlayer)
	authed.POST("/batch", s.importBatch)
	authed.GET("/status/:steamId", s.status)
	authed.GET("/player/:steamId", s.exportPlayer)
	authed.GET("/servers", s.servers)
	authed.GET("/audit/:steamId", s.auditForPlayer)
	authed.GET("/audit-flagged", s.auditFlagged)
	authed.GET("/discord/:steamId", s.discordLinks)
	authed.POST("/discord/:steamId", s.linkDiscord)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server started", "addr", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) requireAPIKey(c *gin.Context) {
	if s.apiKey == "" || c.GetHeader(APIKeyHeader) != s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "playersync",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// importPlayer upserts one full player document. The operation is idempotent:
// replaying the same document is either applied or skipped as stale.
func (s *Server) importPlayer(c *gin.Context) {
	var doc model.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed document"})
		return
	}

	res, err := s.eng.ImportDocument(c.Request.Context(), importSource, doc)
	if err != nil {
		slog.Error("import failed", "steamId", doc.SteamID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(importStatusCode(res.Status), importBody(res))
}

func (s *Server) importBatch(c *gin.Context) {
	var req struct {
		Players []model.Document `json:"players"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed batch"})
		return
	}
	if len(req.Players) > engine.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Players), engine.MaxBatchSize),
		})
		return
	}

	results := make([]gin.H, 0, len(req.Players))
	summary := gin.H{}
	successful, failed := 0, 0
	for _, doc := range req.Players {
		res, err := s.eng.ImportDocument(c.Request.Context(), importSource, doc)
		if err != nil {
			slog.Error("batch import failed", "steamId", doc.SteamID, "err", err)
			failed++
			results = append(results, gin.H{"steamId": doc.SteamID, "status": string(engine.StatusError)})
			continue
		}
		switch res.Status {
		case engine.StatusOK, engine.StatusSkipped:
			successful++
		default:
			failed++
		}
		results = append(results, importBody(res))
	}
	summary["total"] = len(req.Players)
	summary["successful"] = successful
	summary["failed"] = failed
	summary["results"] = results
	c.JSON(http.StatusOK, summary)
}

func (s *Server) status(c *gin.Context) {
	steamID := c.Param("steamId")
	lastSync, exists, err := s.store.Players().LastSync(c.Request.Context(), steamID)
	if err != nil {
		slog.Error("status lookup failed", "steamId", steamID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	body := gin.H{"steamId": steamID, "exists": exists}
	if lastSync != nil {
		body["lastSync"] = lastSync.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

// exportPlayer returns the full current document including tracking counters.
func (s *Server) exportPlayer(c *gin.Context) {
	steamID := c.Param("steamId")
	doc, err := s.eng.Export(c.Request.Context(), steamID, true)
	if err != nil {
		slog.Error("export failed", "steamId", steamID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) servers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"playerCounts": s.reg.Counts()})
}

func (s *Server) auditForPlayer(c *gin.Context) {
	steamID := c.Param("steamId")
	entries, err := s.store.Audit().RecentForPlayer(c.Request.Context(), steamID, 100)
	if err != nil {
		slog.Error("audit lookup failed", "steamId", steamID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"steamId": steamID, "entries": auditBodies(entries)})
}

func (s *Server) auditFlagged(c *gin.Context) {
	entries, err := s.store.Audit().Flagged(c.Request.Context(), 100)
	if err != nil {
		slog.Error("flagged audit lookup failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": auditBodies(entries)})
}

func (s *Server) discordLinks(c *gin.Context) {
	steamID := c.Param("steamId")
	links, err := s.store.Discord().ForPlayer(c.Request.Context(), steamID)
	if err != nil {
		slog.Error("discord lookup failed", "steamId", steamID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	out := make([]gin.H, 0, len(links))
	for _, l := range links {
		out = append(out, gin.H{
			"discordId": l.DiscordID,
			"verified":  l.Verified,
			"createdAt": l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"steamId": steamID, "links": out})
}

func (s *Server) linkDiscord(c *gin.Context) {
	steamID := c.Param("steamId")
	var req struct {
		DiscordID string `json:"discordId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "discordId required"})
		return
	}
	if err := s.store.Discord().Link(c.Request.Context(), steamID, req.DiscordID); err != nil {
		slog.Error("discord link failed", "steamId", steamID, "err", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"steamId": steamID, "discordId": req.DiscordID})
}

func importStatusCode(status engine.Status) int {
	switch status {
	case engine.StatusOK, engine.StatusSkipped:
		return http.StatusOK
	case engine.StatusValidationFailed:
		return http.StatusUnprocessableEntity
	case engine.StatusPlayerNotFound:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

func importBody(res *engine.SyncResult) gin.H {
	body := gin.H{"steamId": res.SteamID, "status": string(res.Status)}
	switch {
	case res.Status == engine.StatusOK:
		body["syncSeq"] = res.SyncSeq
		if res.Flagged {
			body["flagged"] = true
			body["flagReason"] = res.FlagReason
		}
	case res.Status == engine.StatusSkipped:
		body["reason"] = res.SkipReason
	case len(res.Errors) > 0:
		body["errors"] = res.Errors
	}
	return body
}

func auditBodies(entries []model.AuditEntry) []gin.H {
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		body := gin.H{
			"serverId":  e.ServerID,
			"steamId":   e.PlayerSteamID,
			"kind":      string(e.Kind),
			"seqAfter":  e.SeqAfter,
			"flagged":   e.Flagged,
			"createdAt": e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.SeqBefore != nil {
			body["seqBefore"] = *e.SeqBefore
		}
		if e.FlagReason != "" {
			body["flagReason"] = e.FlagReason
		}
		out = append(out, body)
	}
	return out
}
