// Package api exposes the engine's read-only diagnostics surface: health,
// graph size, current tunables, and a websocket stream of emitted
// opportunities. It implements no scoring logic, only a thin view over
// Engine.Stats(), built on the same dashboard API shape as Hub, Subscribe,
// the rate limiter, and CORS middleware.
package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/arb-cycle-engine/internal/config"
	"github.com/rawblock/arb-cycle-engine/internal/engine"
	"github.com/rawblock/arb-cycle-engine/internal/store"
)

// APIHandler bundles the read-only dependencies the diagnostics routes
// consult. It never mutates engine state — readers snapshot via
// Engine.Stats(), never by holding a pointer into engine-owned memory.
type APIHandler struct {
	eng      *engine.Engine
	dbStore  *store.PostgresStore
	wsHub    *Hub
	cfg      *config.Config
}

// SetupRouter builds the Gin engine exposing the configuration and
// opportunity-stream diagnostics surface.
func SetupRouter(eng *engine.Engine, dbStore *store.PostgresStore, wsHub *Hub, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{eng: eng, dbStore: dbStore, wsHub: wsHub, cfg: cfg}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/opportunities/stream", wsHub.Subscribe)
	}

	// Diagnostics that read engine-internal state are still read-only, but
	// rate-limited since they're cheap to hammer and reveal sizing
	// information about the running strategy.
	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware())
	protected.Use(NewRateLimiter(60, 10).Middleware())
	{
		protected.GET("/graph/stats", handler.handleGraphStats)
		protected.GET("/config", handler.handleConfig)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	stats := h.eng.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"engine":      "arb-cycle-engine",
		"dbConnected": h.dbStore != nil,
		"tickCount":   stats.TickCount,
		"lastTickAt":  stats.LastTickAt,
	})
}

// handleGraphStats returns the current Pool Graph size and the most
// recent tick's cycle/opportunity counts, without handing out the graph
// itself.
func (h *APIHandler) handleGraphStats(c *gin.Context) {
	stats := h.eng.Stats()
	c.JSON(http.StatusOK, gin.H{
		"poolCount":             stats.GraphPoolCount,
		"nodeCount":             stats.GraphNodeCount,
		"cyclesFound":           stats.CyclesFound,
		"opportunitiesAccepted": stats.OpportunitiesAccepted,
		"opportunitiesEmitted":  stats.OpportunitiesEmitted,
		"lastTickDurationUs":    stats.LastTickDurationUs,
		"tipUSD":                stats.TipUSD,
		"slippageToleranceBp":   stats.SlippageToleranceBp,
		"failureRate":           stats.FailureRate,
		"ingress":               stats.IngressStats,
	})
}

// handleConfig returns the currently loaded configuration, for operators
// inspecting a running process without re-reading its environment.
func (h *APIHandler) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"maxHops":          h.cfg.MaxHops,
		"minProfitBps":     h.cfg.MinProfitBps,
		"maxSlotLag":       h.cfg.MaxSlotLag,
		"scanIntervalMs":   h.cfg.ScanInterval,
		"cyclesPerScanCap": h.cfg.CyclesPerScanCap,
		"inputMinBase":     h.cfg.InputMinBase,
		"inputMaxBase":     h.cfg.InputMaxBase,
		"minLiquidity":     h.cfg.MinLiquidity,
		"latencyKillMs":    h.cfg.LatencyKillMs,
		"balanceFloor":     h.cfg.BalanceFloor,
		"throughputPerSec": h.cfg.ThroughputPerSec,
		"emitMode":         h.cfg.EmitMode,
	})
}

// BroadcastOpportunity fans out an already-marshaled validated opportunity
// to every connected websocket client. Wired as the emitter's notification
// hook so the dashboard surface stays a pure observer of C6's output.
func BroadcastOpportunity(wsHub *Hub, payload []byte) {
	wsHub.Broadcast(payload)
}
