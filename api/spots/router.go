// Package spots exposes the parking service over HTTP and websocket.
package spots

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apihistory "github.com/kilianp07/parkcast/api/history"
	corehistory "github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/ingest"
	"github.com/kilianp07/parkcast/core/logger"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/query"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

// Querier evaluates availability queries.
type Querier interface {
	Query(ctx context.Context, q model.Query) model.QueryResponse
}

// Ingester stores camera analysis results.
type Ingester interface {
	Ingest(ctx context.Context, cameraID string, raw []byte, ts time.Time) (ingest.Outcome, error)
}

// Deps are the collaborators served by the router. History, Events and
// Snapshots are optional; their routes are not mounted when nil.
type Deps struct {
	Engine         Querier
	Ingester       Ingester
	History        corehistory.Log
	HistoryToken   string
	Snapshots      query.SnapshotReader
	Events         *eventbus.TypedBus[snapshot.SnapshotUpdated]
	AllowedOrigins []string
	Location       *time.Location
	Log            logger.Logger
}

// NewRouter builds the gin engine serving every route.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Log), corsMiddleware(d.AllowedOrigins))

	h := &handler{deps: d}
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "parkcast backend is running") })
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })

	api := r.Group("/api")
	api.GET("/spots/current", h.current)
	api.GET("/spots/forecast", h.forecast)
	api.POST("/camera/analysis", h.analysis)
	if d.History != nil {
		api.GET("/history", gin.WrapH(apihistory.NewHandler(d.History, d.HistoryToken)))
	}
	if d.Events != nil {
		r.GET("/ws/spots", h.stream)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		cfg.AllowAllOrigins = true
		return cors.New(cfg)
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cors.New(cfg)
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}
		log.Debugw("http request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
