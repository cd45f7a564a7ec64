// Package httpapi serves the stageboard REST and websocket endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/broadcast"
	"github.com/dalgonaburger/stageboard/internal/observer"
	"github.com/dalgonaburger/stageboard/internal/progress"
)

const serviceName = "stageboard"

// StatsSource reports catalog-wide counters for /api/stats.
type StatsSource interface {
	Totals(ctx context.Context) (progress.Totals, error)
}

// ObserverMetrics is notified as observer sockets open and close.
type ObserverMetrics interface {
	ObserverOpened()
	ObserverClosed()
}

type Config struct {
	Engine         *progress.Engine
	Hub            *broadcast.Hub
	Stats          StatsSource
	Metrics        http.Handler
	Observers      ObserverMetrics
	AllowedOrigins []string
	SnapshotLimit  int
	Version        string
	Logger         *zap.Logger
}

type API struct {
	engine        *progress.Engine
	hub           *broadcast.Hub
	stats         StatsSource
	observers     ObserverMetrics
	snapshotLimit int
	version       string
	logger        *zap.Logger
	upgrader      websocket.Upgrader
	now           func() time.Time
}

func NewAPI(cfg Config) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.SnapshotLimit
	if limit <= 0 {
		limit = observer.DefaultSnapshotLimit
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &API{
		engine:        cfg.Engine,
		hub:           cfg.Hub,
		stats:         cfg.Stats,
		observers:     cfg.Observers,
		snapshotLimit: limit,
		version:       version,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		now: time.Now,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
