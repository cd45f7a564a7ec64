package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/broadcast"
	"github.com/dalgonaburger/stageboard/internal/config"
	"github.com/dalgonaburger/stageboard/internal/httpapi"
	"github.com/dalgonaburger/stageboard/internal/logging"
	"github.com/dalgonaburger/stageboard/internal/metrics"
	"github.com/dalgonaburger/stageboard/internal/progress"
	"github.com/dalgonaburger/stageboard/internal/progress/memstore"
	"github.com/dalgonaburger/stageboard/internal/scheduler"
	"github.com/dalgonaburger/stageboard/internal/stage"
	"github.com/dalgonaburger/stageboard/internal/store/sqlstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stageboard API server",
	Long: `Run the HTTP and websocket server.

Progress is kept in DATABASE_URL (PostgreSQL or SQLite). With --memory
everything lives in process memory and is lost on exit. When REDIS_URL
is set, accepted run logs are fanned out through Redis so several
servers share one live feed.`,
	Example: `  stageboard serve
  stageboard serve --memory --port 9090
  DATABASE_URL=postgres://localhost/stageboard stageboard serve`,
	RunE: runServe,
}

var (
	serveMemory bool
	servePort   int
	serveDB     string
)

func init() {
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep progress in memory instead of a database")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default $PORT or 8080)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Database URL or SQLite path (default $DATABASE_URL or stageboard.db)")
	rootCmd.AddCommand(serveCmd)
}

// backend is what the server needs from a progress store.
type backend interface {
	progress.Store
	Totals(ctx context.Context) (progress.Totals, error)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveDB != "" {
		cfg.DatabaseURL = serveDB
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, catalog, closeStore, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	hub := broadcast.NewHub(cfg.InboxCapacity, broadcast.WithLogger(logger.Named("hub")))
	defer hub.Close()
	m.WatchHub(hub)

	var publisher progress.Publisher = hub
	if cfg.RedisURL != "" {
		rdb, err := broadcast.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		relay := broadcast.NewRedisRelay(rdb, cfg.RedisChannel, hub, logger.Named("relay"))
		defer relay.Close()
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("redis relay stopped", zap.Error(err))
			}
		}()
	}

	engine := progress.NewEngine(store, catalog,
		progress.WithPublisher(publisher),
		progress.WithRecorder(m),
		progress.WithLogger(logger.Named("engine")),
		progress.WithSubmitTimeout(cfg.SubmitTimeout),
	)

	jobs := scheduler.New(store, m, cfg.StatsInterval, logger.Named("scheduler"))
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Stop()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.NewRouter(httpapi.Config{
			Engine:         engine,
			Hub:            hub,
			Stats:          store,
			Metrics:        m.Handler(),
			Observers:      m,
			AllowedOrigins: cfg.AllowedOrigins,
			SnapshotLimit:  cfg.SnapshotLimit,
			Version:        version,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Int("stages", catalog.Len()),
			zap.Bool("redis", cfg.RedisURL != ""),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Observer sockets are hijacked and ignore Shutdown; closing the hub ends them.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openBackend returns the configured store with its stage catalog.
func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, *stage.Catalog, func(), error) {
	if serveMemory {
		logger.Info("using in-memory store")
		return memstore.New(), stage.Default(), func() {}, nil
	}

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	catalog, err := db.LoadCatalog(ctx)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	logger.Info("database ready", zap.String("driver", db.Driver()))
	return db, catalog, func() { _ = db.Close() }, nil
}

// openDatabase opens dsn and applies the schema.
func openDatabase(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, stage.Seed()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
