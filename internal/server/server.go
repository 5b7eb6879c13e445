package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/benedict2310/tally/internal/audit"
	"github.com/benedict2310/tally/internal/clicks"
	dbpkg "github.com/benedict2310/tally/internal/db"
	"github.com/benedict2310/tally/internal/eventstore"
	"github.com/benedict2310/tally/internal/icons"
	"github.com/benedict2310/tally/internal/pgstore"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg        Config
	logger     *slog.Logger
	version    string
	dataPaths  DataPaths
	store      eventstore.Store
	icons      icons.Store
	sequencer  *clicks.Sequencer
	aggregator *clicks.Aggregator
	auditDB    *sql.DB
	audit      *audit.AsyncLogger
	listener   net.Listener
	httpServer *http.Server
	errCh      chan error

	// iconMu serializes icon set and clear with the blob cleanup they trigger.
	iconMu sync.Mutex

	// now is swapped by tests to pin the calendar day.
	now func() time.Time
}

func New(cfg Config, logger *slog.Logger, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		version: version,
		errCh:   make(chan error, 1),
		now:     time.Now,
	}

	mux := http.NewServeMux()
	registerHealthRoutes(mux, version, srv.notReady)
	api := http.NewServeMux()
	registerAPIRoutes(api, srv)
	mux.Handle("/api/v1/", authMiddleware(cfg.API, logger)(api))

	srv.httpServer = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      requestLogMiddleware(logger)(mux),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *Server) Start() error {
	ctx := context.Background()
	driver := s.cfg.Database.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	paths, err := InitDataDir(s.cfg.DataDir, driver == DriverSQLite && s.cfg.Database.Path == "")
	if err != nil {
		return err
	}
	s.dataPaths = paths
	s.icons = icons.NewFileStore(paths.IconsSHA256)

	store, dbTarget, err := s.openStore(ctx, driver)
	if err != nil {
		return err
	}
	if err := store.SeedButtons(ctx, s.cfg.Buttons); err != nil {
		_ = store.Close()
		return fmt.Errorf("seed buttons: %w", err)
	}
	if err := s.initEngine(store); err != nil {
		_ = store.Close()
		return err
	}
	if err := s.openAudit(ctx); err != nil {
		_ = store.Close()
		return err
	}
	s.store = store

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		_ = s.closeAudit(ctx)
		_ = s.store.Close()
		s.store = nil
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln

	if !isLoopbackHost(s.cfg.BindAddr) {
		s.logger.Warn("binding to non-loopback address", "bind", s.cfg.BindAddr)
	}

	s.logger.Info("tallyd starting",
		"listen_addr", ln.Addr().String(),
		"data_dir", s.cfg.DataDir,
		"db_driver", driver,
		"db", dbTarget,
		"timezone", s.cfg.Timezone,
		"buttons", s.cfg.Buttons,
		"version", s.version,
	)

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	return nil
}

func (s *Server) openStore(ctx context.Context, driver string) (eventstore.Store, string, error) {
	lockTimeout, err := s.cfg.LockTimeoutDuration()
	if err != nil {
		return nil, "", err
	}

	switch driver {
	case DriverPostgres:
		store, err := pgstore.Open(ctx, pgstore.Options{
			URL:          s.cfg.Database.URL,
			LockTimeout:  lockTimeout,
			MaxOpenConns: 10,
			Logger:       s.logger,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "postgres", nil
	default:
		dbPath := s.cfg.Database.Path
		if dbPath == "" {
			dbPath = s.dataPaths.DBPath
		}
		store, err := dbpkg.OpenStore(ctx, dbpkg.Options{
			Path:         dbPath,
			EnableWAL:    s.cfg.Database.WAL,
			MaxOpenConns: 5,
			MaxIdleConns: 5,
		}, dbpkg.StoreOptions{LockTimeout: lockTimeout, Logger: s.logger})
		if err != nil {
			return nil, "", err
		}
		return store, dbPath, nil
	}
}

func (s *Server) initEngine(store eventstore.Store) error {
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	opts := clicks.Options{
		Buttons:  s.cfg.Buttons,
		Location: loc,
		Now:      func() time.Time { return s.now() },
		Logger:   s.logger,
	}
	seq, err := clicks.NewSequencer(store, store, opts)
	if err != nil {
		return fmt.Errorf("initialize sequencer: %w", err)
	}
	agg, err := clicks.NewAggregator(store, opts)
	if err != nil {
		return fmt.Errorf("initialize aggregator: %w", err)
	}
	s.sequencer = seq
	s.aggregator = agg
	return nil
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case err := <-s.errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil && s.store == nil {
		return nil
	}

	s.logger.Info("tallyd shutting down")
	if s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}

		if err, ok := <-s.errCh; ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		s.listener = nil
	}
	if err := s.closeAudit(ctx); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close event store: %w", err)
		}
		s.store = nil
	}
	s.icons = nil
	s.sequencer = nil
	s.aggregator = nil
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) ready() bool {
	return len(s.notReady()) == 0
}

func (s *Server) notReady() []string {
	var missing []string
	if s.store == nil {
		missing = append(missing, "click store")
	}
	if s.sequencer == nil || s.aggregator == nil {
		missing = append(missing, "click engine")
	}
	if s.audit == nil {
		missing = append(missing, "audit log")
	}
	return missing
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", level)
	}
}

func NewLogger(level string) (*slog.Logger, error) {
	parsed, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	return slog.New(h), nil
}
