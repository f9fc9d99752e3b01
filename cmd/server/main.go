package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/deskpro/signaling-server/api/handlers"
	"github.com/deskpro/signaling-server/internal/audit"
	"github.com/deskpro/signaling-server/internal/config"
	"github.com/deskpro/signaling-server/internal/db"
	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/observability"
	"github.com/deskpro/signaling-server/internal/repository"
	"github.com/deskpro/signaling-server/internal/session"
	"github.com/deskpro/signaling-server/internal/signaling"
	"github.com/deskpro/signaling-server/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := observability.InitLogger("signaling-server", "info", false)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := observability.InitLogger("signaling-server", cfg.LogLevel, cfg.LogPretty)
	m := metrics.New()

	// Initialize the audit journal
	var (
		recorder    audit.Recorder = audit.Nop{}
		auditReader handlers.AuditReader
		journal     *audit.Journal
		closeDB     = func() error { return nil }
	)
	if cfg.AuditEnabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			logger.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("failed to create database directory")
		}
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			logger.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("failed to initialize database")
		}
		closeDB = database.Close

		auditRepo := repository.NewAuditRepository(database)
		journal = audit.NewJournal(auditRepo, audit.Config{
			Logger:  observability.Component(logger, "audit"),
			Metrics: m,
		})
		recorder = journal
		auditReader = auditRepo
	} else {
		logger.Info().Msg("audit journal disabled")
	}

	// Initialize session state and routing
	registry := session.NewRegistry(session.Config{})
	lifecycle := signaling.NewLifecycle(registry, signaling.LifecycleConfig{
		Logger:   observability.Component(logger, "lifecycle"),
		Metrics:  m,
		Recorder: recorder,
	})
	router := signaling.NewRouter(registry, lifecycle, signaling.RouterConfig{
		Logger:   observability.Component(logger, "router"),
		Metrics:  m,
		Recorder: recorder,
	})
	reaper := session.NewReaper(registry, session.ReaperConfig{
		MaxAge:   cfg.SessionMaxAge,
		Interval: cfg.SweepInterval,
		Logger:   observability.Component(logger, "reaper"),
		Metrics:  m,
		Recorder: recorder,
	})

	// Initialize WebSocket transport
	hub := ws.NewHub(ws.HubConfig{
		Logger:  observability.Component(logger, "hub"),
		Metrics: m,
	})
	wsHandler := ws.NewHandler(hub, router, ws.HandlerConfig{
		AllowedOrigins:    cfg.AllowedOrigins,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MessagesPerSecond: cfg.MaxMessagesPerSecond,
		Logger:            observability.Component(logger, "ws"),
		Metrics:           m,
	})

	// Initialize handlers
	statusHandler := handlers.NewStatusHandler(version, router)
	sessionHandler := handlers.NewSessionHandler(registry, auditReader)
	websocketHandler := handlers.NewWebSocketHandler(wsHandler, logger)

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	statusHandler.RegisterRoutes(r)
	websocketHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler(m)))

	// API routes
	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(reaperCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Strs("events", router.Events()).Msg("signaling server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	case err := <-serveErr:
		logger.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, logger, srv, hub, wsHandler, stopReaper, reaperDone, journal, closeDB)
}

// shutdown stops accepting connections, flushes every peer's send queue,
// waits for the pumps and drains the audit journal before closing the
// database.
func shutdown(ctx context.Context, logger zerolog.Logger, srv *http.Server, hub *ws.Hub, wsHandler *ws.Handler,
	stopReaper context.CancelFunc, reaperDone <-chan struct{}, journal *audit.Journal, closeDB func() error) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}

	stopReaper()
	<-reaperDone

	hub.Close()
	if err := wsHandler.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("timed out waiting for websocket connections")
	}

	if journal != nil {
		if err := journal.Close(ctx); err != nil {
			logger.Warn().Err(err).Msg("audit journal not fully drained")
		}
	}
	if err := closeDB(); err != nil {
		logger.Warn().Err(err).Msg("failed to close database")
	}

	logger.Info().Msg("server stopped")
}

// corsMiddleware returns a CORS middleware. With no allowed origins every
// origin is accepted.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With",
		}, ", "))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
