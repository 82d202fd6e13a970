package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "ixmanager_bridge/docs"
	"ixmanager_bridge/internal/config"
	"ixmanager_bridge/internal/handlers"
	"ixmanager_bridge/internal/history"
	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/metrics"
	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/repository"
	"ixmanager_bridge/internal/repository/db"
	"ixmanager_bridge/internal/server"
	"ixmanager_bridge/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

// @title                       iXmanager bridge API
// @version                     1.0
// @description                 Local REST and WebSocket bridge for an R-EVC Wallbox EcoVolter charger managed through iXmanager.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	sqlDB, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	clientCfg := ixmanager.Config{BaseURL: cfg.IXManager.BaseURL, Timeout: cfg.IXManager.Timeout}
	client, err := ixmanager.NewClient(clientCfg, cfg.IXManager.Credentials(), log)
	if err != nil {
		log.Fatalw("failed to create ixmanager client", "err", err)
	}
	cable, _ := models.ParseCableType(cfg.IXManager.CableType) // checked by config.Validate

	// wire dependencies
	repos := repository.NewRepository(sqlDB, client.SerialNumber())
	services := service.NewService(repos, client, service.Options{
		Coordinator: service.CoordinatorConfig{
			Interval:     cfg.Polling.Interval,
			MaxBackoff:   cfg.Polling.MaxBackoff,
			RefreshDelay: cfg.Polling.RefreshDelay,
		},
		Cable: cable,
		Auth:  service.AuthConfig{SigningKey: cfg.Auth.SigningKey, TokenTTL: cfg.Auth.TokenTTL},
		NewAuthenticator: func(creds models.Credentials) (service.Authenticator, error) {
			c, err := ixmanager.NewClient(clientCfg, creds, log)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Influx.Enabled {
		startHistory(ctx, cfg.Influx, client.SerialNumber(), services.Monitoring, log)
	}

	registry := newRegistry(services.Monitoring, client.SerialNumber())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	apiHandler := handlers.NewHandler(services, log,
		handlers.WithGatherer(registry),
		handlers.WithOriginCheck(func(r *http.Request) bool {
			// non-browser clients send no Origin
			return r.Header.Get("Origin") == "" || corsHandler.OriginAllowed(r)
		}),
	)

	if err := services.Poller.Start(ctx); err != nil {
		log.Fatalw("failed to start polling", "err", err)
	}

	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, corsHandler.Handler(apiHandler.InitRoutes()), log)

	waitForShutdown(cancel, srv, services.Poller, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "ixmanager.db")
		path = "ixmanager.db"
	}
	return db.InitDB(path)
}

// snapshotReader adapts the monitoring service to the metrics collector.
type snapshotReader struct {
	monitoring service.Monitoring
}

func (r snapshotReader) Latest() models.Snapshot {
	snap, _ := r.monitoring.GetState(context.Background())
	return snap
}

func newRegistry(m service.Monitoring, serial string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(snapshotReader{monitoring: m}, serial),
	)
	return reg
}

// startHistory streams fresh snapshots into InfluxDB until ctx ends.
func startHistory(ctx context.Context, cfg config.InfluxConfig, serial string, m service.Monitoring, log *logger.Logger) {
	sink := history.NewInfluxSink(history.Config{
		URL:         cfg.URL,
		Token:       cfg.Token,
		Org:         cfg.Org,
		Bucket:      cfg.Bucket,
		Measurement: cfg.Measurement,
	}, serial, log)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := sink.Ping(pingCtx); err != nil {
		log.Warnw("influx_unreachable", "url", cfg.URL, "err", err)
	}
	pingCancel()

	unsubscribe := m.Subscribe(sink.Observe)
	go func() {
		defer unsubscribe()
		sink.Run(ctx)
	}()
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler http.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		log.Infow("http_server_starting", "port", port)
		if err := srv.Run(port, handler); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, poller service.Poller, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	poller.Stop()
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
