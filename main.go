package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/config"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/mcp"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/middleware"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/optimizer"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/services"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/tracker"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("transport", cfg.Server.Transport),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.Int("cache_ttl_minutes", cfg.Cache.DefaultTTLMinutes),
		zap.Int("databases", len(cfg.Databases)))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Cache init failure is fatal.
	schemaCache, err := cache.New(cache.Config{
		Dir:               cfg.Cache.Dir,
		DefaultTTLMinutes: cfg.Cache.DefaultTTLMinutes,
	}, logger, cache.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to initialize schema cache: %w", err)
	}
	defer func() {
		if err := schemaCache.Close(); err != nil {
			logger.Warn("Failed to close schema cache", zap.Error(err))
		}
	}()

	connections := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes: cfg.Connections.TTLMinutes,
	}, logger)
	defer func() {
		if err := connections.Close(); err != nil {
			logger.Warn("Failed to close connections", zap.Error(err))
		}
	}()

	datasources := services.NewDatasourceService(databasesFromConfig(cfg), connections, logger)
	schemas := services.NewSchemaService(datasources, schemaCache, m, logger)
	queries := services.NewQueryService(
		services.QueryConfig{DefaultTimeout: cfg.Query.DefaultTimeout()},
		datasources,
		schemas,
		tracker.New(cfg.Query.HistorySize, logger, tracker.WithAnnotator(optimizer.Annotate)),
		optimizer.NewSlowQueryMonitor(cfg.Query.SlowQueryThresholdMs, nil),
		m,
		logger,
	)

	mcpServer := mcp.NewServer(cfg.Server.Name, cfg.Version, mcp.NewToolAuditor(m, logger), logger)
	tools.RegisterAll(mcpServer.MCP(), &tools.ToolDeps{
		Datasources: datasources,
		Schemas:     schemas,
		Queries:     queries,
		Version:     cfg.Version,
		Logger:      logger,
	})

	if cfg.Server.Transport == config.TransportHTTP {
		return serveHTTP(ctx, cfg, mcpServer, reg, logger)
	}
	if err := mcpServer.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// databasesFromConfig converts configured databases for the services layer.
func databasesFromConfig(cfg *config.Config) []services.Database {
	dbs := make([]services.Database, 0, len(cfg.Databases))
	for _, db := range cfg.Databases {
		dbs = append(dbs, services.Database{
			Connection:      db.Connection(cfg.Query.MaxRows),
			CacheTTLMinutes: db.CacheTTLMinutes,
			Introspection:   db.Introspection.Options(),
		})
	}
	return dbs
}

func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcp.Server, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger.Named("mcp-http"))(mcpServer.NewStreamableHTTPServer()))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": cfg.Version})
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           middleware.RequestLogger(logger.Named("http"), "/healthz", "/metrics")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLSCertPath != ""))
		var err error
		if cfg.Server.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertPath, cfg.Server.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}
