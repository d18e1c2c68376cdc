package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c3i/globe/internal/audit"
	"github.com/c3i/globe/internal/cache"
	"github.com/c3i/globe/internal/config"
	"github.com/c3i/globe/internal/database"
	"github.com/c3i/globe/internal/hub"
	"github.com/c3i/globe/internal/influx"
	"github.com/c3i/globe/internal/logging"
	"github.com/c3i/globe/internal/metrics"
	intOtel "github.com/c3i/globe/internal/otel"
	"github.com/c3i/globe/internal/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub that holds the shared waypoint collection",
	Long: `Run the hub. Clients connect over websocket at /ws; the REST API
is under /api and Prometheus metrics under /metrics.

The backing store is chosen by storage.type (memory, sqlite, postgres, redis).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, listen)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides hub.listen)")
	rootCmd.AddCommand(serveCmd)
}

// server holds everything serve opens so it can be torn down in order.
type server struct {
	provider *intOtel.Provider
	store    storage.Store
	recorder *audit.Recorder
	auditDB  *database.Manager
	hub      *hub.Hub
}

func serve(ctx context.Context, listen string) error {
	hubCfg := config.GetHubConfig()
	if listen != "" {
		hubCfg.Listen = listen
	}
	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == StorageWebSocket {
		return fmt.Errorf("the hub cannot use the websocket store")
	}

	srv := &server{}
	defer srv.close()

	h, err := srv.setup(ctx, hubCfg, storageCfg)
	if err != nil {
		return err
	}

	color.Green("✓ Hub listening on %s (storage: %s)", hubCfg.Listen, storageCfg.Type)
	return h.ListenAndServe(ctx, hubCfg.Listen)
}

func (s *server) setup(ctx context.Context, hubCfg config.HubConfig, storageCfg config.StorageConfig) (*hub.Hub, error) {
	var clients func() int

	if err := s.setupLogging(func() []slog.Attr {
		if clients == nil {
			return nil
		}
		return []slog.Attr{slog.Int("clients", clients())}
	}); err != nil {
		return nil, err
	}

	store, err := openStore(storageCfg)
	if err != nil {
		return nil, err
	}
	s.store = store

	wpCache := cache.NewWaypointCache()
	rec, err := s.setupAudit(ctx, wpCache)
	if err != nil {
		return nil, err
	}
	s.recorder = rec

	h, err := hub.New(hub.Config{
		Secret:       hubCfg.Secret,
		SendQueue:    hubCfg.SendQueue,
		PingInterval: hubCfg.PingInterval,
		WriteWait:    hubCfg.WriteWait,
	}, hub.Dependencies{
		Store:          store,
		Cache:          wpCache,
		Recorder:       rec,
		Metrics:        metrics.NewHub(viper.GetBool("metrics.enabled")),
		Logger:         logger,
		DispatchLogger: logging.NewDispatcherLogger(dbLogger),
	})
	if err != nil {
		return nil, err
	}
	s.hub = h
	clients = h.ClientCount

	if err := h.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start hub: %w", err)
	}
	return h, nil
}

// setupLogging adds the session log file, OTel and Graylog to the
// console logger the root command installed.
func (s *server) setupLogging(attrs logging.ContextProvider) error {
	opts := logging.Options{
		GraylogAddress: config.GraylogAddress(),
		GraylogLevel:   config.GraylogLevel(),
		Context:        attrs,
	}

	if viper.GetBool("logToFile") {
		f, path, err := openLogFile("serve")
		if err != nil {
			return err
		}
		logFile = f
		opts.File = f
		logger.Info("Logging to file", "path", path)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intOtel.New(intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      opts.File,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			ErrorLogger:    logger,
		})
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			s.provider = p
			opts.Provider = p.LoggerProvider()
			logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	return setupLogging(os.Stderr, &opts)
}

func (s *server) setupAudit(ctx context.Context, wpCache *cache.WaypointCache) (*audit.Recorder, error) {
	auditCfg := config.GetAuditConfig()
	if !auditCfg.Enabled {
		return nil, nil
	}

	sinks := []audit.Sink{audit.NewLogSink(logger.With("component", "audit"))}

	if auditCfg.Database {
		path := auditCfg.Path
		if path == "" {
			if err := os.MkdirAll(viper.GetString("logsDir"), 0o755); err != nil {
				return nil, fmt.Errorf("create logs dir: %w", err)
			}
			path = filepath.Join(viper.GetString("logsDir"), appName+"_audit.db")
		}
		m := database.NewManager(dbLogger)
		if err := m.ConnectSqlite(path); err != nil {
			return nil, fmt.Errorf("audit database: %w", err)
		}
		if err := m.Setup(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("audit database schema: %w", err)
		}
		s.auditDB = m
		sinks = append(sinks, audit.NewGormSink(m.DB, audit.GormSinkConfig{
			FlushInterval: auditCfg.FlushInterval,
			BatchSize:     auditCfg.BatchSize,
		}, logger))
	}

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		m := influx.NewManager(dbLogger, influx.Config{
			URL:        fmt.Sprintf("%s://%s:%s", influxCfg.Protocol, influxCfg.Host, influxCfg.Port),
			Token:      influxCfg.Token,
			Org:        influxCfg.Org,
			Bucket:     influxCfg.Bucket,
			BackupPath: influxCfg.BackupPath,
			Provision:  true,
		})
		if err := m.Connect(ctx); err != nil {
			logger.Warn("InfluxDB unavailable, audit points will not be written", "error", err)
		} else {
			sinks = append(sinks, audit.NewInfluxSink(m))
		}
	}

	return audit.NewRecorder(logger, sinks, audit.WithLookup(wpCache.Get)), nil
}

func (s *server) close() {
	if s.hub != nil {
		_ = s.hub.Close()
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			logger.Warn("Failed to close audit sinks", "error", err)
		}
	}
	if s.auditDB != nil {
		_ = s.auditDB.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.provider.Shutdown(ctx)
	}
}
