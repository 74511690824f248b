package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/zonegrid/internal/api"
	"github.com/mohammed-shakir/zonegrid/internal/core/config"
	"github.com/mohammed-shakir/zonegrid/internal/core/health"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
	"github.com/mohammed-shakir/zonegrid/internal/core/server"
	"github.com/mohammed-shakir/zonegrid/internal/grid"
	"github.com/mohammed-shakir/zonegrid/internal/logger"
	"github.com/mohammed-shakir/zonegrid/internal/metrics"
	"github.com/mohammed-shakir/zonegrid/internal/resolver"
	"github.com/mohammed-shakir/zonegrid/internal/seed"
	"github.com/mohammed-shakir/zonegrid/internal/store"
	"github.com/mohammed-shakir/zonegrid/internal/store/memstore"
	"github.com/mohammed-shakir/zonegrid/internal/store/postgres"
	"github.com/mohammed-shakir/zonegrid/internal/store/redisstore"
	"github.com/mohammed-shakir/zonegrid/internal/zoneevents"
	"github.com/mohammed-shakir/zonegrid/internal/zones"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

// zoneBackend is what a zone store driver provides.
type zoneBackend interface {
	store.ZoneRepository
	store.WarehouseDirectory
	PutWarehouse(ctx context.Context, w model.Warehouse) error
}

type warehouseBackend interface {
	store.WarehouseDirectory
	PutWarehouse(ctx context.Context, w model.Warehouse) error
}

func run() int {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	seedFlag := flag.String("seed", "", "seed file (overrides SEED_FILE)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load env file", "path", *envFile, "err", err)
		return 1
	}

	cfg := config.FromEnv()
	if *seedFlag != "" {
		cfg.SeedFile = strings.TrimSpace(*seedFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "zonegrid",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	slog.SetDefault(appLog)

	appLog.Info("starting zonegrid",
		"addr", cfg.Addr,
		"version", Version,
		"store", cfg.StoreDriver,
		"h3_res", cfg.H3Res,
		"events", cfg.Events.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := map[string]health.Pinger{}
	var gridOpts []grid.Option

	var zonesBackend zoneBackend
	switch cfg.StoreDriver {
	case "redis":
		observability.SetDriver("redis")
		cli, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithPoolSize(cfg.RedisPoolSize),
			redisstore.WithReadTimeout(cfg.StoreOpTimeout),
			redisstore.WithWriteTimeout(cfg.StoreOpTimeout),
		)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = cli.Close() }()
		rs, err := redisstore.NewStore(cli, cfg.H3Res, cfg.GeometryCacheSize)
		if err != nil {
			appLog.Error("redis store setup failed", "err", err)
			return 1
		}
		zonesBackend = rs
		ready["redis"] = rs
		gridOpts = append(gridOpts, grid.WithLease(rs, cfg.GridLockTTL))
	default:
		observability.SetDriver("memory")
		ms, err := memstore.New(cfg.H3Res)
		if err != nil {
			appLog.Error("memory store setup failed", "err", err)
			return 1
		}
		zonesBackend = ms
	}

	var warehouses warehouseBackend = zonesBackend
	if cfg.WarehouseDSN != "" {
		dir, err := postgres.Open(ctx, cfg.WarehouseDSN)
		if err != nil {
			appLog.Error("warehouse directory connect failed", "err", err)
			return 1
		}
		defer func() { _ = dir.Close() }()
		if err := dir.EnsureSchema(ctx); err != nil {
			appLog.Error("warehouse schema setup failed", "err", err)
			return 1
		}
		warehouses = dir
		ready["postgres"] = dir
	}

	if cfg.SeedFile != "" {
		f, err := seed.Read(cfg.SeedFile)
		if err != nil {
			appLog.Error("seed read failed", "err", err)
			return 1
		}
		res, err := seed.Load(ctx, f, warehouses, zonesBackend, time.Now().UTC())
		if err != nil {
			appLog.Error("seed load failed", "file", cfg.SeedFile, "err", err)
			return 1
		}
		appLog.Info("seed loaded", "file", cfg.SeedFile,
			"warehouses", res.Warehouses, "zones", res.Zones, "skipped_zones", res.SkippedZones)
	}

	var events zoneevents.Emitter = zoneevents.Noop{}
	if cfg.Events.Enabled {
		pub, err := zoneevents.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.QueueSize, appLog)
		if err != nil {
			appLog.Error("zone event publisher setup failed", "brokers", cfg.Events.Brokers, "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		events = pub
	}

	gridOpts = append(gridOpts,
		grid.WithMaxCells(cfg.GridMaxCells),
		grid.WithEmitter(events),
		grid.WithLogger(appLog),
	)

	h := api.New(api.Deps{
		Resolver:   resolver.New(store.Joined{Zones: zonesBackend, Warehouses: warehouses}, zonesBackend, warehouses, appLog),
		Grids:      grid.New(zonesBackend, warehouses, gridOpts...),
		Zones:      zones.New(zonesBackend, warehouses, events, appLog),
		Warehouses: warehouses,
		Logger:     appLog,
	})

	prov := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Addr:    cfg.MetricsAddr,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	if cfg.MetricsEnabled {
		go serveMetrics(ctx, appLog, cfg.MetricsAddr, prov)
	}

	root := server.NewRouter(cfg, appLog, server.Mounts{
		API:     h.Routes(),
		Metrics: prov.Handler(),
		Ready:   ready,
	})
	if err := server.Run(ctx, cfg, appLog, root); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// serveMetrics exposes /metrics on a dedicated listener until ctx ends.
func serveMetrics(ctx context.Context, l *slog.Logger, addr string, p *metrics.Provider) {
	mux := http.NewServeMux()
	mux.Handle(p.Path(), p.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warn("metrics shutdown", "err", err)
		}
	}()

	l.Info("metrics listen", "addr", addr, "path", p.Path())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("metrics server exited", "err", err)
	}
}
