package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"slackspot-backend/config"
	"slackspot-backend/internal/db"
	"slackspot-backend/internal/metrics"
	"slackspot-backend/internal/occupancy"
	"slackspot-backend/internal/store"
)

const defaultConfigPath = "./config/config.yaml"

func newRootCommand(logger *log.Logger) *cobra.Command {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	serve := newServeCommand(logger, &configPath)
	cmd := &cobra.Command{
		Use:           "slackspotd",
		Short:         "slackspotd tracks who is slacklining at which spot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to the YAML config file (env CONFIG_PATH)")
	cmd.AddCommand(serve, newSweepCommand(logger, &configPath))
	return cmd
}

// app bundles the components shared by every subcommand.
type app struct {
	cfg      *config.Config
	store    *store.Store
	registry *prometheus.Registry
	metrics  *metrics.Collector
	engine   *occupancy.Engine
	close    func() error
}

func newApp(ctx context.Context, logger *log.Logger, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Printf("%s store initialized", cfg.Store.Backend)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	engine := occupancy.NewEngine(st.Users, st.Spots,
		occupancy.WithMaxDuration(cfg.Occupancy.MaxDurationHours),
		occupancy.WithRecorder(collector),
	)

	return &app{
		cfg:      cfg,
		store:    st,
		registry: registry,
		metrics:  collector,
		engine:   engine,
		close:    closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, func() error, error) {
	switch cfg.Store.Backend {
	case "redis":
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		return store.NewRedisStore(rdb, cfg.Redis.KeyPrefix), rdb.Close, nil
	default:
		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		return store.NewGormStore(gormDB), sqlDB.Close, nil
	}
}
