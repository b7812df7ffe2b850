// Package bootstrap holds the startup sequence shared by the api,
// cron-worker and outbox-publisher binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/instance"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
	"github.com/angelmondragon/marketledger-backend/pkg/redis"
)

// Runtime is the configuration, logger and open resources of one process.
// Close releases resources in reverse order of acquisition.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Load reads .env (when present) and the environment, then rebuilds the
// logger with the configured level and format.
func Load(kind string) (*Runtime, error) {
	return load(kind, config.Load)
}

func load(kind string, loadConfig func() (*config.Config, error)) (*Runtime, error) {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), "bootstrap.no_dotenv")
	}

	cfg, err := loadConfig()
	if err != nil {
		logg.Error(context.Background(), "bootstrap.config_failed", err)
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	return &Runtime{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}, nil
}

// Database opens the pool and, in dev setups, applies migrations.
func (r *Runtime) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, r.Config.DB, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	r.track("database", client.Close)

	if err := migrate.MaybeRunDev(ctx, r.Config, r.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (r *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, r.Config.Redis, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	r.track("redis", client.Close)
	return client, nil
}

// Track registers an extra resource to release on Close.
func (r *Runtime) Track(name string, close func() error) {
	r.track(name, close)
}

func (r *Runtime) track(name string, close func() error) {
	r.closers = append(r.closers, closer{name: name, close: close})
}

func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			r.Logger.Error(r.Logger.WithField(context.Background(), "resource", c.name), "bootstrap.close_failed", err)
		}
	}
	r.closers = nil
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// identity as log fields.
func (r *Runtime) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = r.Logger.WithFields(ctx, map[string]any{
		"env":      r.Config.App.Env,
		"service":  r.Kind,
		"instance": instance.ID(r.Kind + "-0"),
	})
	return ctx, stop
}
