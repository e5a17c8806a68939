package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/bootstrap"
)

// app holds state shared by commands. Infrastructure is connected on first use, so
// commands that only need local input (webhook sign/verify) run without a database.
type app struct {
	logger     *slog.Logger
	loadConfig func() (config.AppConfig, error)
	connect    func(opts *connectInfraOptions) (*sql.DB, redis.UniversalClient, error)

	cfg   *config.AppConfig
	db    *sql.DB
	redis redis.UniversalClient
}

func newApp(logger *slog.Logger) *app {
	return &app{
		logger:     logger,
		loadConfig: bootstrap.LoadConfig,
		connect:    connectInfraWithOptions,
	}
}

func main() {
	logger := bootstrap.NewLogger(os.Stderr, slog.LevelWarn, "text")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp(logger)
	err := newRootCmd(a).ExecuteContext(ctx)
	if closeErr := a.close(); closeErr != nil {
		logger.Error("close infrastructure", "error", closeErr)
	}
	stop()
	if err != nil {
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mediajobs-admin",
		Short:         "Operator tooling for the media job service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&color.NoColor, "no-color", color.NoColor, "disable colored output")

	root.AddCommand(
		newMigrateCmd(a),
		newJobsCmd(a),
		newQueueCmd(a),
		newDeliveriesCmd(a),
		newWebhookCmd(),
		newDevSeedCmd(a),
	)
	return root
}

func (a *app) config() (*config.AppConfig, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.cfg = &cfg
	return a.cfg, nil
}

func (a *app) database() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	db, _, err := a.connect(&connectInfraOptions{Logger: a.logger, Config: cfg, WantDB: true})
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func (a *app) redisClient() (redis.UniversalClient, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	_, client, err := a.connect(&connectInfraOptions{Logger: a.logger, Config: cfg, WantRedis: true})
	if err != nil {
		return nil, err
	}
	a.redis = client
	return client, nil
}

// services wires the job and webhook services without authentication.
func (a *app) services() (bootstrap.ServiceContainer, error) {
	db, err := a.database()
	if err != nil {
		return bootstrap.ServiceContainer{}, err
	}
	client, err := a.redisClient()
	if err != nil {
		return bootstrap.ServiceContainer{}, err
	}
	return bootstrap.NewCoreServices(&bootstrap.ServiceDeps{
		Config:      a.cfg,
		DB:          db,
		RedisClient: client,
		Logger:      a.logger,
	})
}

func (a *app) close() error {
	err := closeInfra(a.db, a.redis)
	a.db, a.redis = nil, nil
	return err
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

var errUsage = errors.New("invalid usage")
