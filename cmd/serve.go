package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/reftrack/internal/api"
	"github.com/reftrack/internal/config"
	"github.com/reftrack/internal/gitrepo"
	"github.com/reftrack/internal/jobqueue"
	"github.com/reftrack/internal/registry"
)

// ServeCommand returns the CLI command for starting the tracking service.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the branch tracking service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address for the HTTP server",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Run with the in-memory registry and in-process scheduler (no postgres)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("listen"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if err := config.ValidateServer(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	updater := &gitrepo.Updater{Dir: cfg.Server.RepoDir}

	var (
		store registry.Store
		sched api.Scheduler
	)

	if c.Bool("dev") || cfg.Server.DatabaseURL == "" {
		log.Info().Msg("running with in-memory registry; tracked branches will not persist")
		memStore := registry.NewMemoryStore()
		store = memStore
		sched = jobqueue.NewDirectScheduler(memStore, updater, 2)
	} else {
		ctx := context.Background()

		pool, err := pgxpool.New(ctx, cfg.Server.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		pgStore := registry.NewPGStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}

		queue, err := jobqueue.NewJobQueue(pool, pgStore, updater, jobqueue.DefaultQueueConfig())
		if err != nil {
			return err
		}
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			if err := queue.Stop(context.Background()); err != nil {
				log.Warn().Err(err).Msg("job queue shutdown failed")
			}
		}()

		store = pgStore
		sched = queue
	}

	server := api.NewServer(store, sched, api.ServerOptions{
		ListenAddr:   cfg.Server.ListenAddr,
		GithookRate:  cfg.Server.PollRate,
		GithookBurst: cfg.Server.PollBurst,
	})

	log.Info().Str("addr", cfg.Server.ListenAddr).Msg("starting tracking service")
	return server.Start()
}
