package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/robalyx/timeline/internal/database"
	"github.com/robalyx/timeline/internal/database/migrations"
	"github.com/robalyx/timeline/internal/graph"
	"github.com/robalyx/timeline/internal/setup"
	"github.com/robalyx/timeline/internal/setup/config"
	"github.com/robalyx/timeline/internal/store/memory"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	ErrNameRequired    = errors.New("NAME argument required")
	ErrFixtureRequired = errors.New("FIXTURE argument required")
)

// target is one PostgreSQL database managed by the migrator.
type target struct {
	name     string
	db       database.Client
	migrator *migrate.Migrator
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	var targets []*target
	defer func() {
		for _, t := range targets {
			t.db.Close()
		}
	}()

	// connect opens the profile and content databases on first use
	connect := func(ctx context.Context) ([]*target, error) {
		if targets != nil {
			return targets, nil
		}

		for _, spec := range []struct {
			name string
			cfg  *config.PostgreSQL
		}{
			{name: migrations.ProfileDB, cfg: &cfg.Common.ProfileDB},
			{name: migrations.ContentDB, cfg: &cfg.Common.ContentDB},
		} {
			set, err := migrations.For(spec.name)
			if err != nil {
				return nil, err
			}

			db, err := database.NewConnection(ctx, spec.cfg, spec.name, logger, false)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s: %w", spec.name, err)
			}
			targets = append(targets, &target{
				name:     spec.name,
				db:       db,
				migrator: migrate.NewMigrator(db.DB(), set),
			})
		}

		return targets, nil
	}

	// eachTarget runs fn on every database
	eachTarget := func(fn func(ctx context.Context, t *target) error) cli.ActionFunc {
		return func(ctx context.Context, _ *cli.Command) error {
			targets, err := connect(ctx)
			if err != nil {
				return err
			}
			for _, t := range targets {
				if err := fn(ctx, t); err != nil {
					return fmt.Errorf("%s: %w", t.name, err)
				}
			}
			return nil
		}
	}

	openGraph := func(ctx context.Context) (*graph.Store, error) {
		return graph.Open(ctx, cfg.Common.Graph.Path, graph.Options{
			PoolSize:               cfg.Common.Graph.PoolSize,
			BusyTimeout:            time.Duration(cfg.Common.Graph.BusyTimeout) * time.Millisecond,
			HighFanoutMinFollowers: cfg.Common.Graph.HighFanoutMinFollowers,
		}, logger)
	}

	app := &cli.Command{
		Name:  "db",
		Usage: "Database management tool",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize migration tables and the graph schema",
				Action: func(ctx context.Context, c *cli.Command) error {
					err := eachTarget(func(ctx context.Context, t *target) error {
						return t.migrator.Init(ctx)
					})(ctx, c)
					if err != nil {
						return err
					}

					store, err := openGraph(ctx)
					if err != nil {
						return err
					}
					return store.Close()
				},
			},
			{
				Name:  "migrate",
				Usage: "Run pending migrations",
				Action: eachTarget(func(ctx context.Context, t *target) error {
					if err := t.migrator.Lock(ctx); err != nil {
						return err
					}
					defer t.migrator.Unlock(ctx) //nolint:errcheck

					group, err := t.migrator.Migrate(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No new migrations to run (database is up to date)", zap.String("database", t.name))
						return nil
					}

					logger.Info("Successfully migrated",
						zap.String("database", t.name),
						zap.String("group", group.String()),
					)
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "Rollback the last migration group",
				Action: eachTarget(func(ctx context.Context, t *target) error {
					if err := t.migrator.Lock(ctx); err != nil {
						return err
					}
					defer t.migrator.Unlock(ctx) //nolint:errcheck

					group, err := t.migrator.Rollback(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No groups to roll back", zap.String("database", t.name))
						return nil
					}

					logger.Info("Successfully rolled back",
						zap.String("database", t.name),
						zap.String("group", group.String()),
					)
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "Show migration status",
				Action: eachTarget(func(ctx context.Context, t *target) error {
					ms, err := t.migrator.MigrationsWithStatus(ctx)
					if err != nil {
						return err
					}

					logger.Info("Migration status",
						zap.String("database", t.name),
						zap.String("migrations", ms.String()),
						zap.String("unapplied", ms.Unapplied().String()),
						zap.String("last_group", ms.LastGroup().String()),
					)
					return nil
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a new Go migration file for one database",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "database",
						Usage: "database the migration belongs to (profile_db or content_db)",
						Value: migrations.ContentDB,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return ErrNameRequired
					}

					name := c.String("database")
					if _, err := migrations.For(name); err != nil {
						return err
					}

					targets, err := connect(ctx)
					if err != nil {
						return err
					}

					idx := slices.IndexFunc(targets, func(t *target) bool { return t.name == name })
					mf, err := targets[idx].migrator.CreateGoMigration(ctx, c.Args().First(),
						migrate.WithGoTemplate(migrations.GoTemplate(name)))
					if err != nil {
						return err
					}

					logger.Info("Created Go migration",
						zap.String("name", mf.Name),
						zap.String("path", mf.Path),
					)
					return nil
				},
			},
			{
				Name:      "seed",
				Usage:     "Load a JSON fixture into the profile, content and graph stores",
				ArgsUsage: "FIXTURE",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return ErrFixtureRequired
					}

					fixture, err := memory.ReadFixtureFile(c.Args().First())
					if err != nil {
						return err
					}

					targets, err := connect(ctx)
					if err != nil {
						return err
					}

					store, err := openGraph(ctx)
					if err != nil {
						return err
					}
					defer store.Close()

					_, err = setup.Seed(ctx, fixture,
						targets[0].db.Model().Profile(), targets[1].db.Model().Post(), store, logger)
					return err
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}
