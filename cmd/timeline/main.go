package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/bytedance/sonic"
	"github.com/mattn/go-isatty"
	"github.com/robalyx/timeline/internal/setup"
	"github.com/robalyx/timeline/internal/setup/config"
	"github.com/robalyx/timeline/internal/setup/telemetry"
	"github.com/robalyx/timeline/internal/store/memory"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// CLILogDir specifies where CLI log files are stored.
const CLILogDir = "logs/cli_logs"

var ErrUserRequired = errors.New("USER argument required")

// backend is what every subcommand reads from.
type backend struct {
	timeline *setup.Timeline
	cleanup  func()
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "timeline",
		Usage: "Query timelines from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "fixture",
				Usage: "serve from a JSON fixture instead of the configured stores",
			},
			&cli.IntFlag{
				Name:  "min-followers",
				Usage: "follower count from which a fixture user is high fan-out (0 disables)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print the timeline of a user",
				ArgsUsage: "USER",
				Action: withBackend(func(ctx context.Context, b *backend, user timeline.UserID) error {
					res, err := b.timeline.Service.GetTimeline(ctx, user)
					if err != nil {
						return err
					}
					return writeJSON(os.Stdout, res.Payload)
				}),
			},
			{
				Name:      "followers",
				Usage:     "Print the followers of a user",
				ArgsUsage: "USER",
				Action: withBackend(func(ctx context.Context, b *backend, user timeline.UserID) error {
					followers, err := b.timeline.Graph.GetFollowers(ctx, user)
					if err != nil {
						return err
					}
					if followers == nil {
						followers = []timeline.FollowerEntry{}
					}
					return marshal(os.Stdout, map[string]any{"followers": followers})
				}),
			},
			{
				Name:      "comments",
				Usage:     "Print every comment of a user",
				ArgsUsage: "USER",
				Action: withBackend(func(ctx context.Context, b *backend, user timeline.UserID) error {
					comments, err := b.timeline.Content.GetByAuthor(ctx, user)
					if err != nil {
						return err
					}
					if comments == nil {
						comments = []timeline.ContentItem{}
					}
					return marshal(os.Stdout, map[string]any{"comments": comments})
				}),
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// withBackend opens the stores, runs fn for the USER argument and releases them.
func withBackend(fn func(ctx context.Context, b *backend, user timeline.UserID) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 || c.Args().First() == "" {
			return ErrUserRequired
		}

		b, err := openBackend(ctx, c)
		if err != nil {
			return err
		}
		defer b.cleanup()

		ctx, cancel := context.WithTimeout(ctx, telemetry.ServiceCLI.GetRequestTimeout(&config.Config{}))
		defer cancel()

		return fn(ctx, b, timeline.UserID(c.Args().First()))
	}
}

// openBackend builds the timeline over a fixture or over the configured stores.
func openBackend(ctx context.Context, c *cli.Command) (*backend, error) {
	if path := c.String("fixture"); path != "" {
		store, err := memory.LoadFixtureFile(path, int(c.Int("min-followers")))
		if err != nil {
			return nil, err
		}

		// Quiet unless something goes wrong
		logger, err := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}

		cfg := &config.Config{}
		tl := setup.NewTimeline(cfg, setup.Stores{
			Profiles: store,
			Graph:    store,
			Content:  store,
		}, setup.NewMemoryCacheStore(&cfg.Timeline.Cache), logger)

		return &backend{
			timeline: tl,
			cleanup:  func() { _ = logger.Sync() },
		}, nil
	}

	app, err := setup.InitializeApp(ctx, telemetry.ServiceCLI, CLILogDir)
	if err != nil {
		return nil, err
	}

	return &backend{
		timeline: app.Timeline,
		cleanup:  func() { app.Cleanup(context.Background()) },
	}, nil
}

// marshal encodes v and writes it like writeJSON.
func marshal(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return err
	}
	return writeJSON(w, data)
}

// writeJSON prints data, indented when w is a terminal.
func writeJSON(w io.Writer, data []byte) error {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			data = buf.Bytes()
		}
	}

	data = append(data, '\n')
	_, err := w.Write(data)
	return err
}
