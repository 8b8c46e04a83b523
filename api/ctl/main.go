// Command ctl is the operator tool for the waitlist service: schema
// migrations, draw verification and retention purges against Postgres.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/draw"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/infrastructure/postgres"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var dsnFlag = &cli.StringFlag{
	Name:     "dsn",
	Usage:    "Postgres connection string",
	EnvVars:  []string{"DATABASE_URL"},
	Required: true,
}

func main() {
	_ = godotenv.Load()
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "waitlist-ctl",
		Usage: "operate the waitlist service database",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply or revert schema migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply all pending migrations",
						Flags:  []cli.Flag{dsnFlag},
						Action: migrateUp,
					},
					{
						Name:  "down",
						Usage: "revert migrations",
						Flags: []cli.Flag{
							dsnFlag,
							&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to revert"},
						},
						Action: migrateDown,
					},
				},
			},
			{
				Name:      "verify-draw",
				Usage:     "replay recorded draws of an event from their seeds",
				ArgsUsage: "<event-id> [draw-id]",
				Flags:     []cli.Flag{dsnFlag},
				Action:    verifyDraws,
			},
			{
				Name:  "purge",
				Usage: "delete sent outbox rows and processed-message markers",
				Flags: []cli.Flag{
					dsnFlag,
					&cli.DurationFlag{Name: "older-than", Value: 7 * 24 * time.Hour},
				},
				Action: purge,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func migrateUp(c *cli.Context) error {
	v, err := postgres.Migrate(c.String("dsn"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "schema at version %d\n", v)
	return nil
}

func migrateDown(c *cli.Context) error {
	v, err := postgres.MigrateDown(c.String("dsn"), c.Int("steps"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "schema at version %d\n", v)
	return nil
}

func openRepo(c *cli.Context) (*postgres.Repository, func(), error) {
	pool, err := pgxpool.New(c.Context, c.String("dsn"))
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(c.Context); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.New(pool), pool.Close, nil
}

func verifyDraws(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("event id is required", 2)
	}
	eventID, err := uuid.Parse(c.Args().Get(0))
	if err != nil {
		return cli.Exit("invalid event id", 2)
	}
	var only uuid.UUID
	if s := c.Args().Get(1); s != "" {
		if only, err = uuid.Parse(s); err != nil {
			return cli.Exit("invalid draw id", 2)
		}
	}

	repo, closeFn, err := openRepo(c)
	if err != nil {
		return err
	}
	defer closeFn()

	draws, err := repo.ListDraws(c.Context, eventID)
	if err != nil {
		return err
	}

	var failed []string
	checked := 0
	for _, rec := range draws {
		if only != uuid.Nil && rec.ID != only {
			continue
		}
		checked++
		ok, err := draw.Verify(rec)
		if err != nil {
			return fmt.Errorf("draw %s: %w", rec.ID, err)
		}
		verdict := "ok"
		if !ok {
			verdict = "MISMATCH"
			failed = append(failed, rec.ID.String())
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\tseed=%d\tn=%d\tpool=%d\tselected=%d\t%s\n",
			rec.ID, rec.Kind, rec.Seed, rec.Requested, len(rec.Candidates), len(rec.Selected), verdict)
	}
	if checked == 0 {
		return cli.Exit("no matching draws", 1)
	}
	if len(failed) > 0 {
		return cli.Exit("draws do not replay: "+strings.Join(failed, ", "), 1)
	}
	return nil
}

func purge(c *cli.Context) error {
	repo, closeFn, err := openRepo(c)
	if err != nil {
		return err
	}
	defer closeFn()

	outbox, processed, err := repo.PurgeOlderThan(c.Context, c.Duration("older-than"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d outbox rows, %d processed markers\n", outbox, processed)
	return nil
}
