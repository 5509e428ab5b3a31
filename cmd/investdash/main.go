package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/investdash/internal/api"
	"github.com/mtlprog/investdash/internal/config"
	"github.com/mtlprog/investdash/internal/database"
	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/export"
	"github.com/mtlprog/investdash/internal/report"
	"github.com/mtlprog/investdash/internal/valuation"
	"github.com/mtlprog/investdash/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	passphraseFlag := &cli.StringFlag{
		Name:     "passphrase",
		Usage:    "passphrase identifying the portfolio",
		EnvVars:  []string{"INVESTDASH_PASSPHRASE"},
		Required: true,
	}

	app := &cli.App{
		Name:  "investdash",
		Usage: "investment dashboard valuation service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the snapshot worker",
				Action: func(c *cli.Context) error { return serve(c.Context, cfg, stop) },
			},
			{
				Name:  "migrate",
				Usage: "apply pending PostgreSQL migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "list pending migrations without applying them"},
				},
				Action: func(c *cli.Context) error { return migrate(c.Context, cfg, c.Bool("dry-run")) },
			},
			{
				Name:  "report",
				Usage: "print the portfolio to the terminal",
				Flags: []cli.Flag{
					passphraseFlag,
					&cli.IntFlag{Name: "months", Usage: "history window in months, 0 for the full range"},
					&cli.StringFlag{Name: "granularity", Value: "month", Usage: "history bucket: day, week or month"},
					&cli.IntFlag{Name: "width", Value: 100, Usage: "terminal width"},
					&cli.StringFlag{Name: "xlsx", Usage: "also write the workbook to this path"},
				},
				Action: func(c *cli.Context) error {
					return printReport(c.Context, cfg, reportOptions{
						passphrase:  c.String("passphrase"),
						months:      c.Int("months"),
						granularity: c.String("granularity"),
						width:       c.Int("width"),
						xlsxPath:    c.String("xlsx"),
					})
				},
			},
			{
				Name:  "snapshot",
				Usage: "store today's net worth snapshot for a portfolio",
				Flags: []cli.Flag{passphraseFlag},
				Action: func(c *cli.Context) error {
					return takeSnapshot(c.Context, cfg, c.String("passphrase"))
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("investdash: %v", err)
	}
}

func serve(ctx context.Context, cfg config.Config, stop context.CancelFunc) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newServices(cfg, st)

	var hook worker.AfterSnapshotHook
	if cfg.GoogleSheetsID != "" && cfg.GoogleCredentialsJSON != "" {
		sheetsWriter, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		hook = sheetsWriter
		slog.Info("Google Sheets export enabled")
	} else {
		slog.Info("Google Sheets export disabled (GOOGLE_SHEETS_ID or GOOGLE_CREDENTIALS_JSON not set)")
	}

	snapshotWorker := worker.NewSnapshotWorker(svc.snapshots, cfg.SnapshotUserKeys, cfg.SnapshotWorkerInterval, hook)
	go snapshotWorker.Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, generate endpoint is unprotected")
	}

	srv := api.NewServer(cfg.HTTPPort, api.Deps{
		Ledger:     svc.ledger,
		Dashboards: svc.valuation,
		Snapshots:  svc.snapshots,
		Runner:     snapshotWorker,
		Keys:       svc.keys,
	}, cfg.AdminAPIKey)

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort, "pivot", svc.valuation.Pivot())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func migrate(ctx context.Context, cfg config.Config, dryRun bool) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required; the SQLite store applies its schema on open")
	}
	migrations, err := migrationsDir()
	if err != nil {
		return err
	}

	if dryRun {
		pending, err := database.PendingMigrations(migrations, nil)
		if err != nil {
			return err
		}
		for _, name := range pending {
			fmt.Println(name)
		}
		return nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	applied, err := database.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "applied", len(applied))
	return nil
}

type reportOptions struct {
	passphrase  string
	months      int
	granularity string
	width       int
	xlsxPath    string
}

func printReport(ctx context.Context, cfg config.Config, opts reportOptions) error {
	granularity, err := domain.ParseGranularity(opts.granularity)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newServices(cfg, st)
	key, err := svc.keys.UserKey(opts.passphrase)
	if err != nil {
		return err
	}

	d, err := svc.valuation.Dashboard(ctx, key, valuation.Request{
		History:     true,
		Months:      opts.months,
		Granularity: granularity,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	out, err := report.Terminal(report.Markdown(d, now), opts.width)
	if err != nil {
		return err
	}
	fmt.Print(out)

	if opts.xlsxPath == "" {
		return nil
	}
	f, err := os.Create(opts.xlsxPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", opts.xlsxPath, err)
	}
	if err := export.WriteXLSX(f, d, now); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func takeSnapshot(ctx context.Context, cfg config.Config, passphrase string) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newServices(cfg, st)
	key, err := svc.keys.UserKey(passphrase)
	if err != nil {
		return err
	}

	d, err := svc.snapshots.Generate(ctx, key, domain.Day(time.Now().UTC()))
	if err != nil {
		return err
	}
	fmt.Println(report.FormatMoney(d.Total, d.Pivot))
	return nil
}
