package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logpkg "dsgvo-downloader/common/logger"
	"dsgvo-downloader/internal/config"
	"dsgvo-downloader/internal/models"
	"dsgvo-downloader/internal/service"

	"go.uber.org/zap"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	serviceName = "dsgvo-downloader"
)

type harvester interface {
	Run(ctx context.Context) (*service.RunReport, error)
	Close() error
}

var newHarvester = func(ctx context.Context, cfg *config.Config, log *zap.Logger) (harvester, error) {
	return service.NewDownloaderService(ctx, cfg, log)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(serviceName, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\nIncrementally downloads incidents from the dsgvo-portal.de incident database into PostgreSQL.\n\nOptions:\n", serviceName)
		fs.PrintDefaults()
	}

	var delayMS int
	var databaseURL, configPath string
	fs.IntVar(&delayMS, "delay", config.DefaultDelayMS, "Delay time in milliseconds as to not overwhelm the server and disable the api (minimum 500)")
	fs.IntVar(&delayMS, "d", config.DefaultDelayMS, "Shorthand for -delay")
	fs.StringVar(&databaseURL, "database-url", config.DefaultDatabaseURL, "Database URL for a postgres instance, the tables have to be preconfigured via schema.sql")
	fs.StringVar(&databaseURL, "u", config.DefaultDatabaseURL, "Shorthand for -database-url")
	fs.StringVar(&configPath, "config", os.Getenv("DSGVO_CONFIG"), "Optional YAML config file. Env: DSGVO_CONFIG")
	fs.Parse(args)

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitUsage
	}
	applyFlags(fs, cfg, delayMS, databaseURL)

	warnings, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return exitUsage
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitError
	}
	defer log.Sync()

	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newHarvester(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create downloader service", zap.Error(err))
		return exitError
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error("Error closing downloader service", zap.Error(err))
		}
	}()

	report, err := svc.Run(ctx)
	if err != nil {
		log.Error("Run failed",
			zap.Error(err),
			zap.String("run_id", report.RunID),
			zap.Int("stored", report.Stored()),
			zap.String("hint", hint(err)),
		)
		return exitError
	}

	return exitOK
}

// applyFlags overrides config values with flags that were set explicitly.
func applyFlags(fs *flag.FlagSet, cfg *config.Config, delayMS int, databaseURL string) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "delay", "d":
			cfg.Reconciler.DelayMS = delayMS
		case "database-url", "u":
			cfg.Database.URL = databaseURL
		}
	})
}

func hint(err error) string {
	switch {
	case errors.Is(err, models.ErrSchemaMissing):
		return "apply schema.sql to the database before the first run"
	case errors.Is(err, models.ErrConflict):
		return "another instance may be writing to the same database"
	case errors.Is(err, models.ErrTransport), errors.Is(err, models.ErrParse):
		return "re-run later; already stored incidents are skipped"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return "check database connectivity"
	}
}
