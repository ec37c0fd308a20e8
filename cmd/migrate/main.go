package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/persistence"
	"github.com/joho/godotenv"
)

func usage() {
	fmt.Println("Usage: migrate [-driver postgres|sqlite] [-dsn DSN] <up|down|status>")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  status - list applied and pending migrations")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  PREDICT_STORAGE_DRIVER - postgres or sqlite (default: sqlite)")
	fmt.Println("  PREDICT_STORAGE_DSN    - connection string or SQLite file (default: predict.db)")
}

func main() {
	_ = godotenv.Load()

	driver := flag.String("driver", envOr("PREDICT_STORAGE_DRIVER", "sqlite"), "database driver")
	dsn := flag.String("dsn", envOr("PREDICT_STORAGE_DSN", "predict.db"), "database DSN")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	logger := observability.NewConsoleLogger("migrate", observability.ParseLogLevel(os.Getenv("PREDICT_LOG_LEVEL")))

	dialect, err := persistence.ParseDialect(*driver)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := persistence.Open(ctx, dialect, *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	migrator, err := persistence.NewMigrator(db, dialect, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load migrations")
	}

	switch flag.Arg(0) {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Int("applied", n).Msg("all migrations applied")

	case "down":
		rolled, err := migrator.Down(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		if rolled {
			logger.Info().Msg("last migration rolled back")
		} else {
			logger.Info().Msg("nothing to roll back")
		}

	case "status":
		applied, err := migrator.Applied(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("list applied")
		}
		pending, err := migrator.Pending(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("list pending")
		}
		for _, v := range applied {
			fmt.Printf("applied  %s\n", v)
		}
		for _, v := range pending {
			fmt.Printf("pending  %s\n", v)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", flag.Arg(0))
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
