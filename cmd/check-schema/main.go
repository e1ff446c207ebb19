package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dsgvo-downloader/common/database"
	logpkg "dsgvo-downloader/common/logger"
	"dsgvo-downloader/internal/config"
	"dsgvo-downloader/internal/repository"
)

// check-schema verifies that schema.sql has been applied to the target database.
func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "Database URL (defaults to DATABASE_URL or the downloader default)")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("DSGVO_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}

	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	log, err := logpkg.NewLoggerWithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	repo := repository.NewIncidentRepository(db, log)

	ok := true
	for _, table := range repository.RequiredTables {
		columns, err := repo.DescribeTable(ctx, table)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to describe %s: %v\n", table, err)
			os.Exit(1)
		}

		fmt.Printf("\n=== %s ===\n", table)
		if len(columns) == 0 {
			fmt.Println("❌ table does NOT exist")
			ok = false
			continue
		}

		fmt.Println("Column Name      | Data Type                | Nullable | Default")
		fmt.Println("-----------------|--------------------------|----------|--------")
		for _, c := range columns {
			def := "NULL"
			if c.Default != nil {
				def = *c.Default
			}
			fmt.Printf("%-16s | %-24s | %-8v | %s\n", c.Name, c.DataType, c.Nullable, def)
		}

		problems := repository.CheckColumns(table, columns)
		for _, p := range problems {
			fmt.Printf("❌ %s\n", p)
		}
		if len(problems) == 0 {
			fmt.Println("✅ schema matches")
		} else {
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
}
