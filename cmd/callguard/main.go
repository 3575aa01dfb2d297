// Package main is the entrypoint for callguard.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/morezero/callguard/internal/config"
	"github.com/morezero/callguard/internal/server"
	"github.com/morezero/callguard/pkg/bootstrap"
	"github.com/morezero/callguard/pkg/db"
	"github.com/morezero/callguard/pkg/faults"
)

const usage = `Usage: callguard [command]
       callguard serve              Start the service (NATS, HTTP, operations).
       callguard migrate up         Run fault log migrations.
       callguard migrate status     Show migration status.
       callguard mappings [file...] Print the error <-> fault mappings after applying overrides.
       callguard purge [days]       Delete fault log records older than days (default 30).

Commands:
  serve           (default) Start callguard.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  mappings        Print every policy's mappings (overrides from CALLGUARD_MAPPINGS_FILE or [file...];
                  later files replace entries of earlier ones).
  purge           Remove old fault log records.

Environment: DATABASE_URL (migrate, purge, FAULT_LOG_ENABLED), MIGRATION_PATH, COMMS_URL,
CALLGUARD_HTTP_ADDR (default :8080), CALLGUARD_MAPPINGS_FILE, CALLGUARD_POLICIES.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("callguard migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("callguard migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("callguard migrate status: %v", err)
			}
		default:
			log.Fatalf("callguard migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "mappings":
		if err := runMappings(os.Stdout, args[1:]...); err != nil {
			log.Fatalf("callguard mappings: %v", err)
		}
		return
	case "purge":
		days := 30
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				log.Fatalf("callguard purge: days must be a non-negative integer, got %q", args[1])
			}
			days = n
		}
		if err := runPurge(days); err != nil {
			log.Fatalf("callguard purge: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("callguard: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath, os.Stdout)
}

func runPurge(days int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	n, err := db.NewFaultLog(pool).Purge(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d fault records.\n", n)
	return nil
}

func runMappings(w io.Writer, files ...string) error {
	if len(files) == 0 {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		files = []string{cfg.MappingsFile}
	}
	mappingsCfg, err := bootstrap.LoadMappingsConfig(files[0])
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}
	for _, f := range files[1:] {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		extra, err := bootstrap.ParseMappingsConfig(data, f)
		if err != nil {
			return err
		}
		mappingsCfg = bootstrap.MergeMappingsConfigs(mappingsCfg, extra)
	}

	policies := faults.NewPolicies()
	if _, err := bootstrap.Apply(policies, mappingsCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	resolved := bootstrap.CreateResolvedMappings(mappingsCfg)
	for _, p := range resolved.Policies() {
		fmt.Fprintf(w, "# %d overrides in policy %s\n", len(resolved.ByPolicy(p)), p)
	}
	return printMappings(w, policies)
}

func printMappings(w io.Writer, policies *faults.Policies) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY\tERROR KIND\tFAULT KIND\tSTATUS")
	for _, name := range policies.Names() {
		for _, m := range policies.Get(name).Mappings() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", name, m.ErrorKind, m.FaultKind, m.HTTPStatus)
		}
	}
	return tw.Flush()
}
