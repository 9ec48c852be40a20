package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/migrate"
)

type options struct {
	dir      string
	embedded bool
	name     string
	version  string
}

var dbCommands = map[string]bool{
	migrate.CommandUp:      true,
	migrate.CommandDown:    true,
	migrate.CommandStatus:  true,
	migrate.CommandVersion: true,
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.BoolVar(&opts.embedded, "embedded", false, "use the migrations compiled into the binary")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	switch *cmd {
	case "create":
		if opts.name == "" {
			exit("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			exit("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		validate := func() error { return migrate.ValidateDir(opts.dir) }
		if opts.embedded {
			validate = migrate.ValidateEmbedded
		}
		if err := validate(); err != nil {
			exit("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	if !dbCommands[*cmd] {
		exit("unknown -cmd value: %s", *cmd)
	}
	if *cmd == migrate.CommandVersion && opts.version == "" {
		exit("missing -version for version command")
	}
	source, err := migrate.Source(opts.dir, opts.embedded)
	if err != nil {
		exit("migration source: %v", err)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      *cmd,
		"dir":      opts.dir,
		"embedded": opts.embedded,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, source)
	requireResource(ctx, logg, "goose provider", err)

	reports, err := runner.Run(ctx, *cmd, opts.version)
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	for _, rep := range reports {
		fmt.Printf("%-16d %-10s %-10s %s\n", rep.Version, rep.State, rep.Duration, rep.Path)
	}
	logg.Info(logg.WithField(ctx, "migrations", len(reports)), "migration command completed")
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
