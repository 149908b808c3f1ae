package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create/validate; empty validates the embedded set")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "kitchenstock-migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	// create and validate work on files only.
	switch *cmd {
	case "create":
		if *name == "" {
			exit(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			exit(ctx, logg, "create migration", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		fsys, err := sourceFS(*dir)
		if err != nil {
			exit(ctx, logg, "load migrations", err)
		}
		if err := migrate.Validate(fsys); err != nil {
			exit(ctx, logg, "migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		exit(ctx, logg, "config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "kitchenstock-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if cfg.DB.Driver == config.DBDriverSQLite {
		exit(ctx, logg, "goose migrations target postgres; sqlite schemas are auto-migrated by the services", nil)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		exit(ctx, logg, "database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		exit(ctx, logg, "sql database", err)
	}
	fsys, err := migrate.Migrations()
	if err != nil {
		exit(ctx, logg, "embedded migrations", err)
	}
	runner, err := migrate.NewRunner(sqlDB, fsys, logg)
	if err != nil {
		exit(ctx, logg, "migration runner", err)
	}

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = printStatus(ctx, runner)
	case "version":
		if *version == "" {
			exit(ctx, logg, "missing -version for version command", nil)
		}
		err = runner.To(ctx, *version)
	default:
		exit(ctx, logg, "unknown -cmd value "+*cmd, nil)
	}
	if err != nil {
		// deferred Close does not run past os.Exit
		_ = dbClient.Close()
		exit(ctx, logg, *cmd+" failed", err)
	}
	logg.Info(ctx, "migrate finished")
}

func sourceFS(dir string) (fs.FS, error) {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir), nil
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	statuses, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
	}
	return w.Flush()
}

func exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		logg.Warn(ctx, msg)
	} else {
		logg.Error(ctx, msg, err)
	}
	os.Exit(1)
}
