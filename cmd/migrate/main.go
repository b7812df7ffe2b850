package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/angelmondragon/marketledger-backend/internal/bootstrap"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

var errSQLiteUnsupported = errors.New("goose migrations target postgres; sqlite schemas come from MARKETLEDGER_AUTO_MIGRATE")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", "", "migrations directory; defaults to the embedded set ("+migrate.DefaultDir+" for create)")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch opts.cmd {
	case "up", "down", "status", "validate":
	case "create":
		if opts.name == "" {
			return options{}, errors.New("-name is required for create")
		}
	case "version":
		if opts.version == "" {
			return options{}, errors.New("-version is required for version")
		}
	default:
		return options{}, fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
	return opts, nil
}

func (o options) source() migrate.Source {
	if o.dir == "" {
		return migrate.Embedded()
	}
	return migrate.Local(o.dir)
}

func run(args []string, out io.Writer) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}

	// File-only commands never touch the database.
	switch opts.cmd {
	case "create":
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created", path)
		return nil
	case "validate":
		src := opts.source()
		if err := migrate.ValidateFS(src.FS, src.Dir); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations ok")
		return nil
	}

	rt, err := bootstrap.Load("migrate")
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.Config.FeatureFlags.UseSQLite {
		return errSQLiteUnsupported
	}

	ctx := rt.Logger.WithFields(context.Background(), map[string]any{
		"env": rt.Config.App.Env,
		"cmd": opts.cmd,
	})
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	rt.Track("database", client.Close)

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	if opts.cmd == "version" {
		err = migrate.MigrateToVersion(ctx, sqlDB, opts.source(), opts.version)
	} else {
		err = migrate.Run(ctx, sqlDB, opts.source(), opts.cmd)
	}
	if err != nil {
		rt.Logger.Error(ctx, "migrate.failed", err)
		return err
	}
	rt.Logger.Info(ctx, "migrate.finished")
	return nil
}
