package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

const (
	// DefaultDir is where new migrations are written relative to the repo root.
	DefaultDir = "pkg/migrate/migrations"
	// Migrations carry Postgres enum types and partial indexes.
	dialect = "postgres"
)

// goose keeps dialect and base FS as package globals.
var gooseMu sync.Mutex

// Source locates a set of goose migrations.
type Source struct {
	FS  fs.FS
	Dir string
}

// Embedded returns the migrations compiled into the binary.
func Embedded() Source {
	return Source{FS: Migrations, Dir: embeddedDir}
}

// Local returns migrations read from a directory on disk.
func Local(dir string) Source {
	return Source{FS: os.DirFS(dir), Dir: "."}
}

func (s Source) validate() error {
	if s.FS == nil {
		return fmt.Errorf("migration source fs is required")
	}
	if s.Dir == "" {
		return fmt.Errorf("migration source dir is required")
	}
	return nil
}

func withGoose(src Source, fn func() error) error {
	if err := src.validate(); err != nil {
		return err
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(src.FS)
	defer goose.SetBaseFS(nil)
	return fn()
}

// Run executes a standard goose command (up, down, status, redo, ...) against db.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	return withGoose(src, func() error {
		// RunContext prints status output to stdout (goose internal)
		if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, targetVersion string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil || target <= 0 {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", targetVersion)
	}
	if err := ValidateFS(src.FS, src.Dir); err != nil {
		return err
	}
	known, err := versions(src.FS, src.Dir)
	if err != nil {
		return err
	}
	if _, ok := known[target]; !ok {
		return fmt.Errorf("version %d not found in migration source", target)
	}

	return withGoose(src, func() error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}

		switch {
		case current == target:
			return nil
		case current < target:
			if err := goose.UpToContext(ctx, db, src.Dir, target); err != nil {
				return fmt.Errorf("goose up-to %d: %w", target, err)
			}
		default:
			if err := goose.DownToContext(ctx, db, src.Dir, target); err != nil {
				return fmt.Errorf("goose down-to %d: %w", target, err)
			}
		}
		return nil
	})
}
