package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: money columns are NUMERIC(12,2), timestamps are TIMESTAMPTZ
SELECT 1;
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
SELECT 1;
-- +goose StatementEnd
`

// SanitizeName lowercases a human migration name into a snake_case suffix.
func SanitizeName(name string) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	return safe, nil
}

// CreateSQLMigration writes <dir>/<version>_<name>.sql. The version is the
// UTC timestamp of now, bumped past the latest existing version so files
// created in the same second or with a skewed clock still sort last.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe, err := SanitizeName(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	latest, err := LatestVersion(os.DirFS(dir), ".")
	if err != nil {
		return "", err
	}
	version, err := nextVersion(now, latest)
	if err != nil {
		return "", err
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, safe))
	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", fullpath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, sqlTemplate, safe); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func nextVersion(now time.Time, latest int64) (int64, error) {
	v, err := strconv.ParseInt(now.UTC().Format(versionLayout), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("format version: %w", err)
	}
	if v <= latest {
		// keep the 14 digit shape by stepping one second past latest
		t, err := time.Parse(versionLayout, strconv.FormatInt(latest, 10))
		if err != nil {
			return latest + 1, nil
		}
		v, _ = strconv.ParseInt(t.Add(time.Second).Format(versionLayout), 10, 64)
	}
	return v, nil
}
