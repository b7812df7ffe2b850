package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp             = "-- +goose Up"
	annotationDown           = "-- +goose Down"
	annotationStatementBegin = "-- +goose StatementBegin"
	annotationStatementEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks the migrations stored in a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS checks every .sql file under dir: the filename carries a unique
// 14 digit version, the Up section precedes the Down section, the Up section
// is not empty and StatementBegin/StatementEnd blocks are balanced.
func ValidateFS(fsys fs.FS, dir string) error {
	files, err := migrationFiles(fsys, dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}

	seen := map[int64]string{}
	for _, f := range files {
		if prev, ok := seen[f.version]; ok {
			return fmt.Errorf("duplicate migration version %d in %q and %q", f.version, prev, f.name)
		}
		seen[f.version] = f.name

		data, err := fs.ReadFile(fsys, path.Join(dir, f.name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", f.name, err)
		}
		if err := checkAnnotations(string(data)); err != nil {
			return fmt.Errorf("migration %q: %w", f.name, err)
		}
	}
	return nil
}

// LatestVersion returns the highest version under dir, or 0 when none exist.
func LatestVersion(fsys fs.FS, dir string) (int64, error) {
	files, err := migrationFiles(fsys, dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	return files[len(files)-1].version, nil
}

type migrationFile struct {
	name    string
	version int64
}

// migrationFiles lists .sql files sorted by version, rejecting bad names.
func migrationFiles(fsys fs.FS, dir string) ([]migrationFile, error) {
	if fsys == nil {
		return nil, fmt.Errorf("migration fs is required")
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %q: %w", e.Name(), err)
		}
		files = append(files, migrationFile{name: e.Name(), version: v})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func versions(fsys fs.FS, dir string) (map[int64]struct{}, error) {
	files, err := migrationFiles(fsys, dir)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(files))
	for _, f := range files {
		out[f.version] = struct{}{}
	}
	return out, nil
}

func checkAnnotations(sql string) error {
	var (
		upLine, downLine int
		open             bool
		upStatements     int
	)

	scanner := bufio.NewScanner(strings.NewReader(sql))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(text, annotationUp):
			if upLine != 0 {
				return fmt.Errorf("duplicate %q on line %d", annotationUp, line)
			}
			upLine = line
		case strings.HasPrefix(text, annotationDown):
			if downLine != 0 {
				return fmt.Errorf("duplicate %q on line %d", annotationDown, line)
			}
			if open {
				return fmt.Errorf("%q on line %d inside an open statement block", annotationDown, line)
			}
			downLine = line
		case strings.HasPrefix(text, annotationStatementBegin):
			if open {
				return fmt.Errorf("nested %q on line %d", annotationStatementBegin, line)
			}
			open = true
		case strings.HasPrefix(text, annotationStatementEnd):
			if !open {
				return fmt.Errorf("%q on line %d without a matching begin", annotationStatementEnd, line)
			}
			open = false
		case text == "" || strings.HasPrefix(text, "--"):
		default:
			if upLine != 0 && downLine == 0 {
				upStatements++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	switch {
	case upLine == 0:
		return fmt.Errorf("missing %q", annotationUp)
	case downLine == 0:
		return fmt.Errorf("missing %q", annotationDown)
	case downLine < upLine:
		return fmt.Errorf("%q must precede %q", annotationUp, annotationDown)
	case open:
		return fmt.Errorf("unterminated %q block", annotationStatementBegin)
	case upStatements == 0:
		return fmt.Errorf("empty %q section", annotationUp)
	}
	return nil
}
