package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

const (
	gooseUp   = "-- +goose Up"
	gooseDown = "-- +goose Down"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// migrationFile is one .sql entry of a migrations directory.
type migrationFile struct {
	name    string
	version string
}

func sqlFiles(fsys fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		file := migrationFile{name: e.Name()}
		if m := sqlFileRe.FindStringSubmatch(e.Name()); m != nil {
			file.version = m[1]
		}
		files = append(files, file)
	}
	return files, nil
}

// Validate checks every migration in fsys and reports all problems at once:
// filenames, duplicate versions, and goose Up/Down sections. Down is
// required so a release can be rolled back.
func Validate(fsys fs.FS) error {
	files, err := sqlFiles(fsys)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no migrations found")
	}

	var problems []error
	owner := map[string]string{}
	for _, f := range files {
		if f.version == "" {
			problems = append(problems, fmt.Errorf("%s: filename must be YYYYMMDDHHMMSS_name.sql", f.name))
			continue
		}
		if prev, dup := owner[f.version]; dup {
			problems = append(problems, fmt.Errorf("%s: version %s already used by %s", f.name, f.version, prev))
		}
		owner[f.version] = f.name

		body, err := fs.ReadFile(fsys, f.name)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		if err := checkSections(string(body)); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	return errors.Join(problems...)
}

// LatestVersion is the highest well-formed version in fsys, or "".
func LatestVersion(fsys fs.FS) (string, error) {
	files, err := sqlFiles(fsys)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, f := range files {
		latest = max(latest, f.version)
	}
	return latest, nil
}

func checkSections(body string) error {
	up, down := strings.Index(body, gooseUp), strings.Index(body, gooseDown)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", gooseUp)
	case down < 0:
		return fmt.Errorf("missing %q", gooseDown)
	case down < up:
		return errors.New("down section precedes up")
	case !hasStatement(body[up+len(gooseUp) : down]):
		return errors.New("up section has no statements")
	}
	return nil
}

func hasStatement(section string) bool {
	for line := range strings.Lines(section) {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}
