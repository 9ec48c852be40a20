package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Commands accepted by Runner.Run.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandVersion = "version"
)

// Source picks where migration files come from.
func Source(dir string, embedded bool) (fs.FS, error) {
	if embedded {
		return fs.Sub(Migrations, embeddedDir)
	}
	if dir == "" {
		return nil, errors.New("migrations dir is required")
	}
	return os.DirFS(dir), nil
}

// Runner applies goose migrations from one source to one database. It uses
// goose's provider API, so no package-level goose state is touched.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, source fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Report is one line of command output: a migration that ran, or its status.
type Report struct {
	Version  int64
	Path     string
	State    string
	Duration string
}

// Run executes command. target is only read by CommandVersion and must be a
// YYYYMMDDHHMMSS version; the database moves up or down to reach it.
func (r *Runner) Run(ctx context.Context, command, target string) ([]Report, error) {
	switch command {
	case CommandUp:
		results, err := r.provider.Up(ctx)
		return applied(results), wrap(command, err)
	case CommandDown:
		result, err := r.provider.Down(ctx)
		if result == nil {
			return nil, wrap(command, err)
		}
		return applied([]*goose.MigrationResult{result}), wrap(command, err)
	case CommandStatus:
		statuses, err := r.provider.Status(ctx)
		if err != nil {
			return nil, wrap(command, err)
		}
		reports := make([]Report, 0, len(statuses))
		for _, st := range statuses {
			reports = append(reports, Report{Version: st.Source.Version, Path: st.Source.Path, State: string(st.State)})
		}
		return reports, nil
	case CommandVersion:
		return r.migrateTo(ctx, target)
	}
	return nil, fmt.Errorf("unknown migrate command %q", command)
}

func (r *Runner) migrateTo(ctx context.Context, target string) ([]Report, error) {
	if target == "" {
		return nil, errors.New("target version is required")
	}
	want, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == want:
		return nil, nil
	case current < want:
		results, err = r.provider.UpTo(ctx, want)
	default:
		results, err = r.provider.DownTo(ctx, want)
	}
	return applied(results), wrap(fmt.Sprintf("migrate to %d", want), err)
}

func applied(results []*goose.MigrationResult) []Report {
	reports := make([]Report, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		reports = append(reports, Report{
			Version:  res.Source.Version,
			Path:     res.Source.Path,
			State:    res.Direction,
			Duration: res.Duration.String(),
		})
	}
	return reports
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
