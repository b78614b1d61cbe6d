// Package migrations owns the catalog schema: the dataset tables the resolve
// stage reads and the export_run table the commit stage writes.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "statusexport_schema_migrations"

var migrationFilePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// Step identifies one catalog schema change, e.g. 000002_export_run.
type Step struct {
	Version int64
	Name    string
}

func (s Step) String() string {
	return fmt.Sprintf("%06d_%s", s.Version, s.Name)
}

type migration struct {
	Step
	UpSQL   string
	DownSQL string
}

// Status compares the embedded catalog schema with the tracking table.
// Unknown lists versions recorded in the database that this binary does not
// ship, which usually means a newer release migrated the catalog.
type Status struct {
	Applied []Step
	Pending []Step
	Unknown []int64
}

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

// Up applies pending steps in version order. steps <= 0 applies all of them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) ([]Step, error) {
	status, source, err := r.inspect(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []Step
	for _, step := range status.Pending {
		if steps > 0 && len(done) >= steps {
			break
		}
		if err := runStep(ctx, db, source[step.Version], true); err != nil {
			return done, err
		}
		done = append(done, step)
	}
	return done, nil
}

// Down rolls back the newest applied steps. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) ([]Step, error) {
	if steps <= 0 {
		steps = 1
	}
	status, source, err := r.inspect(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(status.Unknown) > 0 {
		newest := slices.Max(status.Unknown)
		if len(status.Applied) == 0 || newest > status.Applied[len(status.Applied)-1].Version {
			return nil, fmt.Errorf("catalog schema: version %d is applied but not shipped with this binary", newest)
		}
	}

	var done []Step
	for i := len(status.Applied) - 1; i >= 0 && len(done) < steps; i-- {
		step := status.Applied[i]
		if err := runStep(ctx, db, source[step.Version], false); err != nil {
			return done, err
		}
		done = append(done, step)
	}
	return done, nil
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) (Status, error) {
	status, _, err := r.inspect(ctx, db)
	return status, err
}

func (r *Runner) inspect(ctx context.Context, db *sql.DB) (Status, map[int64]migration, error) {
	items, err := loadMigrations(r.fsys)
	if err != nil {
		return Status{}, nil, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return Status{}, nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return Status{}, nil, err
	}

	source := make(map[int64]migration, len(items))
	for _, item := range items {
		source[item.Version] = item
	}
	return diffVersions(items, applied), source, nil
}

func diffVersions(items []migration, applied []int64) Status {
	appliedSet := make(map[int64]struct{}, len(applied))
	for _, version := range applied {
		appliedSet[version] = struct{}{}
	}
	status := Status{Applied: []Step{}, Pending: []Step{}}
	known := make(map[int64]struct{}, len(items))
	for _, item := range items {
		known[item.Version] = struct{}{}
		if _, ok := appliedSet[item.Version]; ok {
			status.Applied = append(status.Applied, item.Step)
		} else {
			status.Pending = append(status.Pending, item.Step)
		}
	}
	for _, version := range applied {
		if _, ok := known[version]; !ok {
			status.Unknown = append(status.Unknown, version)
		}
	}
	return status
}

func ensureMigrationTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("catalog schema: create %s: %w", migrationTable, err)
	}
	return nil
}

// runStep executes one script and its tracking row in a single transaction.
func runStep(ctx context.Context, db *sql.DB, item migration, up bool) error {
	verb, script, record := "apply", item.UpSQL, `INSERT INTO `+migrationTable+` (version) VALUES ($1)`
	if !up {
		verb, script, record = "roll back", item.DownSQL, `DELETE FROM `+migrationTable+` WHERE version = $1`
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog schema: %s %s: begin: %w", verb, item.Step, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("catalog schema: %s %s: %w", verb, item.Step, err)
	}
	if _, err := tx.ExecContext(ctx, record, item.Version); err != nil {
		return fmt.Errorf("catalog schema: %s %s: record version: %w", verb, item.Step, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog schema: %s %s: commit: %w", verb, item.Step, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog schema: read %s: %w", migrationTable, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("catalog schema: scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: read %s: %w", migrationTable, err)
	}
	return versions, nil
}

// loadMigrations pairs NNNNNN_name.up.sql with NNNNNN_name.down.sql. Both
// halves are required so every catalog change can be rolled back.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("catalog schema: read migration dir: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		parts := migrationFilePattern.FindStringSubmatch(base)
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("catalog schema: version of %q: %w", base, err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("catalog schema: read %q: %w", base, err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &migration{Step: Step{Version: version, Name: parts[2]}}
			byVersion[version] = item
		} else if item.Name != parts[2] {
			return nil, fmt.Errorf("catalog schema: version %d has two names: %q and %q", version, item.Name, parts[2])
		}
		if parts[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
	}

	items := make([]migration, 0, len(byVersion))
	for _, item := range byVersion {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("catalog schema: %s missing up SQL", item.Step)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("catalog schema: %s missing down SQL", item.Step)
		}
		items = append(items, *item)
	}
	slices.SortFunc(items, func(a, b migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	return items, nil
}
