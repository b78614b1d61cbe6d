package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/statusexport/statusexport/internal/catalog"
	"github.com/statusexport/statusexport/internal/table"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck reports ErrUnavailable when the catalog cannot be reached.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return ping(ctx, r.db)
}

func (r *Repository) Resolve(ctx context.Context, database, tableName string) (catalog.DatasetHandle, error) {
	database = strings.TrimSpace(database)
	tableName = strings.TrimSpace(tableName)
	if database == "" || tableName == "" {
		return catalog.DatasetHandle{}, fmt.Errorf("%w: database and table are required", catalog.ErrLookup)
	}
	if err := r.HealthCheck(ctx); err != nil {
		return catalog.DatasetHandle{}, err
	}

	query := `
SELECT t.table_id, t.location, t.format
FROM catalog_table t
JOIN catalog_database d ON d.database_id = t.database_id
WHERE d.name = $1 AND t.name = $2`

	var (
		tableID   int64
		location  string
		rawFormat string
	)
	if err := r.db.QueryRowContext(ctx, query, database, tableName).Scan(&tableID, &location, &rawFormat); err != nil {
		return catalog.DatasetHandle{}, classify(fmt.Sprintf("resolve %s.%s", database, tableName), err)
	}
	format, err := catalog.ParseFormat(rawFormat)
	if err != nil {
		return catalog.DatasetHandle{}, fmt.Errorf("%w: %s.%s: %w", catalog.ErrLookup, database, tableName, err)
	}

	schema, err := r.listColumns(ctx, tableID)
	if err != nil {
		return catalog.DatasetHandle{}, err
	}
	if len(schema) == 0 {
		return catalog.DatasetHandle{}, fmt.Errorf("%w: %s.%s has no columns", catalog.ErrLookup, database, tableName)
	}

	return catalog.DatasetHandle{
		Database: database,
		Table:    tableName,
		Location: location,
		Format:   format,
		Schema:   schema,
	}, nil
}

func (r *Repository) listColumns(ctx context.Context, tableID int64) (table.Schema, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, data_type
FROM catalog_column
WHERE table_id = $1
ORDER BY ordinal ASC`, tableID)
	if err != nil {
		return nil, classify("list columns", err)
	}
	defer func() { _ = rows.Close() }()

	schema := make(table.Schema, 0)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, classify("scan column row", err)
		}
		columnType, err := catalog.ParseColumnType(dataType)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", catalog.ErrLookup, name, err)
		}
		schema = append(schema, table.Column{Name: name, Type: columnType})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate column rows", err)
	}
	return schema, nil
}

// Commit records a finished run. Re-committing the same run id is a no-op.
func (r *Repository) Commit(ctx context.Context, in catalog.RunRecord) error {
	if in.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := `
INSERT INTO export_run (run_id, job_name, database_name, table_name, output_path, rows_loaded, rows_matched, rows_written, started_at, committed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		in.RunID,
		in.JobName,
		in.Database,
		in.Table,
		in.OutputPath,
		in.RowsLoaded,
		in.RowsMatched,
		in.RowsWritten,
		in.StartedAt,
		in.CommittedAt,
	); err != nil {
		return fmt.Errorf("commit export run: %w", err)
	}
	return nil
}
