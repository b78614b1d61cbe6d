package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"golang.org/x/sync/errgroup"

	"github.com/statusexport/statusexport/internal/query"
	"github.com/statusexport/statusexport/internal/storage"
)

const defaultDownloadConcurrency = 4

type Engine struct {
	// DownloadConcurrency bounds parallel object downloads per Execute.
	DownloadConcurrency int
}

func NewEngine(downloadConcurrency int) *Engine {
	if downloadConcurrency <= 0 {
		downloadConcurrency = defaultDownloadConcurrency
	}
	return &Engine{DownloadConcurrency: downloadConcurrency}
}

func (e *Engine) Execute(ctx context.Context, store storage.ObjectStore, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if len(request.Files) == 0 {
		return query.Result{}, fmt.Errorf("no files to scan")
	}
	if store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}
	readFn, err := readFunction(request.Format)
	if err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "statusexport-load-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths, err := e.download(ctx, store, workDir, request.Files)
	if err != nil {
		return query.Result{}, err
	}

	groupedPaths := map[string][]string{}
	tableOrder := make([]string, 0)
	var scannedBytes int64
	for index, file := range request.Files {
		if _, ok := groupedPaths[file.TableName]; !ok {
			tableOrder = append(tableOrder, file.TableName)
		}
		groupedPaths[file.TableName] = append(groupedPaths[file.TableName], localPaths[index])
		scannedBytes += file.FileSizeBytes
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for _, tableName := range tableOrder {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s`, QuoteIdent(tableName), readFn(groupedPaths[tableName]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:      columns,
		Rows:         resultRows,
		ScannedFiles: len(request.Files),
		ScannedBytes: scannedBytes,
		Duration:     time.Since(start),
	}, nil
}

// download copies every file into workDir. The returned paths are aligned
// with files regardless of completion order.
func (e *Engine) download(ctx context.Context, store storage.ObjectStore, workDir string, files []query.TableFile) ([]string, error) {
	concurrency := e.DownloadConcurrency
	if concurrency <= 0 {
		concurrency = defaultDownloadConcurrency
	}
	localPaths := make([]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for index, file := range files {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d%s", sanitizeFileComponent(file.TableName), index, filepath.Ext(file.ObjectPath)))
		localPaths[index] = localPath
		g.Go(func() error {
			return stageFile(gctx, store, file, localPath)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return localPaths, nil
}

func readFunction(format query.Format) (func([]string) string, error) {
	switch format {
	case query.FormatParquet, "":
		return func(paths []string) string {
			return fmt.Sprintf("read_parquet(%s, union_by_name = true)", quoteStringArray(paths))
		}, nil
	case query.FormatCSV:
		return func(paths []string) string {
			return fmt.Sprintf("read_csv_auto(%s, header = true, union_by_name = true)", quoteStringArray(paths))
		}, nil
	case query.FormatJSON:
		return func(paths []string) string {
			return fmt.Sprintf("read_json_auto(%s, union_by_name = true)", quoteStringArray(paths))
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// normalizeValues detaches byte slices from driver-owned buffers.
func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = append([]byte(nil), typed...)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
