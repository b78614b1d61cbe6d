// Package export persists a table as Parquet under a target location,
// optionally split into Hive-style partition directories.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/statusexport/statusexport/internal/storage"
	"github.com/statusexport/statusexport/internal/table"
)

var (
	ErrWrite          = errors.New("export: write failed")
	ErrSchemaMismatch = errors.New("export: schema cannot be encoded")
)

const (
	FormatParquet = "parquet"

	parquetContentType = "application/vnd.apache.parquet"
)

type Target struct {
	Path             string
	Format           string
	PartitionColumns []string
	// RunID names the part files. A random id is used when empty.
	RunID string
}

type Result struct {
	RowsWritten int64
	// Files are object keys relative to the target path.
	Files []string
}

type Exporter struct {
	Opener storage.Opener
	Logger *slog.Logger
	// MaxRowsPerFile splits a partition into several part files. Zero means
	// one file per partition.
	MaxRowsPerFile int
}

func New(opener storage.Opener, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{Opener: opener, Logger: logger}
}

// Export replaces whatever is stored under target.Path with t. New files and
// the success marker are written first; every object that existed before the
// call is deleted afterwards.
func (e *Exporter) Export(ctx context.Context, t table.Table, target Target) (Result, error) {
	if e.Opener == nil {
		return Result{}, fmt.Errorf("%w: exporter is not configured", ErrWrite)
	}
	format := strings.ToLower(strings.TrimSpace(target.Format))
	if format != "" && format != FormatParquet {
		return Result{}, fmt.Errorf("%w: unsupported format %q", ErrWrite, target.Format)
	}
	runID := target.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	files, err := planFiles(t, target.PartitionColumns, e.MaxRowsPerFile, runID)
	if err != nil {
		return Result{}, err
	}

	loc, err := storage.ParseLocation(target.Path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	store, err := e.Opener.Open(ctx, loc)
	if err != nil {
		return Result{}, fmt.Errorf("%w: open %s: %v", ErrWrite, loc, err)
	}
	existing, err := store.List(ctx, "")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	logger := e.Logger.With(slog.String("target", loc.String()), slog.String("run_id", runID))
	written := make(map[string]struct{}, len(files)+1)
	result := Result{Files: make([]string, 0, len(files))}
	for _, file := range files {
		encoded, err := EncodeParquet(file.schema, file.rows)
		if err != nil {
			if errors.Is(err, ErrSchemaMismatch) {
				return Result{}, err
			}
			return Result{}, fmt.Errorf("%w: encode %s: %v", ErrWrite, file.key, err)
		}
		if _, err := store.Put(ctx, file.key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
			ContentType: parquetContentType,
		}); err != nil {
			return Result{}, fmt.Errorf("%w: put %s: %v", ErrWrite, file.key, err)
		}
		written[file.key] = struct{}{}
		result.Files = append(result.Files, file.key)
		result.RowsWritten += encoded.RecordCount
		logger.DebugContext(ctx, "part file written", slog.String("key", file.key), slog.Int64("rows", encoded.RecordCount), slog.Int("bytes", len(encoded.Data)))
	}

	if _, err := store.Put(ctx, storage.SuccessMarker, bytes.NewReader(nil), 0, storage.PutOptions{}); err != nil {
		return Result{}, fmt.Errorf("%w: put %s: %v", ErrWrite, storage.SuccessMarker, err)
	}
	written[storage.SuccessMarker] = struct{}{}

	removed := 0
	for _, object := range existing {
		if _, ok := written[object.Key]; ok {
			continue
		}
		if err := store.Delete(ctx, object.Key); err != nil {
			return Result{}, fmt.Errorf("%w: delete stale %s: %v", ErrWrite, object.Key, err)
		}
		removed++
	}

	logger.InfoContext(ctx, "export finished",
		slog.Int64("rows_written", result.RowsWritten),
		slog.Int("files", len(result.Files)),
		slog.Int("stale_removed", removed),
	)
	return result, nil
}
