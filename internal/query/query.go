package query

import (
	"context"
	"time"

	"github.com/statusexport/statusexport/internal/storage"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

// Request runs SQL over views named after TableFile.TableName. Every file is
// read with the same Format.
type Request struct {
	SQL    string
	Format Format
	Files  []TableFile
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, store storage.ObjectStore, request Request) (Result, error)
}
