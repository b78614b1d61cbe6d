package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/statusexport/statusexport/internal/table"
)

var (
	// ErrLookup means the catalog answered but cannot resolve the pair.
	ErrLookup = errors.New("catalog: lookup failed")
	// ErrUnavailable means the catalog service could not be reached.
	ErrUnavailable = errors.New("catalog: unavailable")
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatParquet:
		return FormatParquet, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported data format %q", raw)
	}
}

type Resolver interface {
	Resolve(ctx context.Context, database, tableName string) (DatasetHandle, error)
}

// DatasetHandle is a resolved catalog entry. It is never mutated after
// Resolve returns.
type DatasetHandle struct {
	Database string
	Table    string
	Location string
	Format   Format
	Schema   table.Schema
}

// RunRecord is the bookkeeping row written once a run has exported.
type RunRecord struct {
	RunID       string
	JobName     string
	Database    string
	Table       string
	OutputPath  string
	RowsLoaded  int64
	RowsMatched int64
	RowsWritten int64
	StartedAt   time.Time
	CommittedAt time.Time
}

// ParseColumnType maps crawler/Hive type names onto the canonical column
// types. Type parameters such as varchar(20) or decimal(10,2) are ignored.
func ParseColumnType(raw string) (table.ColumnType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}
	switch name {
	case "string", "varchar", "char", "text":
		return table.TypeString, nil
	case "bigint", "int", "integer", "smallint", "tinyint", "long":
		return table.TypeInt64, nil
	case "double", "float", "decimal", "real":
		return table.TypeFloat64, nil
	case "boolean", "bool":
		return table.TypeBool, nil
	case "timestamp", "date":
		return table.TypeTimestamp, nil
	case "binary":
		return table.TypeBinary, nil
	default:
		return "", fmt.Errorf("unsupported column type %q", raw)
	}
}
