// Package loader materializes a resolved catalog dataset as a canonical
// table. Source files are read through the query engine; values are coerced
// to the Go types the catalog schema declares.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/statusexport/statusexport/internal/catalog"
	"github.com/statusexport/statusexport/internal/query"
	"github.com/statusexport/statusexport/internal/query/duckdb"
	"github.com/statusexport/statusexport/internal/storage"
	"github.com/statusexport/statusexport/internal/table"
)

var ErrDataRead = errors.New("loader: data read failed")

const viewName = "dataset"

type Loader struct {
	Opener storage.Opener
	Engine query.Engine
	Logger *slog.Logger
}

func New(opener storage.Opener, engine query.Engine, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{Opener: opener, Engine: engine, Logger: logger}
}

// Load reads every visible object under handle.Location. A location without
// data files yields an empty table carrying the catalog schema.
func (l *Loader) Load(ctx context.Context, handle catalog.DatasetHandle) (table.Table, error) {
	if l.Opener == nil || l.Engine == nil {
		return table.Table{}, fmt.Errorf("%w: loader is not configured", ErrDataRead)
	}
	if len(handle.Schema) == 0 {
		return table.Table{}, fmt.Errorf("%w: dataset %s.%s has no columns", ErrDataRead, handle.Database, handle.Table)
	}
	format, err := queryFormat(handle.Format)
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: %v", ErrDataRead, err)
	}

	loc, err := storage.ParseLocation(handle.Location)
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: %v", ErrDataRead, err)
	}
	store, err := l.Opener.Open(ctx, loc)
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: open %s: %v", ErrDataRead, loc, err)
	}
	objects, err := store.List(ctx, "")
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: %v", ErrDataRead, err)
	}

	files := make([]query.TableFile, 0, len(objects))
	for _, object := range objects {
		if storage.IsHiddenObject(object.Key) || object.Size == 0 {
			continue
		}
		files = append(files, query.TableFile{
			TableName:     viewName,
			ObjectPath:    object.Key,
			FileSizeBytes: object.Size,
		})
	}

	logger := l.Logger.With(
		slog.String("database", handle.Database),
		slog.String("table", handle.Table),
		slog.String("location", loc.String()),
	)
	if len(files) == 0 {
		logger.InfoContext(ctx, "dataset location holds no data files", slog.String("schema", handle.Schema.String()))
		return table.New(handle.Schema), nil
	}

	result, err := l.Engine.Execute(ctx, store, query.Request{
		SQL:    selectSQL(handle.Schema),
		Format: format,
		Files:  files,
	})
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: %s.%s: %v", ErrDataRead, handle.Database, handle.Table, err)
	}

	loaded, err := toTable(handle.Schema, result)
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: %s.%s: %v", ErrDataRead, handle.Database, handle.Table, err)
	}
	logger.InfoContext(ctx, "dataset files read",
		slog.String("schema", handle.Schema.String()),
		slog.Int("files", result.ScannedFiles),
		slog.Int64("bytes", result.ScannedBytes),
		slog.Int("rows", loaded.Len()),
		slog.Duration("duration", result.Duration),
	)
	return loaded, nil
}

func queryFormat(format catalog.Format) (query.Format, error) {
	switch format {
	case catalog.FormatParquet:
		return query.FormatParquet, nil
	case catalog.FormatCSV:
		return query.FormatCSV, nil
	case catalog.FormatJSON:
		return query.FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported data format %q", format)
	}
}

// selectSQL projects the catalog columns in catalog order, cast to the
// engine type matching each canonical type.
func selectSQL(schema table.Schema) string {
	columns := make([]string, 0, len(schema))
	for _, column := range schema {
		ident := duckdb.QuoteIdent(column.Name)
		columns = append(columns, fmt.Sprintf("CAST(%s AS %s) AS %s", ident, engineType(column.Type), ident))
	}
	return "SELECT " + strings.Join(columns, ", ") + " FROM " + duckdb.QuoteIdent(viewName)
}

func engineType(typ table.ColumnType) string {
	switch typ {
	case table.TypeInt64:
		return "BIGINT"
	case table.TypeFloat64:
		return "DOUBLE"
	case table.TypeBool:
		return "BOOLEAN"
	case table.TypeTimestamp:
		return "TIMESTAMP"
	case table.TypeBinary:
		return "BLOB"
	default:
		return "VARCHAR"
	}
}

func toTable(schema table.Schema, result query.Result) (table.Table, error) {
	if len(result.Columns) != len(schema) {
		return table.Table{}, fmt.Errorf("engine returned %d columns, schema has %d", len(result.Columns), len(schema))
	}
	rows := make([]table.Row, 0, len(result.Rows))
	for i, values := range result.Rows {
		row := make(table.Row, len(schema))
		for j, column := range schema {
			value, err := coerce(column.Type, values[j])
			if err != nil {
				return table.Table{}, fmt.Errorf("row %d column %q: %w", i, column.Name, err)
			}
			row[j] = value
		}
		rows = append(rows, row)
	}
	return table.New(schema, rows...), nil
}

// coerce narrows a driver value onto the canonical Go type for typ.
func coerce(typ table.ColumnType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch typ {
	case table.TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case table.TypeInt64:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int:
			return int64(v), nil
		case *big.Int:
			if v.IsInt64() {
				return v.Int64(), nil
			}
			return nil, fmt.Errorf("value %s overflows int64", v)
		}
	case table.TypeFloat64:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
	case table.TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case table.TypeTimestamp:
		if v, ok := value.(time.Time); ok {
			return v.UTC(), nil
		}
	case table.TypeBinary:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", value, typ)
}
