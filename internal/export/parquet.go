package export

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/parquet-go/parquet-go"

	"github.com/statusexport/statusexport/internal/table"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
}

// rowModel is a Go struct type generated for one schema. Struct field order
// is the column order of the written file, and every field is a pointer so
// each column is optional.
type rowModel struct {
	schema     table.Schema
	structType reflect.Type
}

var (
	stringType = reflect.TypeOf("")
	int64Type  = reflect.TypeOf(int64(0))
	floatType  = reflect.TypeOf(float64(0))
	boolType   = reflect.TypeOf(false)
	timeType   = reflect.TypeOf(time.Time{})
	bytesType  = reflect.TypeOf([]byte(nil))
)

func newRowModel(schema table.Schema) (*rowModel, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: schema has no columns", ErrSchemaMismatch)
	}
	seen := make(map[string]struct{}, len(schema))
	fields := make([]reflect.StructField, 0, len(schema))
	for i, column := range schema {
		if err := validateColumnName(column.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[column.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, column.Name)
		}
		seen[column.Name] = struct{}{}

		goType, err := goTypeOf(column.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, reflect.StructField{
			Name: "F" + strconv.Itoa(i),
			Type: reflect.PointerTo(goType),
			Tag:  reflect.StructTag(`parquet:` + strconv.Quote(column.Name)),
		})
	}
	return &rowModel{schema: schema, structType: reflect.StructOf(fields)}, nil
}

func goTypeOf(typ table.ColumnType) (reflect.Type, error) {
	switch typ {
	case table.TypeString:
		return stringType, nil
	case table.TypeInt64:
		return int64Type, nil
	case table.TypeFloat64:
		return floatType, nil
	case table.TypeBool:
		return boolType, nil
	case table.TypeTimestamp:
		return timeType, nil
	case table.TypeBinary:
		return bytesType, nil
	default:
		return nil, fmt.Errorf("%w: unsupported column type %q", ErrSchemaMismatch, typ)
	}
}

func validateColumnName(name string) error {
	if strings.TrimSpace(name) == "" || name == "-" {
		return fmt.Errorf("%w: column name %q is not usable", ErrSchemaMismatch, name)
	}
	if strings.ContainsAny(name, `,;"`) || strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: column name %q cannot be encoded", ErrSchemaMismatch, name)
	}
	return nil
}

func (m *rowModel) parquetSchema() *parquet.Schema {
	return parquet.SchemaOf(reflect.New(m.structType).Interface())
}

// value builds one struct value for row; nil cells stay nil pointers.
func (m *rowModel) value(row table.Row) (any, error) {
	if len(row) != len(m.schema) {
		return nil, fmt.Errorf("%w: row has %d values, schema has %d columns", ErrSchemaMismatch, len(row), len(m.schema))
	}
	record := reflect.New(m.structType)
	elem := record.Elem()
	for i, cell := range row {
		if cell == nil {
			continue
		}
		column := m.schema[i]
		if !table.Conforms(column.Type, cell) {
			return nil, fmt.Errorf("%w: column %q expects %s, got %T", ErrSchemaMismatch, column.Name, column.Type, cell)
		}
		if ts, ok := cell.(time.Time); ok {
			cell = ts.UTC()
		}
		ptr := reflect.New(elem.Field(i).Type().Elem())
		ptr.Elem().Set(reflect.ValueOf(cell))
		elem.Field(i).Set(ptr)
	}
	return record.Interface(), nil
}

// EncodeParquet writes rows as one snappy-compressed Parquet file. Zero rows
// still produce a readable file carrying the schema.
func EncodeParquet(schema table.Schema, rows []table.Row) (EncodeResult, error) {
	model, err := newRowModel(schema)
	if err != nil {
		return EncodeResult{}, err
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, model.parquetSchema(), parquet.Compression(&parquet.Snappy))
	for _, row := range rows {
		record, err := model.value(row)
		if err != nil {
			return EncodeResult{}, err
		}
		if err := writer.Write(record); err != nil {
			return EncodeResult{}, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
	}, nil
}
