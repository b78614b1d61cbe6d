// Package table holds the canonical in-memory tabular representation shared by
// every pipeline stage: an ordered schema plus positional rows.
package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidRow = errors.New("table: invalid row")

type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt64     ColumnType = "int64"
	TypeFloat64   ColumnType = "float64"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
	TypeBinary    ColumnType = "binary"
)

func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInt64, TypeFloat64, TypeBool, TypeTimestamp, TypeBinary:
		return true
	default:
		return false
	}
}

type Column struct {
	Name string
	Type ColumnType
}

type Schema []Column

// Lookup returns the position of the named column. Names match exactly.
func (s Schema) Lookup(name string) (int, bool) {
	for i, column := range s {
		if column.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, column := range s {
		names = append(names, column.Name)
	}
	return names
}

func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, 0, len(s))
	for _, column := range s {
		parts = append(parts, column.Name+" "+string(column.Type))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Row is positional: value i belongs to Schema[i]. nil is null.
type Row []any

type Table struct {
	Schema Schema
	Rows   []Row
}

func New(schema Schema, rows ...Row) Table {
	if rows == nil {
		rows = []Row{}
	}
	return Table{Schema: schema, Rows: rows}
}

func (t Table) Len() int {
	return len(t.Rows)
}

// Empty returns a zero-row table sharing t's schema.
func (t Table) Empty() Table {
	return Table{Schema: t.Schema, Rows: []Row{}}
}

func (t Table) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Schema) {
			return fmt.Errorf("%w %d: has %d values, schema has %d columns", ErrInvalidRow, i, len(row), len(t.Schema))
		}
		for j, value := range row {
			if !Conforms(t.Schema[j].Type, value) {
				return fmt.Errorf("%w %d: column %q expects %s, got %T", ErrInvalidRow, i, t.Schema[j].Name, t.Schema[j].Type, value)
			}
		}
	}
	return nil
}

// Conforms reports whether value is a legal cell for a column of type typ.
func Conforms(typ ColumnType, value any) bool {
	if value == nil {
		return true
	}
	switch typ {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeInt64:
		_, ok := value.(int64)
		return ok
	case TypeFloat64:
		_, ok := value.(float64)
		return ok
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeTimestamp:
		_, ok := value.(time.Time)
		return ok
	case TypeBinary:
		_, ok := value.([]byte)
		return ok
	default:
		return false
	}
}

// Text renders a non-null scalar in its canonical text form: int64 in
// decimal, float64 in shortest 'g' form, bool as true/false and timestamps as
// RFC 3339 in UTC. Binary values and unknown types have no text form.
func Text(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}
