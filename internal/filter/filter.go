// Package filter keeps the rows of a table whose status column equals a
// match value, ignoring case.
package filter

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/statusexport/statusexport/internal/table"
)

var ErrEvaluation = errors.New("filter: evaluation failed")

type Predicate struct {
	Column     string
	MatchValue string
}

// Apply returns the rows of t whose Column value equals MatchValue under
// Unicode case folding. The result always carries t's schema. When Column is
// not in the schema the result is empty and no error is returned. Nulls
// never match.
func Apply(t table.Table, p Predicate) (table.Table, error) {
	idx, ok := t.Schema.Lookup(p.Column)
	if !ok {
		return t.Empty(), nil
	}
	column := t.Schema[idx]
	if column.Type == table.TypeBinary {
		return table.Table{}, fmt.Errorf("%w: column %q is binary", ErrEvaluation, column.Name)
	}

	lower := cases.Lower(language.Und)
	want := lower.String(p.MatchValue)

	kept := make([]table.Row, 0)
	for i, row := range t.Rows {
		if idx >= len(row) {
			return table.Table{}, fmt.Errorf("%w: row %d has %d values", ErrEvaluation, i, len(row))
		}
		if row[idx] == nil {
			continue
		}
		text, err := asText(column.Type, row[idx])
		if err != nil {
			return table.Table{}, fmt.Errorf("%w: row %d column %q: %v", ErrEvaluation, i, column.Name, err)
		}
		if lower.String(text) == want {
			kept = append(kept, row)
		}
	}
	return table.New(t.Schema, kept...), nil
}

// asText renders a non-null value the way it is compared.
func asText(typ table.ColumnType, value any) (string, error) {
	if !table.Conforms(typ, value) {
		return "", fmt.Errorf("%T is not a %s value", value, typ)
	}
	text, ok := table.Text(value)
	if !ok {
		return "", fmt.Errorf("%T cannot be compared as text", value)
	}
	return text, nil
}
