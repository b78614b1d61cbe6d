package catalog

import (
	"testing"

	"github.com/statusexport/statusexport/internal/table"
)

func TestParseColumnType(t *testing.T) {
	cases := map[string]table.ColumnType{
		"string":        table.TypeString,
		"VARCHAR(20)":   table.TypeString,
		"bigint":        table.TypeInt64,
		"int":           table.TypeInt64,
		"decimal(10,2)": table.TypeFloat64,
		"double":        table.TypeFloat64,
		"boolean":       table.TypeBool,
		"timestamp":     table.TypeTimestamp,
		"date":          table.TypeTimestamp,
		"binary":        table.TypeBinary,
	}
	for raw, want := range cases {
		got, err := ParseColumnType(raw)
		if err != nil {
			t.Fatalf("ParseColumnType(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseColumnType(%q) = %q, want %q", raw, got, want)
		}
	}

	for _, raw := range []string{"", "struct<a:int>", "array<string>", "map<string,int>"} {
		if _, err := ParseColumnType(raw); err == nil {
			t.Fatalf("ParseColumnType(%q) expected error", raw)
		}
	}
}

func TestParseFormat(t *testing.T) {
	got, err := ParseFormat(" Parquet ")
	if err != nil || got != FormatParquet {
		t.Fatalf("ParseFormat() = %q, %v", got, err)
	}
	if _, err := ParseFormat("avro"); err == nil {
		t.Fatal("expected error for avro")
	}
}
