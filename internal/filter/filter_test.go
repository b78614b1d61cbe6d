package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusexport/statusexport/internal/table"
)

func ordersTable(rows ...table.Row) table.Table {
	schema := table.Schema{
		{Name: "orderId", Type: table.TypeString},
		{Name: "status", Type: table.TypeString},
	}
	return table.New(schema, rows...)
}

func TestApplyMatchesCaseInsensitively(t *testing.T) {
	in := ordersTable(
		table.Row{"1", "Shipped"},
		table.Row{"2", "pending"},
		table.Row{"3", "SHIPPED"},
	)

	out, err := Apply(in, Predicate{Column: "status", MatchValue: "shipped"})
	require.NoError(t, err)

	assert.Equal(t, []table.Row{{"1", "Shipped"}, {"3", "SHIPPED"}}, out.Rows)
	assert.True(t, out.Schema.Equal(in.Schema))
}

func TestApplyMissingColumnYieldsEmptyTableWithSchema(t *testing.T) {
	schema := table.Schema{
		{Name: "orderId", Type: table.TypeString},
		{Name: "amount", Type: table.TypeInt64},
	}
	in := table.New(schema, table.Row{"1", int64(5)})

	out, err := Apply(in, Predicate{Column: "status", MatchValue: "shipped"})
	require.NoError(t, err)

	assert.Equal(t, 0, out.Len())
	assert.True(t, out.Schema.Equal(schema))
}

func TestApplyColumnNameIsExact(t *testing.T) {
	in := ordersTable(table.Row{"1", "shipped"})

	out, err := Apply(in, Predicate{Column: "Status", MatchValue: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestApplyNoMatches(t *testing.T) {
	in := ordersTable(table.Row{"1", "pending"}, table.Row{"2", "cancelled"})

	out, err := Apply(in, Predicate{Column: "status", MatchValue: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.NotNil(t, out.Rows)
}

func TestApplyPreservesOrderAndValues(t *testing.T) {
	in := ordersTable(
		table.Row{"a", "shipped"},
		table.Row{"b", "x"},
		table.Row{"c", "Shipped"},
		table.Row{"d", "sHiPpEd"},
	)

	out, err := Apply(in, Predicate{Column: "status", MatchValue: "SHIPPED"})
	require.NoError(t, err)

	ids := make([]string, 0, out.Len())
	for _, row := range out.Rows {
		ids = append(ids, row[0].(string))
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Equal(t, "sHiPpEd", out.Rows[2][1], "values are kept as loaded")
}

func TestApplyIsIdempotent(t *testing.T) {
	in := ordersTable(table.Row{"1", "Shipped"}, table.Row{"2", "pending"})
	p := Predicate{Column: "status", MatchValue: "shipped"}

	once, err := Apply(in, p)
	require.NoError(t, err)
	twice, err := Apply(once, p)
	require.NoError(t, err)
	assert.Equal(t, once.Rows, twice.Rows)
}

func TestApplyEveryKeptRowMatches(t *testing.T) {
	in := ordersTable(
		table.Row{"1", "Straße"},
		table.Row{"2", "STRASSE"},
		table.Row{"3", "straße"},
		table.Row{"4", "ΣΊΣΥΦΟΣ"},
	)
	out, err := Apply(in, Predicate{Column: "status", MatchValue: "STRAßE"})
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"1", "Straße"}, {"3", "straße"}}, out.Rows)
}

func TestApplyNullsNeverMatch(t *testing.T) {
	in := ordersTable(table.Row{"1", nil}, table.Row{"2", ""}, table.Row{"3", "shipped"})

	out, err := Apply(in, Predicate{Column: "status", MatchValue: ""})
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"2", ""}}, out.Rows)

	out, err = Apply(in, Predicate{Column: "status", MatchValue: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"3", "shipped"}}, out.Rows)
}

func TestApplyEmptyMatchValueHasNoWildcardMeaning(t *testing.T) {
	in := ordersTable(table.Row{"1", "shipped"}, table.Row{"2", "pending"})

	out, err := Apply(in, Predicate{Column: "status", MatchValue: ""})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestApplyCoercesNonStringColumns(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	schema := table.Schema{
		{Name: "code", Type: table.TypeInt64},
		{Name: "ratio", Type: table.TypeFloat64},
		{Name: "flag", Type: table.TypeBool},
		{Name: "at", Type: table.TypeTimestamp},
	}
	in := table.New(schema,
		table.Row{int64(200), 0.5, true, at},
		table.Row{int64(404), 1.25, false, at.Add(time.Hour)},
	)

	cases := []struct {
		predicate Predicate
		want      int
	}{
		{predicate: Predicate{Column: "code", MatchValue: "200"}, want: 1},
		{predicate: Predicate{Column: "ratio", MatchValue: "1.25"}, want: 1},
		{predicate: Predicate{Column: "flag", MatchValue: "TRUE"}, want: 1},
		{predicate: Predicate{Column: "at", MatchValue: "2024-05-06T07:08:09Z"}, want: 1},
		{predicate: Predicate{Column: "code", MatchValue: "200.0"}, want: 0},
	}
	for _, tc := range cases {
		out, err := Apply(in, tc.predicate)
		require.NoError(t, err)
		assert.Equal(t, tc.want, out.Len(), "predicate %+v", tc.predicate)
	}
}

func TestApplyEvaluationErrors(t *testing.T) {
	binary := table.New(table.Schema{{Name: "status", Type: table.TypeBinary}}, table.Row{[]byte("x")})
	_, err := Apply(binary, Predicate{Column: "status", MatchValue: "x"})
	assert.True(t, errors.Is(err, ErrEvaluation))

	mistyped := ordersTable(table.Row{"1", int64(3)})
	_, err = Apply(mistyped, Predicate{Column: "status", MatchValue: "3"})
	assert.True(t, errors.Is(err, ErrEvaluation))

	short := ordersTable(table.Row{"1"})
	_, err = Apply(short, Predicate{Column: "status", MatchValue: "x"})
	assert.True(t, errors.Is(err, ErrEvaluation))
}
