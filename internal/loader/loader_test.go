package loader

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusexport/statusexport/internal/catalog"
	"github.com/statusexport/statusexport/internal/query"
	"github.com/statusexport/statusexport/internal/query/duckdb"
	"github.com/statusexport/statusexport/internal/storage"
	"github.com/statusexport/statusexport/internal/storage/local"
	"github.com/statusexport/statusexport/internal/table"
)

type orderRecord struct {
	OrderID string `parquet:"orderId"`
	Status  string `parquet:"status"`
	Amount  int64  `parquet:"amount"`
}

func ordersHandle(location string, format catalog.Format) catalog.DatasetHandle {
	return catalog.DatasetHandle{
		Database: "ordersdb",
		Table:    "orders",
		Location: location,
		Format:   format,
		Schema: table.Schema{
			{Name: "orderId", Type: table.TypeString},
			{Name: "status", Type: table.TypeString},
			{Name: "amount", Type: table.TypeInt64},
		},
	}
}

func writeParquetFile(t *testing.T, path string, rows []orderRecord) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	file, err := os.Create(path)
	require.NoError(t, err)
	writer := parquet.NewGenericWriter[orderRecord](file)
	_, err = writer.Write(rows)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())
}

func TestLoadParquetFromLocalLocation(t *testing.T) {
	dir := t.TempDir()
	writeParquetFile(t, filepath.Join(dir, "part-0.parquet"), []orderRecord{
		{OrderID: "1", Status: "Shipped", Amount: 10},
		{OrderID: "2", Status: "pending", Amount: 20},
	})
	writeParquetFile(t, filepath.Join(dir, "year=2024", "part-1.parquet"), []orderRecord{
		{OrderID: "3", Status: "SHIPPED", Amount: 30},
	})
	// Markers and temp files are never read as data.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_SUCCESS"), []byte("ok"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".part-2.parquet.crc"), []byte("junk"), 0o644))

	l := New(local.Opener{}, duckdb.NewEngine(2), nil)
	loaded, err := l.Load(context.Background(), ordersHandle("file://"+dir, catalog.FormatParquet))
	require.NoError(t, err)

	require.Equal(t, 3, loaded.Len())
	require.NoError(t, loaded.Validate())
	assert.Equal(t, []string{"orderId", "status", "amount"}, loaded.Schema.Names())

	byID := map[string]table.Row{}
	for _, row := range loaded.Rows {
		byID[row[0].(string)] = row
	}
	assert.Equal(t, table.Row{"3", "SHIPPED", int64(30)}, byID["3"])
	assert.Equal(t, table.Row{"2", "pending", int64(20)}, byID["2"])
}

func TestLoadCSVCastsToCatalogTypes(t *testing.T) {
	dir := t.TempDir()
	csv := "orderId,status,amount,placedAt\n1,Shipped,10,2024-01-02 03:04:05\n2,,,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.csv"), []byte(csv), 0o644))

	handle := ordersHandle(dir, catalog.FormatCSV)
	handle.Schema = append(handle.Schema, table.Column{Name: "placedAt", Type: table.TypeTimestamp})

	loaded, err := New(local.Opener{}, duckdb.NewEngine(1), nil).Load(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	require.NoError(t, loaded.Validate())

	first := loaded.Rows[0]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, int64(10), first[2])
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), first[3])

	second := loaded.Rows[1]
	assert.Nil(t, second[2])
	assert.Nil(t, second[3])
}

func TestLoadEmptyLocationYieldsEmptyTable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_SUCCESS"), nil, 0o644))

	engine := &recordingEngine{}
	loaded, err := New(local.Opener{}, engine, nil).Load(context.Background(), ordersHandle(dir, catalog.FormatParquet))
	require.NoError(t, err)

	assert.Equal(t, 0, loaded.Len())
	assert.NotNil(t, loaded.Rows)
	assert.Len(t, loaded.Schema, 3)
	assert.Equal(t, 0, engine.calls, "engine is not invoked without data files")
}

func TestLoadMissingDirectoryYieldsEmptyTable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-written")
	loaded, err := New(local.Opener{}, &recordingEngine{}, nil).Load(context.Background(), ordersHandle(dir, catalog.FormatParquet))
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadWrapsFailuresAsDataRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.parquet"), []byte("not parquet at all"), 0o644))

	cases := []struct {
		name   string
		loader *Loader
		handle catalog.DatasetHandle
	}{
		{
			name:   "corrupt file",
			loader: New(local.Opener{}, duckdb.NewEngine(1), nil),
			handle: ordersHandle(dir, catalog.FormatParquet),
		},
		{
			name:   "bad location",
			loader: New(local.Opener{}, &recordingEngine{}, nil),
			handle: ordersHandle("ftp://nope/x", catalog.FormatParquet),
		},
		{
			name:   "unknown format",
			loader: New(local.Opener{}, &recordingEngine{}, nil),
			handle: ordersHandle(dir, catalog.Format("orc")),
		},
		{
			name: "open failure",
			loader: New(storage.OpenerFunc(func(context.Context, storage.Location) (storage.ObjectStore, error) {
				return nil, errors.New("no credentials")
			}), &recordingEngine{}, nil),
			handle: ordersHandle("s3://bucket/orders/", catalog.FormatParquet),
		},
		{
			name:   "engine failure",
			loader: New(local.Opener{}, &recordingEngine{err: errors.New("boom")}, nil),
			handle: ordersHandle(dir, catalog.FormatParquet),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.loader.Load(context.Background(), tc.handle)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataRead), "error = %v", err)
		})
	}
}

func TestLoadRejectsValuesOfTheWrongType(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.parquet"), []byte("x"), 0o644))

	engine := &recordingEngine{result: query.Result{
		Columns: []string{"orderId", "status", "amount"},
		Rows:    [][]any{{"1", "Shipped", "ten"}},
	}}
	_, err := New(local.Opener{}, engine, nil).Load(context.Background(), ordersHandle(dir, catalog.FormatParquet))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataRead))
	assert.Contains(t, err.Error(), `column "amount"`)
}

func TestSelectSQLKeepsCatalogOrder(t *testing.T) {
	sql := selectSQL(table.Schema{
		{Name: "status", Type: table.TypeString},
		{Name: "amount", Type: table.TypeFloat64},
		{Name: `we"ird`, Type: table.TypeBinary},
	})
	assert.Equal(t,
		`SELECT CAST("status" AS VARCHAR) AS "status", CAST("amount" AS DOUBLE) AS "amount", CAST("we""ird" AS BLOB) AS "we""ird" FROM "dataset"`,
		sql,
	)
}

func TestCoerce(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	cases := []struct {
		typ     table.ColumnType
		in      any
		want    any
		wantErr bool
	}{
		{typ: table.TypeString, in: []byte("x"), want: "x"},
		{typ: table.TypeInt64, in: int32(7), want: int64(7)},
		{typ: table.TypeInt64, in: big.NewInt(9), want: int64(9)},
		{typ: table.TypeInt64, in: huge, wantErr: true},
		{typ: table.TypeFloat64, in: float32(1.5), want: float64(1.5)},
		{typ: table.TypeBool, in: true, want: true},
		{typ: table.TypeBinary, in: "ab", want: []byte("ab")},
		{typ: table.TypeBool, in: "true", wantErr: true},
		{typ: table.TypeTimestamp, in: nil, want: nil},
	}
	for _, tc := range cases {
		got, err := coerce(tc.typ, tc.in)
		if tc.wantErr {
			assert.Error(t, err, "coerce(%s, %#v)", tc.typ, tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

type recordingEngine struct {
	calls  int
	result query.Result
	err    error
}

func (e *recordingEngine) Execute(context.Context, storage.ObjectStore, query.Request) (query.Result, error) {
	e.calls++
	return e.result, e.err
}
