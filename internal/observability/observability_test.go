package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/statusexport/statusexport/internal/config"
)

func TestNewLoggerAddsServiceAndRunAttributes(t *testing.T) {
	cfg, err := config.Load("statusexport", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	buf := &bytes.Buffer{}
	logger := ForRun(NewLogger(cfg, buf), "orders-job", "run-1")
	logger.Info("rows_loaded")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["service"] != "statusexport" {
		t.Fatalf("service = %v", line["service"])
	}
	if line["job_name"] != "orders-job" || line["run_id"] != "run-1" {
		t.Fatalf("run attributes = %v/%v", line["job_name"], line["run_id"])
	}
}

func TestMetricsRecordValues(t *testing.T) {
	m := NewMetrics()
	m.SetRows("loaded", 3)
	m.SetRows("matched", -1)
	m.RecordFailure("export", "export_write")
	m.RecordRun("failed")
	m.ObserveStage("load", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.rows.WithLabelValues("loaded")); got != 3 {
		t.Fatalf("rows{loaded} = %v", got)
	}
	if got := testutil.ToFloat64(m.rows.WithLabelValues("matched")); got != 0 {
		t.Fatalf("rows{matched} = %v, want clamp to 0", got)
	}
	if got := testutil.ToFloat64(m.failuresTotal.WithLabelValues("export", "export_write")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("runs{failed} = %v", got)
	}
}

func TestFlushWritesTextfileAndPushes(t *testing.T) {
	var pushed atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/metrics/job/orders-job") {
			pushed.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewMetrics()
	m.RecordRun("succeeded")
	textfile := filepath.Join(t.TempDir(), "statusexport.prom")

	err := m.Flush(context.Background(), FlushOptions{
		Textfile:       textfile,
		PushgatewayURL: server.URL,
		JobName:        "orders-job",
	})
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	body, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(body), `statusexport_runs_total{status="succeeded"} 1`) {
		t.Fatalf("textfile missing run counter:\n%s", body)
	}
	if pushed.Load() != 1 {
		t.Fatalf("push requests = %d", pushed.Load())
	}
}

func TestFlushWithoutSinksIsNoop(t *testing.T) {
	if err := NewMetrics().Flush(context.Background(), FlushOptions{}); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}
