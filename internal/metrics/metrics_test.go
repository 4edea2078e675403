package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryRecords(t *testing.T) {
	r := NewRegistry()

	r.SetRecords("staging", "header", 42)
	r.SetRecords("staging", "header", 40)
	if got := promtestutil.ToFloat64(r.Records.WithLabelValues("staging", "header")); got != 40 {
		t.Errorf("Expected 40 staged headers, got %v", got)
	}

	r.AddRejection("header", "Invalid store_id")
	r.AddRejection("header", "Invalid store_id")
	r.AddRejection("line_item", "Missing product_id")
	if got := promtestutil.ToFloat64(r.Rejections.WithLabelValues("header", "Invalid store_id")); got != 2 {
		t.Errorf("Expected 2 store rejections, got %v", got)
	}
	if got := promtestutil.CollectAndCount(r.Rejections); got != 2 {
		t.Errorf("Expected 2 rejection series, got %d", got)
	}
}

func TestRegistryFinish(t *testing.T) {
	r := NewRegistry()
	at := time.Unix(1700000000, 0)

	r.Finish(true, at)
	if got := promtestutil.ToFloat64(r.RunSucceeded); got != 1 {
		t.Errorf("Expected run_succeeded 1, got %v", got)
	}
	if got := promtestutil.ToFloat64(r.LastRunTime); got != 1700000000 {
		t.Errorf("Expected last run time 1700000000, got %v", got)
	}

	r.Finish(false, at)
	if got := promtestutil.ToFloat64(r.RunSucceeded); got != 0 {
		t.Errorf("Expected run_succeeded 0, got %v", got)
	}
}

func TestObserveStage(t *testing.T) {
	r := NewRegistry()
	r.ObserveStage("route", 1500*time.Millisecond)

	if got := promtestutil.ToFloat64(r.StageSeconds.WithLabelValues("route")); got != 1.5 {
		t.Errorf("Expected 1.5 seconds, got %v", got)
	}
}

func TestWriteFile(t *testing.T) {
	r := NewRegistry()
	r.SetRecords("raw", "header", 10)
	r.SplitRecords.Add(3)

	path := filepath.Join(t.TempDir(), "salesingest.prom")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read metrics file: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		`salesingest_records{entity="header",layer="raw"} 10`,
		`salesingest_normalized_split_total 3`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected metrics file to contain %q, got:\n%s", want, text)
		}
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "missing", "salesingest.prom")
	if err := r.WriteFile(path); err == nil {
		t.Error("Expected error writing into a missing directory")
	}
}
