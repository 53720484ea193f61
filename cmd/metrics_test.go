package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusText(t *testing.T) {
	cfg := Config{LabelMap: map[string]string{"team": "bci", "dataset": "shadowed"}}

	var buf bytes.Buffer
	require.NoError(t, writePrometheusText(&buf, &cfg, sampleResults()))

	out := buf.String()
	assert.Contains(t, out, "# TYPE eegbench_test_accuracy gauge")
	assert.Contains(t, out, `variant="ShallowFBCSPNet[augmentation=IdentityTransform]"`)
	assert.Contains(t, out, `team="bci"`)
	assert.Contains(t, out, `dataset="Zhou2016"`)
	assert.NotContains(t, out, "shadowed")
	assert.Contains(t, out, "eegbench_run_seconds")
}

func TestPushMetricsToPrometheus(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		require.NoError(t, PushMetricsToPrometheus(&Config{}, sampleResults()))
	})

	t.Run("push", func(t *testing.T) {
		var method, path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method, path = r.Method, r.URL.Path
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		cfg := Config{PrometheusConfig: PrometheusConfig{Enabled: true, PushURL: srv.URL, JobName: "eegbench"}}
		require.NoError(t, PushMetricsToPrometheus(&cfg, sampleResults()))
		assert.Equal(t, http.MethodPut, method)
		assert.Equal(t, "/metrics/job/eegbench", path)
	})

	t.Run("gateway error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cfg := Config{PrometheusConfig: PrometheusConfig{Enabled: true, PushURL: srv.URL, JobName: "eegbench"}}
		assert.Error(t, PushMetricsToPrometheus(&cfg, sampleResults()))
	})
}

func TestPushMetricsToInfluxDB(t *testing.T) {
	var body string
	var bucket string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		bucket = r.URL.Query().Get("bucket")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := Config{
		InfluxDBConfig: InfluxDBConfig{Enabled: true, URL: srv.URL, Token: "t", Org: "o", Bucket: "runs"},
		LabelMap:       map[string]string{"team": "bci"},
	}
	require.NoError(t, PushMetricsToInfluxDB(context.Background(), &cfg, sampleResults()))

	assert.Equal(t, "runs", bucket)
	assert.Contains(t, body, "eegbench_run,")
	assert.Contains(t, body, "team=bci")
	assert.Contains(t, body, "test_accuracy=0.75")
}

func TestReadMemoryMetrics(t *testing.T) {
	m, err := readMemoryMetrics(newProcessGatherer())
	require.NoError(t, err)
	assert.Greater(t, m.HeapAllocBytes, 0.0)
	assert.Greater(t, m.HeapSysBytes, 0.0)
}

func TestMemoryMonitor(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := Config{ResultsDir: t.TempDir()}
		m := NewMemoryMonitor(&cfg, newProcessGatherer())
		m.Start()
		m.Stop()
		assert.Empty(t, m.GetMetrics())
	})

	t.Run("enabled", func(t *testing.T) {
		dir := t.TempDir()
		cfg := Config{
			ResultsDir:               dir,
			MemoryMonitoringEnabled:  true,
			MemoryMonitoringInterval: 1,
			MemoryMonitoringFile:     "memory.json",
		}
		m := NewMemoryMonitor(&cfg, newProcessGatherer())
		m.Start()
		time.Sleep(50 * time.Millisecond)
		m.Stop()

		entries := m.GetMetrics()
		require.GreaterOrEqual(t, len(entries), 2)
		assert.Greater(t, m.PeakHeapAlloc(), 0.0)

		content, err := os.ReadFile(filepath.Join(dir, "memory.json"))
		require.NoError(t, err)
		var stored []MemoryMetricEntry
		require.NoError(t, json.Unmarshal(content, &stored))
		assert.Len(t, stored, len(entries))
	})
}
