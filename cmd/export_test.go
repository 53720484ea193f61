package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, e *Exporter) string {
	srv := httptest.NewServer(exportMux(e))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func writeRuns(t *testing.T, dir, runID string, r Results) string {
	r.RunID = runID
	path, err := writeResultsFile(dir, r, nil)
	require.NoError(t, err)
	return path
}

func TestExporterProcessJSONFile(t *testing.T) {
	dir := t.TempDir()
	runs := sampleResults()
	older := writeRuns(t, dir, "old", analyze("old", runs, time.Second))

	runs[1].TestAccuracy = 0.875
	runs[1].Timestamp = runs[1].Timestamp.Add(time.Hour)
	newer := writeRuns(t, dir, "new", analyze("new", runs[1:], time.Second))

	e := NewExporter()
	require.NoError(t, e.processJSONFile(newer))
	require.NoError(t, e.processJSONFile(older))

	out := scrape(t, e)
	assert.Contains(t, out,
		`benchmark_test_accuracy{dataset="Zhou2016",device="cpu",solver="ShallowFBCSPNet",variant="ShallowFBCSPNet[augmentation=IdentityTransform]"} 0.875`)
	assert.Contains(t, out,
		`benchmark_test_accuracy{dataset="Zhou2016",device="cpu",solver="ShallowFBCSPNet",variant="ShallowFBCSPNet[augmentation=ChannelsDropout]"} 0.5`)

	e.removeFile(newer)
	assert.Contains(t, scrape(t, e),
		`variant="ShallowFBCSPNet[augmentation=IdentityTransform]"} 0.75`)
}

func TestExporterSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory_metrics_1.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"timestamp":"2026-01-01T00:00:00Z","heap_alloc_bytes":1}]`), 0o644))

	e := NewExporter()
	require.NoError(t, e.processJSONFile(path))
	assert.NotContains(t, scrape(t, e), "benchmark_test_accuracy{")

	bad := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))
	assert.Error(t, e.processJSONFile(bad))
}

func TestWatchDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRuns(t, dir, "first", analyze("first", sampleResults()[:1], time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewExporter()
	require.NoError(t, watchDirectory(ctx, dir, e))
	assert.Contains(t, scrape(t, e), "augmentation=ChannelsDropout")

	srv := httptest.NewServer(exportMux(e))
	defer srv.Close()

	writeRuns(t, dir, "second", analyze("second", sampleResults()[1:], time.Second))
	assert.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body), "augmentation=IdentityTransform")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestExportIndex(t *testing.T) {
	srv := httptest.NewServer(exportMux(NewExporter()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `<a href="/metrics">`)
}
