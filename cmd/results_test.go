package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eegbench/eegbench/internal/benchmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []benchmark.Result {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []benchmark.Result{
		{
			RunID: "a", Dataset: "Zhou2016", Objective: "MotorImagery", Solver: "ShallowFBCSPNet",
			Variant: "ShallowFBCSPNet[augmentation=ChannelsDropout]",
			Params:  map[string]string{"augmentation": "ChannelsDropout"},
			Device:  "cpu", Workers: 1, TrainAccuracy: 0.9, TestAccuracy: 0.5, TrainLoss: 0.4,
			Epochs: 1, Runs: 1, RunDuration: 2 * time.Second, Timestamp: at,
		},
		{
			RunID: "b", Dataset: "Zhou2016", Objective: "MotorImagery", Solver: "ShallowFBCSPNet",
			Variant: "ShallowFBCSPNet[augmentation=IdentityTransform]",
			Params:  map[string]string{"augmentation": "IdentityTransform"},
			Device:  "cpu", Workers: 1, TrainAccuracy: 0.95, TestAccuracy: 0.75, TrainLoss: 0.3,
			Epochs: 1, Runs: 1, RunDuration: 3 * time.Second, Timestamp: at.Add(time.Minute),
		},
	}
}

func TestAnalyzer(t *testing.T) {
	t.Run("best and mean", func(t *testing.T) {
		r := analyze("run", sampleResults(), 5*time.Second)
		assert.Equal(t, "ShallowFBCSPNet[augmentation=IdentityTransform]", r.Best)
		assert.Equal(t, 0.75, r.BestTestAccuracy)
		assert.InDelta(t, 0.625, r.MeanTestAccuracy, 1e-12)
	})

	t.Run("no runs", func(t *testing.T) {
		r := analyze("run", nil, time.Second)
		assert.Equal(t, "", r.Best)
		assert.Equal(t, 0.0, r.BestTestAccuracy)
		assert.Equal(t, 0.0, r.MeanTestAccuracy)
	})
}

func TestResultsOutput(t *testing.T) {
	r := analyze("run-1", sampleResults(), 5*time.Second)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := r.WriteTextTo(&buf)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Results run-1")
		assert.Contains(t, buf.String(), "ShallowFBCSPNet[augmentation=ChannelsDropout]: train 0.9000 test 0.5000")
		assert.Contains(t, buf.String(), "Best: ShallowFBCSPNet[augmentation=IdentityTransform] (0.7500)")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := r.WriteJSONTo(&buf)
		require.NoError(t, err)

		var out resultsJSON
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		assert.Equal(t, 2, out.Metadata.Variants)
		assert.Equal(t, "run-1", out.Metadata.RunID)
		require.Len(t, out.Runs, 2)
		assert.Equal(t, "IdentityTransform", out.Runs[1].Augmentation)
		assert.Equal(t, 3.0, out.Runs[1].RunTime)
		assert.Equal(t, "b", out.Runs[1].VariantID)
	})

	t.Run("prometheus", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := Config{OutputFormat: "prometheus"}
		require.NoError(t, formatResults(&buf, &cfg, r))
		assert.Contains(t, buf.String(), "eegbench_test_accuracy{")
	})
}

func TestWriteResultsFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	r := analyze("run-2", sampleResults(), time.Second)

	path, err := writeResultsFile(dir, r, map[string]string{"team": "bci"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-2.json"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "bci", rows[0]["team"])
	assert.Equal(t, "run-2", rows[0]["run_id"])
	assert.Equal(t, 0.5, rows[0]["test_accuracy"])

	var runs []ResultsJSONRun
	require.NoError(t, json.Unmarshal(content, &runs))
	assert.Equal(t, "ShallowFBCSPNet[augmentation=IdentityTransform]", runs[1].Variant)
}
