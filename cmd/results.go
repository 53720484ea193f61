package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eegbench/eegbench/internal/benchmark"
	"github.com/pkg/errors"
)

// ResultsJSONRun is one line of a results file, the format read back by the
// exporter.
type ResultsJSONRun struct {
	RunID         string  `json:"run_id"`
	VariantID     string  `json:"variant_id"`
	Dataset       string  `json:"dataset"`
	Solver        string  `json:"solver"`
	Variant       string  `json:"variant"`
	Augmentation  string  `json:"augmentation"`
	Device        string  `json:"device"`
	Workers       int     `json:"workers"`
	TrainAccuracy float64 `json:"train_accuracy"`
	TestAccuracy  float64 `json:"test_accuracy"`
	TrainLoss     float64 `json:"train_loss"`
	Epochs        int     `json:"epochs"`
	SetupTime     float64 `json:"setup_time"`
	RunTime       float64 `json:"run_time"`
	Timestamp     string  `json:"timestamp"`
}

type Results struct {
	RunID            string
	Runs             []benchmark.Result
	Took             time.Duration
	Best             string
	BestTestAccuracy float64
	MeanTestAccuracy float64
	PeakHeapBytes    float64
}

func analyze(runID string, runs []benchmark.Result, took time.Duration) Results {
	out := Results{RunID: runID, Runs: runs, Took: took, BestTestAccuracy: -1}

	var sum float64
	for _, r := range runs {
		sum += r.TestAccuracy
		if r.TestAccuracy > out.BestTestAccuracy {
			out.BestTestAccuracy = r.TestAccuracy
			out.Best = r.Variant
		}
	}
	if len(runs) > 0 {
		out.MeanTestAccuracy = sum / float64(len(runs))
	} else {
		out.BestTestAccuracy = 0
	}
	return out
}

func (r Results) WriteTextTo(w io.Writer) (int64, error) {
	b := strings.Builder{}

	for _, run := range r.Runs {
		b.WriteString(fmt.Sprintf("%s: train %.4f test %.4f loss %.4f took %s\n",
			run.Variant, run.TrainAccuracy, run.TestAccuracy, run.TrainLoss, run.RunDuration))
	}

	n, err := w.Write([]byte(fmt.Sprintf(
		"Results %s\n%sVariants: %d\nBest: %s (%.4f)\nMean test accuracy: %.4f\nTook: %s\n",
		r.RunID, b.String(), len(r.Runs), r.Best, r.BestTestAccuracy, r.MeanTestAccuracy, r.Took)))
	return int64(n), err
}

type resultsJSON struct {
	Metadata resultsJSONMetadata `json:"metadata"`
	Runs     []ResultsJSONRun    `json:"runs"`
}

type resultsJSONMetadata struct {
	RunID            string  `json:"runId"`
	Variants         int     `json:"variants"`
	Best             string  `json:"best"`
	BestTestAccuracy float64 `json:"bestTestAccuracy"`
	MeanTestAccuracy float64 `json:"meanTestAccuracy"`
	PeakHeapBytes    float64 `json:"peakHeapBytes"`
	Took             int64   `json:"took"`
	TookFormatted    string  `json:"tookFormatted"`
}

func (r Results) jsonRuns() []ResultsJSONRun {
	out := make([]ResultsJSONRun, len(r.Runs))
	for i, run := range r.Runs {
		out[i] = ResultsJSONRun{
			RunID:         r.RunID,
			VariantID:     run.RunID,
			Dataset:       run.Dataset,
			Solver:        run.Solver,
			Variant:       run.Variant,
			Augmentation:  run.Params["augmentation"],
			Device:        run.Device,
			Workers:       run.Workers,
			TrainAccuracy: run.TrainAccuracy,
			TestAccuracy:  run.TestAccuracy,
			TrainLoss:     run.TrainLoss,
			Epochs:        run.Epochs,
			SetupTime:     run.SetupDuration.Seconds(),
			RunTime:       run.RunDuration.Seconds(),
			Timestamp:     run.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func (r Results) WriteJSONTo(w io.Writer) (int, error) {
	obj := resultsJSON{
		Metadata: resultsJSONMetadata{
			RunID:            r.RunID,
			Variants:         len(r.Runs),
			Best:             r.Best,
			BestTestAccuracy: r.BestTestAccuracy,
			MeanTestAccuracy: r.MeanTestAccuracy,
			PeakHeapBytes:    r.PeakHeapBytes,
			Took:             int64(r.Took),
			TookFormatted:    fmt.Sprint(r.Took),
		},
		Runs: r.jsonRuns(),
	}

	bytes, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return 0, err
	}

	return w.Write(bytes)
}

// writeResultsFile stores the runs with the custom labels merged in as
// dir/<runID>.json.
func writeResultsFile(dir string, r Results, labels map[string]string) (string, error) {
	var rows []map[string]interface{}
	for _, run := range r.jsonRuns() {
		jsonData, err := json.Marshal(run)
		if err != nil {
			return "", errors.Wrap(err, "convert result to json")
		}
		var row map[string]interface{}
		if err := json.Unmarshal(jsonData, &row); err != nil {
			return "", errors.Wrap(err, "convert json to map")
		}
		for key, value := range labels {
			row[key] = value
		}
		rows = append(rows, row)
	}

	data, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, "marshal results")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create results directory %s", dir)
	}
	path := filepath.Join(dir, r.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
