package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const exportNamespace = "benchmark"

var exportLabels = []string{"dataset", "solver", "variant", "device"}

func initExport() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.PersistentFlags().StringVar(&globalConfig.ExportDir,
		"dir", "./results", "Directory of results files to export")
	exportCmd.PersistentFlags().IntVarP(&globalConfig.ExportPort,
		"port", "p", 2120, "Port to serve /metrics on")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Serve results files as Prometheus metrics",
	Long: `Watch a directory of results files and serve the latest score of every
variant on /metrics`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "export"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := serveExport(ctx, cfg.ExportDir, cfg.ExportPort); err != nil {
			fatal(err)
		}
	},
}

// Exporter keeps one gauge per variant and quantity over all results files
// of a directory. A later run of the same variant overwrites the earlier.
type Exporter struct {
	registry *prometheus.Registry
	metrics  map[string]*prometheus.GaugeVec

	mu    sync.Mutex
	files map[string][]ResultsJSONRun
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		metrics:  make(map[string]*prometheus.GaugeVec),
		files:    make(map[string][]ResultsJSONRun),
	}

	metricNames := []struct {
		name string
		help string
	}{
		{"train_accuracy", "Accuracy on the training split"},
		{"test_accuracy", "Accuracy on the held-out split"},
		{"train_loss", "Mean loss of the last training epoch"},
		{"run_seconds", "Training time in seconds"},
	}

	factory := promauto.With(e.registry)
	for _, metric := range metricNames {
		e.metrics[metric.name] = factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: exportNamespace,
				Name:      metric.name,
				Help:      metric.help,
			},
			exportLabels,
		)
	}
	return e
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) processJSONFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	var runs []ResultsJSONRun
	if err := json.Unmarshal(content, &runs); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	e.mu.Lock()
	e.files[path] = runs
	e.refresh()
	e.mu.Unlock()

	log.WithFields(log.Fields{"file": path, "runs": len(runs)}).Debug("Processed results file")
	return nil
}

func (e *Exporter) removeFile(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.files[path]; ok {
		delete(e.files, path)
		e.refresh()
	}
}

// refresh rebuilds every gauge from the known files. Callers hold mu.
func (e *Exporter) refresh() {
	type entry struct {
		run ResultsJSONRun
		at  time.Time
	}
	latest := map[string]entry{}
	for _, runs := range e.files {
		for _, r := range runs {
			if r.Variant == "" {
				continue
			}
			at, _ := time.Parse(time.RFC3339, r.Timestamp)
			key := r.Dataset + "\x00" + r.Variant + "\x00" + r.Device
			if prev, ok := latest[key]; ok && prev.at.After(at) {
				continue
			}
			latest[key] = entry{run: r, at: at}
		}
	}

	for _, metric := range e.metrics {
		metric.Reset()
	}

	for _, en := range latest {
		r := en.run
		labels := prometheus.Labels{
			"dataset": r.Dataset,
			"solver":  r.Solver,
			"variant": r.Variant,
			"device":  r.Device,
		}
		e.metrics["train_accuracy"].With(labels).Set(r.TrainAccuracy)
		e.metrics["test_accuracy"].With(labels).Set(r.TestAccuracy)
		e.metrics["train_loss"].With(labels).Set(r.TrainLoss)
		e.metrics["run_seconds"].With(labels).Set(r.RunTime)
	}
}

// watchDirectory processes the results files already in dirPath and then
// follows changes until ctx is done.
func watchDirectory(ctx context.Context, dirPath string, exporter *Exporter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}

	files, err := os.ReadDir(dirPath)
	if err != nil {
		watcher.Close()
		return errors.Wrap(err, "read directory")
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) == ".json" {
			fullPath := filepath.Join(dirPath, file.Name())
			if err := exporter.processJSONFile(fullPath); err != nil {
				log.WithError(err).Warn("Skipping results file")
			}
		}
	}

	if err := watcher.Add(dirPath); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watch directory")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(event.Name) != ".json" {
					continue
				}
				switch {
				case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
					if err := exporter.processJSONFile(event.Name); err != nil {
						log.WithError(err).Warn("Skipping results file")
					}
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					exporter.removeFile(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Error watching directory")
			}
		}
	}()

	return nil
}

const exportIndex = `<html>
	<head><title>EEG Benchmark Exporter</title></head>
	<body>
		<h1>EEG Benchmark Exporter</h1>
		<p><a href="/metrics">Metrics</a></p>
	</body>
	</html>`

func exportMux(exporter *Exporter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exportIndex))
	})
	return mux
}

func serveExport(ctx context.Context, dir string, port int) error {
	exporter := NewExporter()
	if err := watchDirectory(ctx, dir, exporter); err != nil {
		return err
	}

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: exportMux(exporter)}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.WithFields(log.Fields{"addr": srv.Addr, "dir": dir}).Info("Starting exporter")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
