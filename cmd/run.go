package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/eegbench/eegbench/internal/benchmark"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func initRun() {
	rootCmd.AddCommand(runCmd)
	runCmd.PersistentFlags().StringVarP(&globalConfig.Dataset,
		"dataset", "d", "Zhou2016", "Dataset to run against")
	runCmd.PersistentFlags().StringVarP(&globalConfig.Solver,
		"solver", "s", "ShallowFBCSPNet", "Solver, or a single variant such as ShallowFBCSPNet[augmentation=SmoothTimeMask]")
	runCmd.PersistentFlags().StringVarP(&globalConfig.Labels,
		"labels", "l", "", "Labels of format key1=value1,key2=value2,...")
	runCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat,
		"format", "f", "text", "Output format, one of [text, json, prometheus]")
	runCmd.PersistentFlags().StringVarP(&globalConfig.OutputFile,
		"output", "o", "", "Filename for an output file. If none provided, output to stdout only")
	runCmd.PersistentFlags().StringVar(&globalConfig.ResultsDir,
		"results", "./results", "Directory receiving the <run_id>.json results file")
	runCmd.PersistentFlags().StringVar(&globalConfig.ModelDir,
		"models", "", "Directory receiving a snapshot of every trained model, empty to disable")
	runCmd.PersistentFlags().BoolVar(&globalConfig.MemoryMonitoringEnabled,
		"memoryMonitoring", false, "Sample heap usage while training")
	runCmd.PersistentFlags().IntVar(&globalConfig.MemoryMonitoringInterval,
		"memoryMonitoringInterval", 5, "Seconds between heap samples")
	runCmd.PersistentFlags().StringVar(&globalConfig.MemoryMonitoringFile,
		"memoryMonitoringFile", "", "Heap samples file name within the results directory")
	runCmd.PersistentFlags().BoolVar(&globalConfig.PrometheusConfig.Enabled,
		"prometheus", false, "Push results to a Prometheus pushgateway")
	runCmd.PersistentFlags().StringVar(&globalConfig.PrometheusConfig.PushURL,
		"prometheusUrl", "", "Pushgateway URL")
	runCmd.PersistentFlags().StringVar(&globalConfig.PrometheusConfig.JobName,
		"prometheusJob", "eegbench", "Pushgateway job name")
	runCmd.PersistentFlags().BoolVar(&globalConfig.InfluxDBConfig.Enabled,
		"influxdb", false, "Write results to InfluxDB")
	runCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.URL,
		"influxdbUrl", "", "InfluxDB URL")
	runCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Token,
		"influxdbToken", "", "InfluxDB token")
	runCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Org,
		"influxdbOrg", "", "InfluxDB organization")
	runCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Bucket,
		"influxdbBucket", "", "InfluxDB bucket")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train and score every variant of a solver",
	Long: `Train and score every variant of a solver on one dataset. The fitted
models are scored on the held-out session; results are printed, stored as
json and appended to the ledger`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "run"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}
		cfg.parseLabels()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := runBenchmark(ctx, &cfg, device.CPUIDProbe{})
		if err != nil {
			fatal(err)
		}

		if err := writeResults(&cfg, res); err != nil {
			fatal(err)
		}

		path, err := writeResultsFile(cfg.ResultsDir, res, cfg.LabelMap)
		if err != nil {
			fatal(err)
		}
		log.WithField("file", path).Info("Results written")

		if err := PushMetricsToPrometheus(&cfg, res.Runs); err != nil {
			log.WithError(err).Warn("Prometheus push failed")
		}
		if err := PushMetricsToInfluxDB(ctx, &cfg, res.Runs); err != nil {
			log.WithError(err).Warn("InfluxDB write failed")
		}
	},
}

func runBenchmark(ctx context.Context, cfg *Config, probe device.Probe) (Results, error) {
	reg, err := newRegistry(*cfg, probe)
	if err != nil {
		return Results{}, err
	}

	runner := benchmark.Runner{Registry: reg, ModelDir: cfg.ModelDir}

	if cfg.LedgerFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LedgerFile), 0o755); err != nil {
			return Results{}, errors.Wrap(err, "create ledger directory")
		}
		ledger, err := benchmark.OpenLedger(cfg.LedgerFile)
		if err != nil {
			return Results{}, err
		}
		defer ledger.Close()
		runner.Store = ledger
	}

	if cfg.ModelDir != "" {
		if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
			return Results{}, errors.Wrap(err, "create model directory")
		}
	}

	monitor := NewMemoryMonitor(cfg, newProcessGatherer())
	monitor.Start()

	started := time.Now()
	runs, err := runner.Run(ctx, cfg.Dataset, cfg.Solver)
	monitor.Stop()
	if err != nil {
		if len(runs) > 0 {
			log.WithField("completed", len(runs)).Warn("Run aborted after some variants")
		}
		return Results{}, err
	}

	res := analyze(uuid.New().String(), runs, time.Since(started))
	res.PeakHeapBytes = monitor.PeakHeapAlloc()
	return res, nil
}
