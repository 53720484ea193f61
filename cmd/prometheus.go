package cmd

import (
	"io"

	"github.com/eegbench/eegbench/internal/benchmark"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// PrometheusConfig holds configuration for Prometheus metrics reporting
type PrometheusConfig struct {
	Enabled bool
	PushURL string
	JobName string
}

var resultLabels = []string{"dataset", "solver", "variant", "device", "run_id"}

// ResultMetrics holds one gauge vector per reported quantity, labelled by
// variant.
type ResultMetrics struct {
	TrainAccuracy *prometheus.GaugeVec
	TestAccuracy  *prometheus.GaugeVec
	TrainLoss     *prometheus.GaugeVec
	SetupSeconds  *prometheus.GaugeVec
	RunSeconds    *prometheus.GaugeVec
	Epochs        *prometheus.GaugeVec
	Workers       *prometheus.GaugeVec
}

func NewResultMetrics(registry prometheus.Registerer, labels prometheus.Labels) *ResultMetrics {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "eegbench",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, resultLabels)
	}

	m := &ResultMetrics{
		TrainAccuracy: gauge("train_accuracy", "Accuracy on the training split"),
		TestAccuracy:  gauge("test_accuracy", "Accuracy on the held-out split"),
		TrainLoss:     gauge("train_loss", "Mean loss of the last training epoch"),
		SetupSeconds:  gauge("setup_seconds", "Time spent configuring the solver"),
		RunSeconds:    gauge("run_seconds", "Time spent training"),
		Epochs:        gauge("epochs", "Number of completed training epochs"),
		Workers:       gauge("workers", "Number of training goroutines"),
	}

	registry.MustRegister(
		m.TrainAccuracy,
		m.TestAccuracy,
		m.TrainLoss,
		m.SetupSeconds,
		m.RunSeconds,
		m.Epochs,
		m.Workers,
	)
	return m
}

func (m *ResultMetrics) Observe(r benchmark.Result) {
	l := prometheus.Labels{
		"dataset": r.Dataset,
		"solver":  r.Solver,
		"variant": r.Variant,
		"device":  r.Device,
		"run_id":  r.RunID,
	}
	m.TrainAccuracy.With(l).Set(r.TrainAccuracy)
	m.TestAccuracy.With(l).Set(r.TestAccuracy)
	m.TrainLoss.With(l).Set(r.TrainLoss)
	m.SetupSeconds.With(l).Set(r.SetupDuration.Seconds())
	m.RunSeconds.With(l).Set(r.RunDuration.Seconds())
	m.Epochs.With(l).Set(float64(r.Epochs))
	m.Workers.With(l).Set(float64(r.Workers))
}

func resultRegistry(cfg *Config, results []benchmark.Result) *prometheus.Registry {
	constLabels := prometheus.Labels{}
	for k, v := range cfg.LabelMap {
		if !slices.Contains(resultLabels, k) {
			constLabels[k] = v
		}
	}

	registry := prometheus.NewRegistry()
	m := NewResultMetrics(registry, constLabels)
	for _, r := range results {
		m.Observe(r)
	}
	return registry
}

// PushMetricsToPrometheus pushes the results to a Prometheus pushgateway
func PushMetricsToPrometheus(cfg *Config, results []benchmark.Result) error {
	if !cfg.PrometheusConfig.Enabled || cfg.PrometheusConfig.PushURL == "" {
		return nil
	}

	pusher := push.New(cfg.PrometheusConfig.PushURL, cfg.PrometheusConfig.JobName).
		Gatherer(resultRegistry(cfg, results))

	if err := pusher.Push(); err != nil {
		log.WithError(err).Error("Failed to push metrics to Prometheus")
		return err
	}

	log.WithFields(log.Fields{
		"url":     cfg.PrometheusConfig.PushURL,
		"job":     cfg.PrometheusConfig.JobName,
		"results": len(results),
	}).Info("Successfully pushed metrics to Prometheus")

	return nil
}

// writePrometheusText renders the results in the text exposition format.
func writePrometheusText(w io.Writer, cfg *Config, results []benchmark.Result) error {
	families, err := resultRegistry(cfg, results).Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
