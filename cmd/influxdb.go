package cmd

import (
	"context"

	"github.com/eegbench/eegbench/internal/benchmark"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"
)

// InfluxDBConfig holds configuration for InfluxDB metrics reporting
type InfluxDBConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

func resultPoint(r benchmark.Result, labels map[string]string) *write.Point {
	p := influxdb2.NewPointWithMeasurement("eegbench_run").
		AddTag("dataset", r.Dataset).
		AddTag("solver", r.Solver).
		AddTag("variant", r.Variant).
		AddTag("device", r.Device).
		AddTag("run_id", r.RunID).
		AddField("train_accuracy", r.TrainAccuracy).
		AddField("test_accuracy", r.TestAccuracy).
		AddField("train_loss", r.TrainLoss).
		AddField("n_train", r.NTrain).
		AddField("n_test", r.NTest).
		AddField("epochs", r.Epochs).
		AddField("workers", r.Workers).
		AddField("setup_seconds", r.SetupDuration.Seconds()).
		AddField("run_seconds", r.RunDuration.Seconds()).
		SetTime(r.Timestamp)
	for k, v := range labels {
		p.AddTag(k, v)
	}
	return p
}

// PushMetricsToInfluxDB writes one point per result to an InfluxDB bucket
func PushMetricsToInfluxDB(ctx context.Context, cfg *Config, results []benchmark.Result) error {
	if !cfg.InfluxDBConfig.Enabled || cfg.InfluxDBConfig.URL == "" {
		return nil
	}

	client := influxdb2.NewClient(cfg.InfluxDBConfig.URL, cfg.InfluxDBConfig.Token)
	defer client.Close()

	writeAPI := client.WriteAPIBlocking(cfg.InfluxDBConfig.Org, cfg.InfluxDBConfig.Bucket)

	points := make([]*write.Point, len(results))
	for i, r := range results {
		points[i] = resultPoint(r, cfg.LabelMap)
	}

	if err := writeAPI.WritePoint(ctx, points...); err != nil {
		log.WithError(err).Error("Failed to push metrics to InfluxDB")
		return err
	}

	log.WithFields(log.Fields{
		"url":     cfg.InfluxDBConfig.URL,
		"bucket":  cfg.InfluxDBConfig.Bucket,
		"results": len(results),
	}).Info("Successfully pushed metrics to InfluxDB")

	return nil
}
