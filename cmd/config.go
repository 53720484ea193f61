package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/eegbench/eegbench/internal/device"
	"github.com/pkg/errors"
)

type Config struct {
	Mode string

	Dataset  string
	Solver   string
	CacheDir string

	Mirror        string
	MirrorRetries int
	MirrorWait    time.Duration

	Device     string
	DeviceKind device.Kind

	OutputFormat string
	OutputFile   string
	ResultsDir   string
	LedgerFile   string
	ModelDir     string
	Limit        int

	Labels   string
	LabelMap map[string]string

	MemoryMonitoringEnabled  bool
	MemoryMonitoringInterval int
	MemoryMonitoringFile     string

	PrometheusConfig PrometheusConfig
	InfluxDBConfig   InfluxDBConfig

	ExportDir  string
	ExportPort int
}

func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	// validate specific
	switch c.Mode {
	case "run":
		return c.validateRun()
	case "fetch":
		return c.validateFetch()
	case "list":
		return nil
	case "export":
		return c.validateExport()
	default:
		return errors.Errorf("unrecognized mode %q", c.Mode)
	}
}

func (c *Config) validateCommon() error {
	if v, ok := os.LookupEnv("EEGBENCH_DEVICE"); ok {
		c.Device = v
	}
	if v, ok := os.LookupEnv("EEGBENCH_MIRROR"); ok {
		c.Mirror = v
	}

	kind, err := device.ParseKind(c.Device)
	if err != nil {
		return err
	}
	c.DeviceKind = kind

	switch c.OutputFormat {
	case "text", "":
		c.OutputFormat = "text"
	case "json", "prometheus":
	default:
		return errors.Errorf("unsupported output format %q, must be one of [text, json, prometheus]",
			c.OutputFormat)
	}

	if c.CacheDir == "" {
		return errors.Errorf("cache directory must be set")
	}
	if c.MirrorRetries < 0 {
		return errors.Errorf("mirror retries must not be negative")
	}

	return nil
}

func (c Config) validateRun() error {
	if c.Dataset == "" {
		return errors.Errorf("a dataset must be provided")
	}
	if c.Solver == "" {
		return errors.Errorf("a solver must be provided")
	}
	if c.PrometheusConfig.Enabled && c.PrometheusConfig.PushURL == "" {
		return errors.Errorf("prometheus push url must be set when prometheus is enabled")
	}
	if c.InfluxDBConfig.Enabled && (c.InfluxDBConfig.URL == "" || c.InfluxDBConfig.Bucket == "") {
		return errors.Errorf("influxdb url and bucket must be set when influxdb is enabled")
	}
	return nil
}

func (c Config) validateFetch() error {
	if c.Mirror == "" {
		return errors.Errorf("a mirror url must be provided (--mirror or EEGBENCH_MIRROR)")
	}
	return nil
}

func (c Config) validateExport() error {
	if c.ExportDir == "" {
		return errors.Errorf("directory path is required")
	}
	if c.ExportPort <= 0 || c.ExportPort > 65535 {
		return errors.Errorf("invalid port %d", c.ExportPort)
	}
	return nil
}

func (c *Config) parseLabels() {
	result := make(map[string]string)
	pairs := strings.Split(c.Labels, ",")

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2) // SplitN to make sure we only split on the first "="
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}

	c.LabelMap = result
}
