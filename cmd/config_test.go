package cmd

import (
	"testing"

	"github.com/eegbench/eegbench/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRunConfig() Config {
	return Config{
		Mode:     "run",
		Dataset:  "Zhou2016",
		Solver:   "ShallowFBCSPNet",
		CacheDir: "./data",
		Device:   "auto",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("run defaults", func(t *testing.T) {
		c := validRunConfig()
		require.NoError(t, c.Validate())
		assert.Equal(t, "text", c.OutputFormat)
		assert.Equal(t, device.Kind(""), c.DeviceKind)
	})

	t.Run("device override from env", func(t *testing.T) {
		t.Setenv("EEGBENCH_DEVICE", "cpu")
		c := validRunConfig()
		require.NoError(t, c.Validate())
		assert.Equal(t, device.CPU, c.DeviceKind)
	})

	t.Run("invalid device", func(t *testing.T) {
		c := validRunConfig()
		c.Device = "tpu"
		assert.Error(t, c.Validate())
	})

	t.Run("invalid format", func(t *testing.T) {
		c := validRunConfig()
		c.OutputFormat = "yaml"
		assert.Error(t, c.Validate())
	})

	t.Run("missing dataset", func(t *testing.T) {
		c := validRunConfig()
		c.Dataset = ""
		assert.Error(t, c.Validate())
	})

	t.Run("prometheus without url", func(t *testing.T) {
		c := validRunConfig()
		c.PrometheusConfig.Enabled = true
		assert.Error(t, c.Validate())
	})

	t.Run("influxdb without bucket", func(t *testing.T) {
		c := validRunConfig()
		c.InfluxDBConfig = InfluxDBConfig{Enabled: true, URL: "http://localhost:8086"}
		assert.Error(t, c.Validate())
	})

	t.Run("fetch needs a mirror", func(t *testing.T) {
		t.Setenv("EEGBENCH_MIRROR", "")
		c := Config{Mode: "fetch", CacheDir: "./data"}
		assert.Error(t, c.Validate())

		t.Setenv("EEGBENCH_MIRROR", "http://mirror.local/zhou")
		c = Config{Mode: "fetch", CacheDir: "./data"}
		require.NoError(t, c.Validate())
		assert.Equal(t, "http://mirror.local/zhou", c.Mirror)
	})

	t.Run("export port", func(t *testing.T) {
		c := Config{Mode: "export", CacheDir: "./data", ExportDir: "./results", ExportPort: 70000}
		assert.Error(t, c.Validate())
		c.ExportPort = 2120
		assert.NoError(t, c.Validate())
	})

	t.Run("unknown mode", func(t *testing.T) {
		c := Config{Mode: "serve", CacheDir: "./data"}
		assert.Error(t, c.Validate())
	})
}

func TestParseLabels(t *testing.T) {
	c := Config{Labels: "team=bci,host=a=b,broken"}
	c.parseLabels()
	assert.Equal(t, map[string]string{"team": "bci", "host": "a=b"}, c.LabelMap)
}
