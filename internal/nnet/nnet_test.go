package nnet

import (
	"bytes"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/eegbench/eegbench/internal/augment"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyModel() ModelConfig {
	return ModelConfig{
		NChannels:          2,
		InputWindowSamples: 12,
		NClasses:           2,
		NFiltersTime:       2,
		FilterTimeLength:   3,
		NFiltersSpat:       2,
		PoolTimeLength:     4,
		PoolTimeStride:     2,
		BatchNormMomentum:  0.1,
	}
}

func tinyConfig() Config {
	return Config{
		Model:          tinyModel(),
		LearningRate:   0.01,
		BatchSize:      8,
		ScheduleEpochs: 4,
		Device:         device.Device{Kind: device.CPU, Workers: 1},
		Seed:           augment.Seed,
	}
}

// separable returns segments whose class is encoded in the power of the
// first channel.
func separable(n int, m ModelConfig, seed int64) (eeg.Epochs, []int) {
	rnd := rand.New(rand.NewSource(seed))
	X := make(eeg.Epochs, n)
	y := make([]int, n)
	for i := range X {
		y[i] = i % m.NClasses
		X[i] = make([][]float32, m.NChannels)
		for c := range X[i] {
			X[i][c] = make([]float32, m.InputWindowSamples)
			amp := 0.2
			if c == 0 && y[i] == 1 {
				amp = 2
			}
			for s := range X[i][c] {
				X[i][c][s] = float32(amp * rnd.NormFloat64())
			}
		}
	}
	return X, y
}

func TestShapes(t *testing.T) {
	m := ShallowFBCSPNet(3, 4, 1000)
	require.NoError(t, m.Validate())
	assert.Equal(t, 976, m.TimeSamples())
	assert.Equal(t, 61, m.PoolSamples())

	m = ShallowFBCSPNet(3, 4, 90)
	require.ErrorIs(t, m.Validate(), ErrShape)

	m = ShallowFBCSPNet(3, 1, 1000)
	require.Error(t, m.Validate())
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	m := tinyModel()
	net := newNetwork(m)
	net.reset(rand.New(rand.NewSource(1)))

	X, y := separable(4, m, 2)
	c := &Classifier{cfg: Config{Model: m}}
	xs, err := c.inputs(X)
	require.NoError(t, err)

	fresh := func() []*activations {
		acts := make([]*activations, len(xs))
		for i := range xs {
			acts[i] = &activations{x: xs[i]}
		}
		return acts
	}
	loss := func() float64 {
		_, losses, _ := net.gradients(fresh(), y, 1)
		var sum float64
		for _, l := range losses {
			sum += l
		}
		return sum / float64(len(losses))
	}

	grad, _, _ := net.gradients(fresh(), y, 1)

	const h = 1e-6
	names := []string{"time_w", "time_b", "spat_w", "gamma", "beta", "class_w", "class_b"}
	analytic := grad.Tensors()
	for ti, tensor := range net.Params.Tensors() {
		for i := range tensor {
			orig := tensor[i]
			tensor[i] = orig + h
			up := loss()
			tensor[i] = orig - h
			down := loss()
			tensor[i] = orig

			numeric := (up - down) / (2 * h)
			assert.InDelta(t, numeric, analytic[ti][i], 1e-5+1e-3*math.Abs(numeric),
				"%s[%d]", names[ti], i)
		}
	}
}

func TestFitReducesLoss(t *testing.T) {
	X, y := separable(64, tinyModel(), 3)
	cfg := tinyConfig()
	cfg.ScheduleEpochs = 31
	c, err := New(cfg)
	require.NoError(t, err)

	before := append([]float64(nil), c.Params().Flat()...)
	require.NoError(t, c.Fit(X, y, 30))

	h := c.History()
	require.Len(t, h, 30)
	assert.Less(t, h[len(h)-1].TrainLoss, h[0].TrainLoss)
	assert.NotEqual(t, before, c.Params().Flat())

	acc, err := c.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.75)
}

func TestHistoryRecordsSchedule(t *testing.T) {
	X, y := separable(20, tinyModel(), 4)
	c, err := New(tinyConfig())
	require.NoError(t, err)
	require.NoError(t, c.Fit(X, y, 4))

	h := c.History()
	require.Len(t, h, 4)
	assert.InDelta(t, 0.01, h[0].LR, 1e-12)
	assert.InDelta(t, 0.0, h[3].LR, 1e-12)
	// 20 samples in batches of 8 keep the partial batch
	assert.Equal(t, 3, h[0].Batches)

	require.NoError(t, c.Fit(X, y, 1))
	require.Len(t, c.History(), 1)
}

func TestCPUFitIsDeterministic(t *testing.T) {
	X, y := separable(24, tinyModel(), 5)
	cfg := tinyConfig()
	cfg.Model.DropProb = 0.5

	run := func() []float64 {
		cfg.Transforms = augment.Compose{augment.NewSmoothTimeMask(0.5, 3, augment.Seed)}
		c, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, c.Fit(X, y, 2))
		return c.Params().Flat()
	}
	require.Equal(t, run(), run())
}

func TestParallelTrainingAgreesWithCPU(t *testing.T) {
	X, y := separable(32, tinyModel(), 6)
	cpu, err := New(tinyConfig())
	require.NoError(t, err)
	require.NoError(t, cpu.Fit(X, y, 2))

	cfg := tinyConfig()
	cfg.Device = device.Device{Kind: device.Accelerator, Benchmark: true, Workers: 4}
	par, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, par.Fit(X, y, 2))

	// only the summation order differs
	for i, ep := range cpu.History() {
		assert.InDelta(t, ep.TrainLoss, par.History()[i].TrainLoss, 1e-6)
	}
	want, err := cpu.Predict(X)
	require.NoError(t, err)
	got, err := par.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFitRejectsBadInput(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)
	X, y := separable(4, tinyModel(), 7)

	require.ErrorIs(t, c.Fit(X, []int{0, 1, 2, 0}, 1), ErrLabelRange)
	require.ErrorIs(t, c.Fit(X, y[:3], 1), ErrShape)
	require.ErrorIs(t, c.Fit(nil, nil, 1), ErrShape)

	X[2] = X[2][:1]
	require.ErrorIs(t, c.Fit(X, y, 1), ErrShape)
	_, err = c.Predict(X)
	require.ErrorIs(t, err, ErrShape)
}

func TestPredictProbaSumsToOne(t *testing.T) {
	X, _ := separable(5, tinyModel(), 8)
	c, err := New(tinyConfig())
	require.NoError(t, err)
	proba, err := c.PredictProba(X)
	require.NoError(t, err)
	require.Len(t, proba, 5)
	for _, p := range proba {
		assert.InDelta(t, 1, p[0]+p[1], 1e-9)
	}
}

func TestCosineSchedule(t *testing.T) {
	s := CosineSchedule{Base: 1, TMax: 3}
	assert.InDelta(t, 1, s.LR(0), 1e-12)
	assert.InDelta(t, 0.75, s.LR(1), 1e-12)
	assert.InDelta(t, 0.25, s.LR(2), 1e-12)
	assert.InDelta(t, 0, s.LR(3), 1e-12)
	assert.Equal(t, 1.0, CosineSchedule{Base: 1}.LR(5))
}

func TestSaveLoad(t *testing.T) {
	X, y := separable(16, tinyModel(), 9)
	c, err := New(tinyConfig())
	require.NoError(t, err)
	require.NoError(t, c.Fit(X, y, 2))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))
	loaded, err := Load(&buf, tinyConfig())
	require.NoError(t, err)
	assert.Equal(t, c.Params().Flat(), loaded.Params().Flat())
	assert.Len(t, loaded.History(), 2)

	want, err := c.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	path := filepath.Join(t.TempDir(), "model.json.xz")
	require.NoError(t, c.SaveFile(path))
	_, err = LoadFile(path, tinyConfig())
	require.NoError(t, err)
}
