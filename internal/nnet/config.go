// Package nnet is a small training stack for the ShallowFBCSPNet EEG
// classifier: network, NLL loss, AdamW, cosine learning rate schedule and an
// sklearn style classifier wrapper.
package nnet

import (
	"github.com/eegbench/eegbench/internal/augment"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/pkg/errors"
)

var (
	// ErrShape is returned when the input does not fit the network.
	ErrShape = errors.New("input shape does not match the network")
	// ErrLabelRange is returned for labels outside [0, NClasses).
	ErrLabelRange = errors.New("label out of range")
)

// ModelConfig describes the ShallowFBCSPNet architecture.
type ModelConfig struct {
	NChannels          int     `json:"n_channels"`
	InputWindowSamples int     `json:"input_window_samples"`
	NClasses           int     `json:"n_classes"`
	NFiltersTime       int     `json:"n_filters_time"`
	FilterTimeLength   int     `json:"filter_time_length"`
	NFiltersSpat       int     `json:"n_filters_spat"`
	PoolTimeLength     int     `json:"pool_time_length"`
	PoolTimeStride     int     `json:"pool_time_stride"`
	DropProb           float64 `json:"drop_prob"`
	BatchNormMomentum  float64 `json:"batch_norm_momentum"`
}

// ShallowFBCSPNet returns the reference architecture for the given input.
func ShallowFBCSPNet(nChannels, nClasses, inputWindowSamples int) ModelConfig {
	return ModelConfig{
		NChannels:          nChannels,
		InputWindowSamples: inputWindowSamples,
		NClasses:           nClasses,
		NFiltersTime:       40,
		FilterTimeLength:   25,
		NFiltersSpat:       40,
		PoolTimeLength:     75,
		PoolTimeStride:     15,
		DropProb:           0.5,
		BatchNormMomentum:  0.1,
	}
}

// TimeSamples is the length of the time axis after the temporal convolution.
func (m ModelConfig) TimeSamples() int {
	return m.InputWindowSamples - m.FilterTimeLength + 1
}

// PoolSamples is the length of the time axis after pooling. The classifier
// spans all of it.
func (m ModelConfig) PoolSamples() int {
	return (m.TimeSamples()-m.PoolTimeLength)/m.PoolTimeStride + 1
}

func (m ModelConfig) Validate() error {
	switch {
	case m.NChannels <= 0:
		return errors.Wrapf(ErrShape, "n_channels must be positive, got %d", m.NChannels)
	case m.NClasses < 2:
		return errors.Errorf("n_classes must be at least 2, got %d", m.NClasses)
	case m.NFiltersTime <= 0 || m.NFiltersSpat <= 0 || m.FilterTimeLength <= 0:
		return errors.Errorf("filter counts and lengths must be positive")
	case m.PoolTimeLength <= 0 || m.PoolTimeStride <= 0:
		return errors.Errorf("pool length and stride must be positive")
	case m.DropProb < 0 || m.DropProb >= 1:
		return errors.Errorf("drop_prob must be in [0, 1), got %v", m.DropProb)
	case m.TimeSamples() < m.PoolTimeLength:
		return errors.Wrapf(ErrShape,
			"input_window_samples %d too short for filter length %d and pool length %d",
			m.InputWindowSamples, m.FilterTimeLength, m.PoolTimeLength)
	}
	return nil
}

// Config is the full classifier configuration.
type Config struct {
	Model ModelConfig

	LearningRate float64
	WeightDecay  float64
	BatchSize    int
	// ScheduleEpochs is the horizon of the cosine schedule, T_max is one
	// less.
	ScheduleEpochs int

	Device     device.Device
	Transforms augment.Compose
	Seed       int64
}

func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.WeightDecay < 0 {
		return errors.Errorf("weight decay must not be negative, got %v", c.WeightDecay)
	}
	return nil
}

func (c Config) workers() int {
	if c.Device.Workers < 1 {
		return 1
	}
	return c.Device.Workers
}
