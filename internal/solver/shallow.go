// Package solver adapts the ShallowFBCSPNet classifier to the benchmark
// solver protocol.
package solver

import (
	"github.com/eegbench/eegbench/internal/augment"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/eegbench/eegbench/internal/nnet"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Name is the solver name used in variant names.
const Name = "ShallowFBCSPNet"

// Fixed training hyperparameters.
const (
	LearningRate   = 0.0625 * 0.01
	WeightDecay    = 0
	BatchSize      = 64
	ScheduleEpochs = 4
	EpochsPerRun   = 1
)

var (
	// ErrNotConfigured is returned by Run before SetObjective.
	ErrNotConfigured = errors.New("solver has no objective")
	// ErrEmptyObjective is returned by SetObjective without segments.
	ErrEmptyObjective = errors.New("objective has no segments")
)

// ShallowFBCSPNet trains the network for one epoch per run with the
// augmentation selected by Augmentation.
type ShallowFBCSPNet struct {
	Augmentation string

	probe    device.Probe
	override device.Kind

	clf        *nnet.Classifier
	transforms augment.Compose
	x          eeg.Epochs
	y          []int
}

// New returns an unconfigured solver. The probe decides whether the
// classifier runs on an accelerator unless override names a device.
func New(augmentation string, probe device.Probe, override device.Kind) *ShallowFBCSPNet {
	return &ShallowFBCSPNet{Augmentation: augmentation, probe: probe, override: override}
}

func (s *ShallowFBCSPNet) Name() string { return Name }

func (s *ShallowFBCSPNet) Parameters() map[string]string {
	return map[string]string{"augmentation": s.Augmentation}
}

// SetObjective configures the classifier for the given training data.
func (s *ShallowFBCSPNet) SetObjective(X eeg.Epochs, y []int, sfreq float64) error {
	if len(X) == 0 {
		return ErrEmptyObjective
	}
	if len(y) != len(X) {
		return errors.Errorf("%d labels for %d segments", len(y), len(X))
	}
	nChannels, window := X.Shape()
	nClasses := len(eeg.Classes(y))

	dev := device.Select(s.probe, s.override)
	transforms := augment.Transforms(augment.ParsePolicy(s.Augmentation), sfreq)

	clf, err := nnet.New(nnet.Config{
		Model:          nnet.ShallowFBCSPNet(nChannels, nClasses, window),
		LearningRate:   LearningRate,
		WeightDecay:    WeightDecay,
		BatchSize:      BatchSize,
		ScheduleEpochs: ScheduleEpochs,
		Device:         dev,
		Transforms:     transforms,
		Seed:           augment.Seed,
	})
	if err != nil {
		return errors.Wrap(err, "configure classifier")
	}

	log.WithFields(log.Fields{
		"augmentation": s.Augmentation,
		"transforms":   transforms.Names(),
		"n_channels":   nChannels,
		"n_classes":    nClasses,
		"window":       window,
		"device":       dev.Kind,
	}).Info("Configured solver")

	s.clf, s.transforms = clf, transforms
	s.x, s.y = X, y
	return nil
}

// Warmup does nothing, the classifier has no lazy state.
func (s *ShallowFBCSPNet) Warmup() {}

// Run trains a freshly initialised network for one epoch. nIter is ignored.
func (s *ShallowFBCSPNet) Run(nIter int) error {
	if s.clf == nil {
		return ErrNotConfigured
	}
	if err := s.x.CheckUniform(); err != nil {
		return errors.Wrapf(nnet.ErrShape, "training segments: %v", err)
	}
	return s.clf.Fit(s.x, s.y, EpochsPerRun)
}

// Result returns the classifier, nil before SetObjective.
func (s *ShallowFBCSPNet) Result() *nnet.Classifier { return s.clf }

// Transforms returns the augmentation applied during training.
func (s *ShallowFBCSPNet) Transforms() augment.Compose { return s.transforms }
