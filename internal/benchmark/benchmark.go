// Package benchmark hosts dataset, objective and solver adapters: it
// registers them, expands solver parameter grids into variants and drives
// one run per variant.
package benchmark

import (
	"context"

	"github.com/eegbench/eegbench/internal/dataset"
	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/eegbench/eegbench/internal/nnet"
	"github.com/eegbench/eegbench/internal/objective"
)

// Dataset produces a handle to a recording collection.
type Dataset interface {
	Name() string
	Data(ctx context.Context) (dataset.Data, error)
}

// Objective prepares the solver input and scores its result.
type Objective interface {
	Name() string
	SetData(ctx context.Context, data dataset.Data) error
	Objective() (X eeg.Epochs, y []int, sfreq float64)
	Compute(clf *nnet.Classifier) (objective.Scores, error)
}

// Solver is one configured parameter variant of a method.
type Solver interface {
	Name() string
	Parameters() map[string]string
	SetObjective(X eeg.Epochs, y []int, sfreq float64) error
	Warmup()
	Run(nIter int) error
	Result() *nnet.Classifier
}

// StoppingCriterion decides how often a solver is run.
type StoppingCriterion interface {
	// Drive runs the solver and returns the number of Run calls.
	Drive(s Solver) (int, error)
}

// SingleRun calls Run exactly once.
type SingleRun struct{}

func (SingleRun) Drive(s Solver) (int, error) {
	if err := s.Run(1); err != nil {
		return 1, err
	}
	return 1, nil
}
