package benchmark

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Result is the record of one variant run.
type Result struct {
	RunID     string            `json:"run_id"`
	Dataset   string            `json:"dataset"`
	Objective string            `json:"objective"`
	Solver    string            `json:"solver"`
	Variant   string            `json:"variant"`
	Params    map[string]string `json:"params"`

	Device    string `json:"device"`
	Benchmark bool   `json:"benchmark"`
	Workers   int    `json:"workers"`

	TrainAccuracy float64 `json:"train_accuracy"`
	TestAccuracy  float64 `json:"test_accuracy"`
	NTrain        int     `json:"n_train"`
	NTest         int     `json:"n_test"`
	TrainLoss     float64 `json:"train_loss"`
	Epochs        int     `json:"epochs"`
	Runs          int     `json:"runs"`

	SetupDuration time.Duration `json:"setup_duration"`
	RunDuration   time.Duration `json:"run_duration"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Store persists results.
type Store interface {
	Save(ctx context.Context, results []Result) error
}

// Runner drives every variant of a solver against one dataset.
type Runner struct {
	Registry *Registry
	// Store is optional.
	Store Store
	// ModelDir, when set, receives one <run_id>.json.xz snapshot of each
	// trained classifier.
	ModelDir string
}

// Run prepares the dataset once and runs each variant of the solver
// selector in turn. A failing variant stops the run; results of the
// variants before it are returned with the error.
func (r *Runner) Run(ctx context.Context, datasetName, solverSelector string) ([]Result, error) {
	ds, err := r.Registry.Dataset(datasetName)
	if err != nil {
		return nil, err
	}
	variants, err := r.Registry.Variants(solverSelector)
	if err != nil {
		return nil, err
	}
	spec, err := r.Registry.Solver(variants[0].Solver)
	if err != nil {
		return nil, err
	}

	data, err := ds.Data(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %s", datasetName)
	}
	obj := r.Registry.objective()
	if err := obj.SetData(ctx, data); err != nil {
		return nil, errors.Wrapf(err, "objective %s", obj.Name())
	}

	var results []Result
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.runVariant(spec, obj, v)
		if err != nil {
			return results, errors.Wrapf(err, "run %s", v)
		}
		res.Dataset = datasetName
		results = append(results, res)

		log.WithFields(log.Fields{
			"variant":        res.Variant,
			"train_accuracy": res.TrainAccuracy,
			"test_accuracy":  res.TestAccuracy,
			"took":           res.RunDuration,
		}).Info("Finished variant")
	}

	if r.Store != nil && len(results) > 0 {
		if err := r.Store.Save(ctx, results); err != nil {
			return results, errors.Wrap(err, "store results")
		}
	}
	return results, nil
}

func (r *Runner) runVariant(spec SolverSpec, obj Objective, v Variant) (Result, error) {
	res := Result{
		RunID:     uuid.New().String(),
		Objective: obj.Name(),
		Solver:    spec.Name,
		Variant:   v.String(),
		Params:    v.Params,
		Timestamp: time.Now(),
	}

	setup := time.Now()
	s, err := spec.New(v.Params)
	if err != nil {
		return res, err
	}
	X, y, sfreq := obj.Objective()
	if err := s.SetObjective(X, y, sfreq); err != nil {
		return res, err
	}
	s.Warmup()
	res.SetupDuration = time.Since(setup)

	started := time.Now()
	runs, err := spec.Stop.Drive(s)
	res.RunDuration = time.Since(started)
	res.Runs = runs
	if err != nil {
		return res, err
	}

	clf := s.Result()
	if clf == nil {
		return res, errors.New("solver returned no result")
	}
	if r.ModelDir != "" {
		path := filepath.Join(r.ModelDir, res.RunID+".json.xz")
		if err := clf.SaveFile(path); err != nil {
			return res, errors.Wrap(err, "save model")
		}
		log.WithField("path", path).Debug("Saved model")
	}
	scores, err := obj.Compute(clf)
	if err != nil {
		return res, err
	}
	res.TrainAccuracy = scores.TrainAccuracy
	res.TestAccuracy = scores.TestAccuracy
	res.NTrain = scores.NTrain
	res.NTest = scores.NTest

	dev := clf.Config().Device
	res.Device = string(dev.Kind)
	res.Benchmark = dev.Benchmark
	res.Workers = dev.Workers

	h := clf.History()
	res.Epochs = len(h)
	if last, ok := h.Last(); ok {
		res.TrainLoss = last.TrainLoss
	}
	return res, nil
}
