package cmd

import (
	"github.com/eegbench/eegbench/internal/augment"
	"github.com/eegbench/eegbench/internal/benchmark"
	"github.com/eegbench/eegbench/internal/dataset"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/eegbench/eegbench/internal/objective"
	"github.com/eegbench/eegbench/internal/solver"
)

func newZhou(cfg Config) *dataset.Zhou {
	z := &dataset.Zhou{CacheDir: cfg.CacheDir}
	if cfg.Mirror != "" {
		z.Fetcher = dataset.NewFetcher(cfg.Mirror, cfg.MirrorRetries, cfg.MirrorWait)
	}
	return z
}

// newRegistry wires every adapter of the benchmark.
func newRegistry(cfg Config, probe device.Probe) (*benchmark.Registry, error) {
	r := benchmark.NewRegistry(func() benchmark.Objective {
		return objective.NewMotorImagery()
	})

	for _, d := range []benchmark.Dataset{newZhou(cfg), dataset.NewSimulated()} {
		if err := r.RegisterDataset(d); err != nil {
			return nil, err
		}
	}

	err := r.RegisterSolver(benchmark.SolverSpec{
		Name:       solver.Name,
		Parameters: map[string][]string{"augmentation": augment.Variants},
		New: func(params map[string]string) (benchmark.Solver, error) {
			return solver.New(params["augmentation"], probe, cfg.DeviceKind), nil
		},
		Stop: benchmark.SingleRun{},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
