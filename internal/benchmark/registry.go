package benchmark

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// SolverFactory builds a solver for one parameter assignment.
type SolverFactory func(params map[string]string) (Solver, error)

// SolverSpec declares a solver and its parameter grid.
type SolverSpec struct {
	Name       string
	Parameters map[string][]string
	New        SolverFactory
	// Stop defaults to SingleRun.
	Stop StoppingCriterion
}

// Registry is the explicit set of adapters known to the host.
type Registry struct {
	datasets  map[string]Dataset
	solvers   map[string]SolverSpec
	objective func() Objective
}

// NewRegistry returns an empty registry. newObjective is called once per
// run to get a fresh objective.
func NewRegistry(newObjective func() Objective) *Registry {
	return &Registry{
		datasets:  map[string]Dataset{},
		solvers:   map[string]SolverSpec{},
		objective: newObjective,
	}
}

func (r *Registry) RegisterDataset(d Dataset) error {
	if _, ok := r.datasets[d.Name()]; ok {
		return errors.Errorf("dataset %q registered twice", d.Name())
	}
	r.datasets[d.Name()] = d
	return nil
}

func (r *Registry) RegisterSolver(spec SolverSpec) error {
	if spec.Name == "" || spec.New == nil {
		return errors.New("solver needs a name and a factory")
	}
	if _, ok := r.solvers[spec.Name]; ok {
		return errors.Errorf("solver %q registered twice", spec.Name)
	}
	if spec.Stop == nil {
		spec.Stop = SingleRun{}
	}
	r.solvers[spec.Name] = spec
	return nil
}

func (r *Registry) Dataset(name string) (Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, errors.Errorf("unknown dataset %q, must be one of %v", name, r.Datasets())
	}
	return d, nil
}

func (r *Registry) Solver(name string) (SolverSpec, error) {
	s, ok := r.solvers[name]
	if !ok {
		return SolverSpec{}, errors.Errorf("unknown solver %q, must be one of %v", name, r.Solvers())
	}
	return s, nil
}

// Datasets returns the registered dataset names in order.
func (r *Registry) Datasets() []string {
	return sortedKeys(r.datasets)
}

// Solvers returns the registered solver names in order.
func (r *Registry) Solvers() []string {
	return sortedKeys(r.solvers)
}

// Variants expands a solver selector. A bare name yields the whole grid, a
// full variant name such as "ShallowFBCSPNet[augmentation=SmoothTimeMask]"
// yields that variant alone.
func (r *Registry) Variants(selector string) ([]Variant, error) {
	v, err := ParseVariant(selector)
	if err != nil {
		return nil, err
	}
	spec, err := r.Solver(v.Solver)
	if err != nil {
		return nil, err
	}
	if v.Params != nil {
		for k := range v.Params {
			if _, ok := spec.Parameters[k]; !ok {
				return nil, errors.Errorf("solver %s has no parameter %q", spec.Name, k)
			}
		}
		return []Variant{v}, nil
	}

	var out []Variant
	for _, params := range Grid(spec.Parameters) {
		out = append(out, Variant{Solver: spec.Name, Params: params})
	}
	return out, nil
}

// Variant is a solver with one parameter assignment.
type Variant struct {
	Solver string
	Params map[string]string
}

func (v Variant) String() string {
	if len(v.Params) == 0 {
		return v.Solver
	}
	parts := make([]string, 0, len(v.Params))
	for _, k := range sortedKeys(v.Params) {
		parts = append(parts, k+"="+v.Params[k])
	}
	return fmt.Sprintf("%s[%s]", v.Solver, strings.Join(parts, ","))
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(s string) (Variant, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if s == "" {
			return Variant{}, errors.New("empty solver name")
		}
		return Variant{Solver: s}, nil
	}
	if !strings.HasSuffix(s, "]") || open == 0 {
		return Variant{}, errors.Errorf("malformed variant %q", s)
	}

	v := Variant{Solver: s[:open], Params: map[string]string{}}
	for _, kv := range strings.Split(s[open+1:len(s)-1], ",") {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return Variant{}, errors.Errorf("malformed parameter %q in %q", kv, s)
		}
		v.Params[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return v, nil
}

// Grid returns the cross product of the parameter values. Keys are expanded
// in sorted order, values in declaration order.
func Grid(params map[string][]string) []map[string]string {
	out := []map[string]string{{}}
	for _, k := range sortedKeys(params) {
		var next []map[string]string
		for _, partial := range out {
			for _, v := range params[k] {
				m := make(map[string]string, len(partial)+1)
				for pk, pv := range partial {
					m[pk] = pv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
