package nnet

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Classifier trains a Network with minibatch AdamW on a cosine schedule.
type Classifier struct {
	cfg   Config
	net   *Network
	opt   *AdamW
	sched CosineSchedule
	rng   *rand.Rand

	history History
	epoch   int
}

// New returns an initialised classifier.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid classifier config")
	}
	tmax := cfg.ScheduleEpochs - 1
	if tmax < 0 {
		tmax = 0
	}
	c := &Classifier{
		cfg:   cfg,
		net:   newNetwork(cfg.Model),
		sched: CosineSchedule{Base: cfg.LearningRate, TMax: tmax},
	}
	c.Initialize()
	return c, nil
}

// Initialize resets weights, optimizer state, schedule position and history
// from the seed.
func (c *Classifier) Initialize() {
	c.rng = rand.New(rand.NewSource(c.cfg.Seed))
	c.net.reset(c.rng)
	c.opt = newAdamW(c.cfg.WeightDecay, c.net.Params)
	c.history = nil
	c.epoch = 0
}

func (c *Classifier) Config() Config   { return c.cfg }
func (c *Classifier) History() History { return c.history }

// Params returns the live parameters of the network.
func (c *Classifier) Params() *Params { return c.net.Params }

// Fit re-initialises the classifier and trains it for the given number of
// epochs.
func (c *Classifier) Fit(X eeg.Epochs, y []int, epochs int) error {
	c.Initialize()
	return c.PartialFit(X, y, epochs)
}

// PartialFit continues training from the current state.
func (c *Classifier) PartialFit(X eeg.Epochs, y []int, epochs int) error {
	xs, err := c.inputs(X)
	if err != nil {
		return err
	}
	if len(xs) == 0 {
		return errors.Wrap(ErrShape, "no training segments")
	}
	if len(y) != len(xs) {
		return errors.Wrapf(ErrShape, "%d labels for %d segments", len(y), len(xs))
	}
	for i, l := range y {
		if l < 0 || l >= c.cfg.Model.NClasses {
			return errors.Wrapf(ErrLabelRange, "label %d of segment %d, n_classes is %d",
				l, i, c.cfg.Model.NClasses)
		}
	}

	for e := 0; e < epochs; e++ {
		c.trainEpoch(X, xs, y)
	}
	return nil
}

func (c *Classifier) trainEpoch(X eeg.Epochs, xs [][]float64, y []int) {
	started := time.Now()
	lr := c.sched.LR(c.epoch)
	order := c.rng.Perm(len(xs))

	var loss float64
	var correct, batches int
	for start := 0; start < len(order); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(order) {
			end = len(order)
		}
		l, ok := c.trainBatch(X, xs, y, order[start:end], lr)
		loss += l
		correct += ok
		batches++
	}

	n := float64(len(xs))
	ep := Epoch{
		Epoch:         c.epoch + 1,
		TrainLoss:     loss / n,
		TrainAccuracy: float64(correct) / n,
		LR:            lr,
		Batches:       batches,
		Duration:      time.Since(started),
	}
	c.history = append(c.history, ep)
	c.epoch++

	log.WithFields(log.Fields{
		"epoch":          ep.Epoch,
		"train_loss":     ep.TrainLoss,
		"train_accuracy": ep.TrainAccuracy,
		"lr":             ep.LR,
		"dur":            ep.Duration,
	}).Debug("Trained epoch")
}

// trainBatch runs one optimizer step and returns the summed loss and the
// number of correctly classified samples of the batch.
func (c *Classifier) trainBatch(X eeg.Epochs, xs [][]float64, y []int, idx []int, lr float64) (float64, int) {
	m := c.cfg.Model
	b := len(idx)
	acts := make([]*activations, b)

	if len(c.cfg.Transforms) == 0 {
		for i, j := range idx {
			acts[i] = &activations{x: xs[j]}
		}
	} else {
		batch := make([][][]float64, b)
		for i, j := range idx {
			batch[i] = widen(X[j])
		}
		c.cfg.Transforms.Apply(batch)
		for i := range batch {
			acts[i] = &activations{x: flatten(batch[i])}
		}
	}
	if m.DropProb > 0 {
		keep := 1 / (1 - m.DropProb)
		for _, a := range acts {
			a.mask = make([]float64, m.NFiltersSpat*m.PoolSamples())
			for i := range a.mask {
				if c.rng.Float64() >= m.DropProb {
					a.mask[i] = keep
				}
			}
		}
	}

	total, losses, hits := c.net.gradients(acts, labels(y, idx), c.cfg.workers())
	c.opt.Step(lr, c.net.Params, total)

	var loss float64
	var correct int
	for i := range losses {
		loss += losses[i]
		if hits[i] {
			correct++
		}
	}
	return loss, correct
}

// each calls fn for every index in [0, n). Work is shared between the given
// number of goroutines through an atomic cursor; done runs once per worker
// as it finishes, so reductions happen in completion order.
func each(workers, n int, fn func(worker, i int), done func(worker int)) {
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		if done != nil {
			done(0)
		}
		return
	}

	var index int32 = -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				i := int(atomic.AddInt32(&index, 1))
				if i >= n {
					break
				}
				fn(w, i)
			}
			if done != nil {
				done(w)
			}
		}(w)
	}
	wg.Wait()
}

// PredictProba returns the class probabilities of every segment.
func (c *Classifier) PredictProba(X eeg.Epochs) ([][]float64, error) {
	xs, err := c.inputs(X)
	if err != nil {
		return nil, err
	}
	st := c.net.runningStats()
	out := make([][]float64, len(xs))
	each(c.cfg.workers(), len(xs), func(_, i int) {
		a := &activations{x: xs[i]}
		a.a2 = c.net.convForward(a.x)
		c.net.headForward(a, st)
		p := make([]float64, len(a.logp))
		for k, v := range a.logp {
			p[k] = math.Exp(v)
		}
		out[i] = p
	}, nil)
	return out, nil
}

// Predict returns the most likely class of every segment.
func (c *Classifier) Predict(X eeg.Epochs) ([]int, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out, nil
}

// Score returns the accuracy on the given segments.
func (c *Classifier) Score(X eeg.Epochs, y []int) (float64, error) {
	if len(X) != len(y) {
		return 0, errors.Wrapf(ErrShape, "%d labels for %d segments", len(y), len(X))
	}
	if len(X) == 0 {
		return 0, nil
	}
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	var correct int
	for i := range pred {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y)), nil
}

// inputs converts and checks the segments against the network input.
func (c *Classifier) inputs(X eeg.Epochs) ([][]float64, error) {
	m := c.cfg.Model
	out := make([][]float64, len(X))
	for i, seg := range X {
		if len(seg) != m.NChannels {
			return nil, errors.Wrapf(ErrShape, "segment %d has %d channels, network expects %d",
				i, len(seg), m.NChannels)
		}
		x := make([]float64, 0, m.NChannels*m.InputWindowSamples)
		for ch, samples := range seg {
			if len(samples) != m.InputWindowSamples {
				return nil, errors.Wrapf(ErrShape, "segment %d channel %d has %d samples, network expects %d",
					i, ch, len(samples), m.InputWindowSamples)
			}
			for _, v := range samples {
				x = append(x, float64(v))
			}
		}
		out[i] = x
	}
	return out, nil
}

func widen(seg [][]float32) [][]float64 {
	out := make([][]float64, len(seg))
	for c, ch := range seg {
		out[c] = make([]float64, len(ch))
		for s, v := range ch {
			out[c][s] = float64(v)
		}
	}
	return out
}

func flatten(seg [][]float64) []float64 {
	var out []float64
	for _, ch := range seg {
		out = append(out, ch...)
	}
	return out
}

func labels(y, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func a2s(acts []*activations) [][]float64 {
	out := make([][]float64, len(acts))
	for i, a := range acts {
		out[i] = a.a2
	}
	return out
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
