// Package augment implements label-preserving data augmentation for EEG
// training batches and the policies that select them.
package augment

import (
	"math"
	"math/rand"
)

// Transform perturbs a training batch in place. Batches are indexed as
// [sample][channel][time].
type Transform interface {
	Name() string
	Apply(batch [][][]float64)
}

// base holds the per-sample application probability and the transform's own
// random stream.
type base struct {
	probability float64
	rng         *rand.Rand
}

func newBase(probability float64, seed int64) base {
	return base{probability: probability, rng: rand.New(rand.NewSource(seed))}
}

// selected draws which samples of the batch the transform applies to.
func (b *base) selected(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = b.rng.Float64() < b.probability
	}
	return mask
}

// Identity leaves the batch untouched.
type Identity struct{}

func (Identity) Name() string            { return "IdentityTransform" }
func (Identity) Apply(batch [][][]float64) {}

// ChannelsDropout zeroes every channel of a selected sample with
// probability PDrop.
type ChannelsDropout struct {
	Probability float64
	PDrop       float64
	Seed        int64

	base
}

// NewChannelsDropout returns a seeded channel dropout transform.
func NewChannelsDropout(probability, pDrop float64, seed int64) *ChannelsDropout {
	return &ChannelsDropout{
		Probability: probability,
		PDrop:       pDrop,
		Seed:        seed,
		base:        newBase(probability, seed),
	}
}

func (t *ChannelsDropout) Name() string { return "ChannelsDropout" }

func (t *ChannelsDropout) Apply(batch [][][]float64) {
	for i, apply := range t.selected(len(batch)) {
		if !apply {
			continue
		}
		for _, ch := range batch[i] {
			// keep with probability 1 - PDrop
			if t.rng.Float64() < t.PDrop {
				for s := range ch {
					ch[s] = 0
				}
			}
		}
	}
}

// SmoothTimeMask replaces a window of MaskLenSamples samples, at a uniformly
// drawn position, by zeros with sigmoid shaped edges.
type SmoothTimeMask struct {
	Probability    float64
	MaskLenSamples int
	Seed           int64

	base
}

// NewSmoothTimeMask returns a seeded smooth time mask transform.
func NewSmoothTimeMask(probability float64, maskLenSamples int, seed int64) *SmoothTimeMask {
	return &SmoothTimeMask{
		Probability:    probability,
		MaskLenSamples: maskLenSamples,
		Seed:           seed,
		base:           newBase(probability, seed),
	}
}

func (t *SmoothTimeMask) Name() string { return "SmoothTimeMask" }

func (t *SmoothTimeMask) Apply(batch [][][]float64) {
	for i, apply := range t.selected(len(batch)) {
		if !apply || len(batch[i]) == 0 {
			continue
		}
		length := len(batch[i][0])
		maxStart := float64(length - t.MaskLenSamples)
		if maxStart < 0 {
			maxStart = 0
		}
		start := t.rng.Float64() * maxStart
		weights := MaskWeights(length, start, float64(t.MaskLenSamples))
		for _, ch := range batch[i] {
			for s := range ch {
				ch[s] *= weights[s]
			}
		}
	}
}

// MaskWeights returns the multiplicative weights of a smooth mask of the given
// length starting at start.
func MaskWeights(length int, start, maskLen float64) []float64 {
	w := make([]float64, length)
	for s := range w {
		t := float64(s)
		w[s] = 1 - (sigmoid(t-start) - sigmoid(t-(start+maskLen)))
	}
	return w
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Compose applies a list of transforms one after the other to each batch.
type Compose []Transform

func (c Compose) Apply(batch [][][]float64) {
	for _, t := range c {
		t.Apply(batch)
	}
}

// Names lists the transform names in order.
func (c Compose) Names() []string {
	out := make([]string, len(c))
	for i, t := range c {
		out[i] = t.Name()
	}
	return out
}
