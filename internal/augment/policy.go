package augment

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Seed is the random seed shared by all swept transforms.
const Seed = 20200220

// Declared augmentation variant names.
const (
	VariantChannelsDropout   = "ChannelsDropout"
	VariantSmoothTimeMask    = "SmoothTimeMask"
	VariantIdentityTransform = "IdentityTransform"

	// channelDropoutAlias is the only spelling that selects the channel
	// dropout sweep. The declared "ChannelsDropout" falls through to identity.
	channelDropoutAlias = "ChannelDropout"
)

// Variants are the augmentation values declared for the solver.
var Variants = []string{VariantChannelsDropout, VariantSmoothTimeMask, VariantIdentityTransform}

// Range is a closed scalar range swept over Points evenly spaced values.
type Range struct {
	Min, Max float64
	Points   int
}

// Values returns the sweep values, endpoints included.
func (r Range) Values() []float64 {
	switch {
	case r.Points <= 0:
		return nil
	case r.Points == 1:
		return []float64{r.Min}
	}
	return floats.Span(make([]float64, r.Points), r.Min, r.Max)
}

// Policy is one of ChannelsDropoutPolicy, SmoothTimeMaskPolicy or
// IdentityPolicy.
type Policy interface {
	Name() string
	isPolicy()
}

// ChannelsDropoutPolicy sweeps the channel drop probability.
type ChannelsDropoutPolicy struct {
	ProbRange   Range
	Probability float64
	Seed        int64
}

// SmoothTimeMaskPolicy sweeps the mask duration in seconds.
type SmoothTimeMaskPolicy struct {
	DurationRange Range
	Probability   float64
	Seed          int64
}

// IdentityPolicy yields a single no-op transform.
type IdentityPolicy struct{}

func (ChannelsDropoutPolicy) Name() string { return VariantChannelsDropout }
func (SmoothTimeMaskPolicy) Name() string  { return VariantSmoothTimeMask }
func (IdentityPolicy) Name() string        { return VariantIdentityTransform }

func (ChannelsDropoutPolicy) isPolicy() {}
func (SmoothTimeMaskPolicy) isPolicy()  {}
func (IdentityPolicy) isPolicy()        {}

// DefaultChannelsDropout drops with probability 0 and 1, applied to half of
// the samples.
func DefaultChannelsDropout() ChannelsDropoutPolicy {
	return ChannelsDropoutPolicy{
		ProbRange:   Range{Min: 0, Max: 1, Points: 2},
		Probability: 0.5,
		Seed:        Seed,
	}
}

// DefaultSmoothTimeMask masks 0.1 s and 2 s windows, applied to half of the
// samples.
func DefaultSmoothTimeMask() SmoothTimeMaskPolicy {
	return SmoothTimeMaskPolicy{
		DurationRange: Range{Min: 0.1, Max: 2, Points: 2},
		Probability:   0.5,
		Seed:          Seed,
	}
}

// ParsePolicy maps a variant name to its policy. Only "SmoothTimeMask" and
// "ChannelDropout" select a sweep; every other name, the declared
// "ChannelsDropout" included, resolves to IdentityPolicy.
func ParsePolicy(name string) Policy {
	switch name {
	case VariantSmoothTimeMask:
		return DefaultSmoothTimeMask()
	case channelDropoutAlias:
		return DefaultChannelsDropout()
	case VariantChannelsDropout:
		log.WithField("augmentation", name).
			Warn("augmentation name does not match the channel dropout branch, using identity")
		return IdentityPolicy{}
	default:
		return IdentityPolicy{}
	}
}

// Transforms resolves a policy into concrete transforms for data sampled at
// sfreq Hz.
func Transforms(p Policy, sfreq float64) Compose {
	switch p := p.(type) {
	case ChannelsDropoutPolicy:
		var out Compose
		for _, prob := range p.ProbRange.Values() {
			out = append(out, NewChannelsDropout(p.Probability, prob, p.Seed))
		}
		return out
	case SmoothTimeMaskPolicy:
		var out Compose
		for _, second := range p.DurationRange.Values() {
			out = append(out, NewSmoothTimeMask(p.Probability, int(sfreq*second), p.Seed))
		}
		return out
	case IdentityPolicy:
		return Compose{Identity{}}
	default:
		panic(fmt.Sprintf("augment: unhandled policy %T", p))
	}
}
