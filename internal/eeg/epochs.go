// Package eeg holds the data model shared by the dataset, objective and
// solver packages.
package eeg

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Epochs is an ordered set of multi-channel segments indexed as
// [segment][channel][sample].
type Epochs [][][]float32

// Shape returns the channel count and window length of the first segment.
// The first segment is canonical, the others are assumed to match.
func (e Epochs) Shape() (channels, samples int) {
	if len(e) == 0 || len(e[0]) == 0 {
		return 0, 0
	}
	return len(e[0]), len(e[0][0])
}

// CheckUniform reports the first segment whose shape differs from the
// canonical one.
func (e Epochs) CheckUniform() error {
	channels, samples := e.Shape()
	for i, seg := range e {
		if len(seg) != channels {
			return errors.Errorf("segment %d has %d channels, expected %d", i, len(seg), channels)
		}
		for c, ch := range seg {
			if len(ch) != samples {
				return errors.Errorf("segment %d channel %d has %d samples, expected %d",
					i, c, len(ch), samples)
			}
		}
	}
	return nil
}

// Subset returns the segments at the given indices. Segments are shared, not
// copied.
func (e Epochs) Subset(idx []int) Epochs {
	out := make(Epochs, len(idx))
	for i, j := range idx {
		out[i] = e[j]
	}
	return out
}

// Recording is the set of trials of one subject and session.
type Recording struct {
	Subject int
	Session int
	SFreq   float64
	Trials  Epochs
	Events  []string // event name per trial
}

// Classes returns the distinct values of labels in ascending order.
func Classes(labels []int) []int {
	seen := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Convert1D reshapes a flat row-major buffer into [rows][channels][samples].
func Convert1D[D constraints.Float](input []D, rows, channels, samples int) Epochs {
	out := make(Epochs, rows)
	stride := channels * samples
	for i := range out {
		out[i] = make([][]float32, channels)
		for c := 0; c < channels; c++ {
			ch := make([]float32, samples)
			base := i*stride + c*samples
			for s := 0; s < samples; s++ {
				ch[s] = float32(input[base+s])
			}
			out[i][c] = ch
		}
	}
	return out
}

// Flatten is the inverse of Convert1D.
func (e Epochs) Flatten() []float32 {
	channels, samples := e.Shape()
	out := make([]float32, 0, len(e)*channels*samples)
	for _, seg := range e {
		for _, ch := range seg {
			out = append(out, ch...)
		}
	}
	return out
}
