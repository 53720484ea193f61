// Package dataset provides handles to labeled motor-imagery EEG recording
// collections.
package dataset

import (
	"context"

	"github.com/eegbench/eegbench/internal/eeg"
)

// Description is the static metadata of a recording collection.
type Description struct {
	Code     string
	Subjects []int
	Sessions int
	Channels []string
	SFreq    float64
	// Events are the event names. Labels stored in epoch files index this
	// slice.
	Events []string
	// Interval is the trial window in seconds relative to the cue.
	Interval [2]float64
}

// WindowSamples is the number of samples of one trial.
func (d Description) WindowSamples() int {
	return int((d.Interval[1] - d.Interval[0]) * d.SFreq)
}

// Handle gives access to the recordings of a collection.
type Handle interface {
	Describe() Description
	// Subject returns all recordings of one subject ordered by session.
	Subject(ctx context.Context, id int) ([]eeg.Recording, error)
}

// Data is what a dataset adapter hands to the objective.
type Data struct {
	Dataset Handle
}
