package dataset

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/pkg/errors"
)

// Simulated generates motor imagery like recordings: each class raises the
// 10 Hz power of its own channel group on top of white noise.
type Simulated struct {
	NSubjects       int
	NSessions       int
	NChannels       int
	TrialsPerClass  int
	SFreq           float64
	DurationSeconds float64
	Events          []string
	Seed            int64
}

// NewSimulated returns a small simulated collection shaped like Zhou2016.
func NewSimulated() *Simulated {
	return &Simulated{
		NSubjects:       2,
		NSessions:       2,
		NChannels:       len(Zhou2016.Channels),
		TrialsPerClass:  10,
		SFreq:           Zhou2016.SFreq,
		DurationSeconds: 2,
		Events:          Zhou2016.Events,
		Seed:            1,
	}
}

func (s *Simulated) Name() string { return "Simulated" }

func (s *Simulated) Data(ctx context.Context) (Data, error) {
	if s.NSubjects < 1 || s.NSessions < 1 || s.NChannels < 1 || len(s.Events) < 2 {
		return Data{}, errors.Errorf("simulated dataset needs subjects, sessions, channels and two events")
	}
	return Data{Dataset: s}, nil
}

func (s *Simulated) Describe() Description {
	d := Description{
		Code:     s.Name(),
		Sessions: s.NSessions,
		SFreq:    s.SFreq,
		Events:   s.Events,
		Interval: [2]float64{0, s.DurationSeconds},
	}
	for i := 1; i <= s.NSubjects; i++ {
		d.Subjects = append(d.Subjects, i)
	}
	for c := 0; c < s.NChannels; c++ {
		d.Channels = append(d.Channels, fmt.Sprintf("EEG%02d", c+1))
	}
	return d
}

func (s *Simulated) Subject(ctx context.Context, id int) ([]eeg.Recording, error) {
	if id < 1 || id > s.NSubjects {
		return nil, errors.Errorf("%s has no subject %d", s.Name(), id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := int(s.DurationSeconds * s.SFreq)
	out := make([]eeg.Recording, s.NSessions)
	for session := range out {
		rnd := rand.New(rand.NewSource(s.Seed*1000 + int64(id)*10 + int64(session)))
		rec := eeg.Recording{Subject: id, Session: session, SFreq: s.SFreq}
		for trial := 0; trial < s.TrialsPerClass; trial++ {
			for class, event := range s.Events {
				rec.Trials = append(rec.Trials, s.trial(rnd, class, samples))
				rec.Events = append(rec.Events, event)
			}
		}
		out[session] = rec
	}
	return out, nil
}

func (s *Simulated) trial(rnd *rand.Rand, class, samples int) [][]float32 {
	phase := rnd.Float64() * 2 * math.Pi
	seg := make([][]float32, s.NChannels)
	for c := range seg {
		amp := 0.5
		if c%len(s.Events) == class {
			amp = 3
		}
		ch := make([]float32, samples)
		for t := range ch {
			mu := amp * math.Sin(2*math.Pi*10*float64(t)/s.SFreq+phase)
			ch[t] = float32(mu + rnd.NormFloat64())
		}
		seg[c] = ch
	}
	return seg
}
