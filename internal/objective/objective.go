// Package objective implements the motor imagery evaluation: it turns a
// dataset handle into a labeled train split for the solver and scores the
// trained classifier on a held out split.
package objective

import (
	"context"
	"math/rand"
	"sort"

	"github.com/eegbench/eegbench/internal/dataset"
	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/eegbench/eegbench/internal/nnet"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Split is a labeled set of segments.
type Split struct {
	X eeg.Epochs
	Y []int
}

func (s *Split) add(x [][]float32, y int) {
	s.X = append(s.X, x)
	s.Y = append(s.Y, y)
}

// Scores are the objective values of one run.
type Scores struct {
	TrainAccuracy float64 `json:"train_accuracy"`
	TestAccuracy  float64 `json:"test_accuracy"`
	NTrain        int     `json:"n_train"`
	NTest         int     `json:"n_test"`
}

// MotorImagery holds out the last session of each subject for testing. A
// subject with a single session contributes a stratified TestFraction of
// its trials instead.
type MotorImagery struct {
	TestFraction float64
	Seed         int64

	classes []string
	sfreq   float64
	train   Split
	test    Split
}

// NewMotorImagery returns the objective with a 20% fallback split.
func NewMotorImagery() *MotorImagery {
	return &MotorImagery{TestFraction: 0.2, Seed: 42}
}

func (o *MotorImagery) Name() string { return "MotorImagery" }

// Classes are the event names, the class index is the position.
func (o *MotorImagery) Classes() []string { return o.classes }

// SetData loads every subject of the handle and splits the trials.
func (o *MotorImagery) SetData(ctx context.Context, data dataset.Data) error {
	if data.Dataset == nil {
		return errors.New("no dataset")
	}
	desc := data.Dataset.Describe()

	o.classes = append([]string(nil), desc.Events...)
	sort.Strings(o.classes)
	index := make(map[string]int, len(o.classes))
	for i, c := range o.classes {
		index[c] = i
	}

	o.sfreq = desc.SFreq
	o.train, o.test = Split{}, Split{}
	rnd := rand.New(rand.NewSource(o.Seed))

	for _, subject := range desc.Subjects {
		recs, err := data.Dataset.Subject(ctx, subject)
		if err != nil {
			return errors.Wrapf(err, "load %s subject %d", desc.Code, subject)
		}
		if len(recs) == 0 {
			continue
		}
		if recs[0].SFreq > 0 {
			o.sfreq = recs[0].SFreq
		}

		if len(recs) == 1 {
			if err := o.splitTrials(rnd, recs[0], index); err != nil {
				return err
			}
			continue
		}
		for i, rec := range recs {
			dst := &o.train
			if i == len(recs)-1 {
				dst = &o.test
			}
			for t, seg := range rec.Trials {
				label, ok := index[rec.Events[t]]
				if !ok {
					return errors.Errorf("subject %d session %d: unknown event %q",
						subject, rec.Session, rec.Events[t])
				}
				dst.add(seg, label)
			}
		}
	}

	if len(o.train.X) == 0 {
		return errors.Errorf("%s yielded no training trials", desc.Code)
	}
	if err := o.train.X.CheckUniform(); err != nil {
		return errors.Wrap(err, "training trials")
	}

	log.WithFields(log.Fields{
		"dataset": desc.Code,
		"train":   len(o.train.X),
		"test":    len(o.test.X),
		"classes": o.classes,
		"sfreq":   o.sfreq,
	}).Info("Prepared motor imagery splits")
	return nil
}

// splitTrials moves a stratified fraction of each class of rec to the test
// split.
func (o *MotorImagery) splitTrials(rnd *rand.Rand, rec eeg.Recording, index map[string]int) error {
	byClass := map[int][]int{}
	for t, ev := range rec.Events {
		label, ok := index[ev]
		if !ok {
			return errors.Errorf("subject %d: unknown event %q", rec.Subject, ev)
		}
		byClass[label] = append(byClass[label], t)
	}

	labels := make([]int, 0, len(byClass))
	for l := range byClass {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	for _, label := range labels {
		trials := byClass[label]
		rnd.Shuffle(len(trials), func(i, j int) { trials[i], trials[j] = trials[j], trials[i] })
		nTest := int(float64(len(trials))*o.TestFraction + 0.5)
		if nTest >= len(trials) {
			nTest = len(trials) - 1
		}
		for i, t := range trials {
			if i < nTest {
				o.test.add(rec.Trials[t], label)
			} else {
				o.train.add(rec.Trials[t], label)
			}
		}
	}
	return nil
}

// Objective returns the training split and its sampling rate.
func (o *MotorImagery) Objective() (eeg.Epochs, []int, float64) {
	return o.train.X, o.train.Y, o.sfreq
}

// Test returns the held out split.
func (o *MotorImagery) Test() Split { return o.test }

// Compute scores the classifier on both splits.
func (o *MotorImagery) Compute(clf *nnet.Classifier) (Scores, error) {
	if clf == nil {
		return Scores{}, errors.New("no classifier")
	}
	train, err := clf.Score(o.train.X, o.train.Y)
	if err != nil {
		return Scores{}, errors.Wrap(err, "score train split")
	}
	test, err := clf.Score(o.test.X, o.test.Y)
	if err != nil {
		return Scores{}, errors.Wrap(err, "score test split")
	}
	return Scores{
		TrainAccuracy: train,
		TestAccuracy:  test,
		NTrain:        len(o.train.X),
		NTest:         len(o.test.X),
	}, nil
}
