package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Zhou2016 describes the Zhou et al. 2016 motor imagery collection: four
// subjects, three sessions each, three imagery classes.
var Zhou2016 = Description{
	Code:     "Zhou2016",
	Subjects: []int{1, 2, 3, 4},
	Sessions: 3,
	Channels: []string{
		"Fp1", "Fp2", "FC3", "FCz", "FC4", "C3", "Cz",
		"C4", "CP3", "CPz", "CP4", "O1", "Oz", "O2",
	},
	SFreq:    250,
	Events:   []string{"left_hand", "right_hand", "feet"},
	Interval: [2]float64{0, 5},
}

// SubjectFile is the epoch file name of a subject.
func SubjectFile(subject int) string {
	return fmt.Sprintf("subject_%02d.h5", subject)
}

// Zhou is the dataset adapter for Zhou2016. Subject files are read from
// CacheDir; when Fetcher is set, missing files are downloaded first.
type Zhou struct {
	CacheDir string
	Fetcher  *Fetcher
}

func (z *Zhou) Name() string { return Zhou2016.Code }

// Data returns a handle to the collection. Recordings are loaded on demand.
func (z *Zhou) Data(ctx context.Context) (Data, error) {
	if err := os.MkdirAll(z.CacheDir, 0o755); err != nil {
		return Data{}, errors.Wrapf(err, "create cache dir %s", z.CacheDir)
	}
	return Data{Dataset: &fileHandle{desc: Zhou2016, dir: z.CacheDir, fetcher: z.Fetcher}}, nil
}

// Fetch downloads every missing subject file.
func (z *Zhou) Fetch(ctx context.Context) error {
	if z.Fetcher == nil {
		return errors.New("no mirror configured")
	}
	if err := os.MkdirAll(z.CacheDir, 0o755); err != nil {
		return errors.Wrapf(err, "create cache dir %s", z.CacheDir)
	}
	names := make([]string, len(Zhou2016.Subjects))
	for i, s := range Zhou2016.Subjects {
		names[i] = SubjectFile(s)
	}
	return z.Fetcher.FetchAll(ctx, z.CacheDir, names)
}

// fileHandle serves recordings from a directory of subject files.
type fileHandle struct {
	desc    Description
	dir     string
	fetcher *Fetcher
}

func (h *fileHandle) Describe() Description { return h.desc }

func (h *fileHandle) Subject(ctx context.Context, id int) ([]eeg.Recording, error) {
	if !h.hasSubject(id) {
		return nil, errors.Errorf("%s has no subject %d", h.desc.Code, id)
	}

	path := filepath.Join(h.dir, SubjectFile(id))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if h.fetcher == nil {
			return nil, errors.Wrapf(err, "subject %d not cached and no mirror configured", id)
		}
		if err := h.fetcher.Fetch(ctx, SubjectFile(id), path); err != nil {
			return nil, errors.Wrapf(err, "subject %d", id)
		}
	}

	file, err := ReadEpochsFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "subject %d", id)
	}
	if file.SFreq != h.desc.SFreq {
		log.WithFields(log.Fields{
			"subject":  id,
			"file":     file.SFreq,
			"expected": h.desc.SFreq,
		}).Warn("Sampling rate of subject file differs from dataset description")
	}
	return file.Recordings(id, h.desc.Events)
}

func (h *fileHandle) hasSubject(id int) bool {
	for _, s := range h.desc.Subjects {
		if s == id {
			return true
		}
	}
	return false
}
