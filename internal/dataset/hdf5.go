package dataset

import (
	"sort"

	"github.com/eegbench/eegbench/internal/eeg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaviate/hdf5"
)

// EpochsFile is the content of one subject file.
//
//	X        float32 [trials, channels, samples]
//	y        int32   [trials]   index into Description.Events
//	session  int32   [trials]
//	sfreq    float64 [1]
type EpochsFile struct {
	X       eeg.Epochs
	Y       []int
	Session []int
	SFreq   float64
}

// Recordings groups the trials by session, sessions in ascending order.
func (f EpochsFile) Recordings(subject int, events []string) ([]eeg.Recording, error) {
	bySession := map[int]*eeg.Recording{}
	for i, seg := range f.X {
		label := f.Y[i]
		if label < 0 || label >= len(events) {
			return nil, errors.Errorf("subject %d trial %d: label %d outside %d events",
				subject, i, label, len(events))
		}
		s := f.Session[i]
		rec, ok := bySession[s]
		if !ok {
			rec = &eeg.Recording{Subject: subject, Session: s, SFreq: f.SFreq}
			bySession[s] = rec
		}
		rec.Trials = append(rec.Trials, seg)
		rec.Events = append(rec.Events, events[label])
	}

	out := make([]eeg.Recording, 0, len(bySession))
	for _, rec := range bySession {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out, nil
}

// ReadEpochsFile reads a subject file.
func ReadEpochsFile(path string) (EpochsFile, error) {
	file, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return EpochsFile{}, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	var out EpochsFile
	x, dims, err := readFloat32(file, "X")
	if err != nil {
		return out, errors.Wrap(err, path)
	}
	if len(dims) != 3 {
		return out, errors.Errorf("%s: expected 3 dimensions for X, got %d", path, len(dims))
	}
	out.X = eeg.Convert1D(x, int(dims[0]), int(dims[1]), int(dims[2]))

	if out.Y, err = readInts(file, "y"); err != nil {
		return out, errors.Wrap(err, path)
	}
	if out.Session, err = readInts(file, "session"); err != nil {
		return out, errors.Wrap(err, path)
	}
	if len(out.Y) != len(out.X) || len(out.Session) != len(out.X) {
		return out, errors.Errorf("%s: %d trials but %d labels and %d sessions",
			path, len(out.X), len(out.Y), len(out.Session))
	}

	sfreq, err := file.OpenDataset("sfreq")
	if err != nil {
		return out, errors.Wrapf(err, "%s: open sfreq", path)
	}
	defer sfreq.Close()
	buf := make([]float64, 1)
	if err := sfreq.Read(&buf); err != nil {
		return out, errors.Wrapf(err, "%s: read sfreq", path)
	}
	out.SFreq = buf[0]

	log.WithFields(log.Fields{
		"file":     path,
		"trials":   dims[0],
		"channels": dims[1],
		"samples":  dims[2],
	}).Debug("Read epochs file")

	return out, nil
}

func readFloat32(file *hdf5.File, name string) ([]float32, []uint, error) {
	dataset, err := file.OpenDataset(name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", name)
	}
	defer dataset.Close()

	dims, _, err := dataset.Space().SimpleExtentDims()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dims of %s", name)
	}
	n := uint(1)
	for _, d := range dims {
		n *= d
	}
	data := make([]float32, n)
	if err := dataset.Read(&data); err != nil {
		return nil, nil, errors.Wrapf(err, "read %s", name)
	}
	return data, dims, nil
}

func readInts(file *hdf5.File, name string) ([]int, error) {
	dataset, err := file.OpenDataset(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	defer dataset.Close()

	dims, _, err := dataset.Space().SimpleExtentDims()
	if err != nil {
		return nil, errors.Wrapf(err, "dims of %s", name)
	}
	if len(dims) != 1 {
		return nil, errors.Errorf("expected 1 dimension for %s, got %d", name, len(dims))
	}
	data32 := make([]int32, dims[0])
	if err := dataset.Read(&data32); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	out := make([]int, len(data32))
	for i, v := range data32 {
		out[i] = int(v)
	}
	return out, nil
}

// WriteEpochsFile writes a subject file, replacing any existing one.
func WriteEpochsFile(path string, f EpochsFile) error {
	if err := f.X.CheckUniform(); err != nil {
		return err
	}
	if len(f.Y) != len(f.X) || len(f.Session) != len(f.X) {
		return errors.Errorf("%d trials but %d labels and %d sessions",
			len(f.X), len(f.Y), len(f.Session))
	}

	file, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.Close()

	channels, samples := f.X.Shape()
	x := f.X.Flatten()
	if err := writeDataset(file, "X", hdf5.T_NATIVE_FLOAT,
		[]uint{uint(len(f.X)), uint(channels), uint(samples)}, &x); err != nil {
		return errors.Wrap(err, path)
	}

	y, session := make([]int32, len(f.Y)), make([]int32, len(f.Session))
	for i := range f.Y {
		y[i] = int32(f.Y[i])
		session[i] = int32(f.Session[i])
	}
	if err := writeDataset(file, "y", hdf5.T_NATIVE_INT32, []uint{uint(len(y))}, &y); err != nil {
		return errors.Wrap(err, path)
	}
	if err := writeDataset(file, "session", hdf5.T_NATIVE_INT32, []uint{uint(len(session))}, &session); err != nil {
		return errors.Wrap(err, path)
	}
	sfreq := []float64{f.SFreq}
	if err := writeDataset(file, "sfreq", hdf5.T_NATIVE_DOUBLE, []uint{1}, &sfreq); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}

func writeDataset(file *hdf5.File, name string, dtype *hdf5.Datatype, dims []uint, data interface{}) error {
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return errors.Wrapf(err, "dataspace for %s", name)
	}
	defer space.Close()

	dataset, err := file.CreateDataset(name, dtype, space)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	defer dataset.Close()

	return errors.Wrapf(dataset.Write(data), "write %s", name)
}
