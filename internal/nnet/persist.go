package nnet

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

type snapshot struct {
	Model       ModelConfig `json:"model"`
	Params      *Params     `json:"params"`
	RunningMean []float64   `json:"running_mean"`
	RunningVar  []float64   `json:"running_var"`
	History     History     `json:"history"`
}

// Save writes the trained model as xz compressed JSON.
func (c *Classifier) Save(w io.Writer) error {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "open xz writer")
	}
	snap := snapshot{
		Model:       c.cfg.Model,
		Params:      c.net.Params,
		RunningMean: c.net.RunningMean,
		RunningVar:  c.net.RunningVar,
		History:     c.history,
	}
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return errors.Wrap(err, "encode model")
	}
	return errors.Wrap(zw.Close(), "close xz writer")
}

// Load restores a model written by Save. The architecture is taken from the
// stream; cfg supplies the training settings.
func Load(r io.Reader, cfg Config) (*Classifier, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open xz reader")
	}
	var snap snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "decode model")
	}

	cfg.Model = snap.Model
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if snap.Params == nil || !c.net.Params.sameShape(snap.Params) ||
		len(snap.RunningMean) != cfg.Model.NFiltersSpat || len(snap.RunningVar) != cfg.Model.NFiltersSpat {
		return nil, errors.Wrap(ErrShape, "stored parameters do not match the stored architecture")
	}
	c.net.Params = snap.Params
	c.net.RunningMean = snap.RunningMean
	c.net.RunningVar = snap.RunningVar
	c.opt = newAdamW(cfg.WeightDecay, c.net.Params)
	c.history = snap.History
	c.epoch = len(snap.History)
	return c, nil
}

// SaveFile writes the model to path.
func (c *Classifier) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// LoadFile reads a model written by SaveFile.
func LoadFile(path string, cfg Config) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return Load(f, cfg)
}
