package nnet

import "time"

// Epoch is one row of the training history.
type Epoch struct {
	Epoch         int           `json:"epoch"`
	TrainLoss     float64       `json:"train_loss"`
	TrainAccuracy float64       `json:"train_accuracy"`
	LR            float64       `json:"lr"`
	Batches       int           `json:"batches"`
	Duration      time.Duration `json:"dur"`
}

// History is the per epoch training record.
type History []Epoch

// Last returns the most recent epoch and false when nothing was trained.
func (h History) Last() (Epoch, bool) {
	if len(h) == 0 {
		return Epoch{}, false
	}
	return h[len(h)-1], true
}
