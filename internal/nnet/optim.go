package nnet

import "math"

// AdamW is Adam with decoupled weight decay.
type AdamW struct {
	Beta1, Beta2 float64
	Eps          float64
	WeightDecay  float64

	step int
	m, v [][]float64
}

func newAdamW(weightDecay float64, p *Params) *AdamW {
	o := &AdamW{Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, WeightDecay: weightDecay}
	for _, t := range p.Tensors() {
		o.m = append(o.m, make([]float64, len(t)))
		o.v = append(o.v, make([]float64, len(t)))
	}
	return o
}

// Step applies one update with learning rate lr.
func (o *AdamW) Step(lr float64, params, grads *Params) {
	o.step++
	c1 := 1 - math.Pow(o.Beta1, float64(o.step))
	c2 := 1 - math.Pow(o.Beta2, float64(o.step))
	gs := grads.Tensors()
	for ti, p := range params.Tensors() {
		g, m, v := gs[ti], o.m[ti], o.v[ti]
		for i := range p {
			p[i] -= lr * o.WeightDecay * p[i]
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g[i]
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g[i]*g[i]
			p[i] -= lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + o.Eps)
		}
	}
}

// CosineSchedule anneals the learning rate from Base to zero over TMax
// epochs.
type CosineSchedule struct {
	Base float64
	TMax int
}

// LR returns the learning rate for the zero based epoch.
func (s CosineSchedule) LR(epoch int) float64 {
	if s.TMax <= 0 {
		return s.Base
	}
	return s.Base * (1 + math.Cos(math.Pi*float64(epoch)/float64(s.TMax))) / 2
}
