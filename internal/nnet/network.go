package nnet

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
)

const (
	bnEps    = 1e-5
	logFloor = 1e-6
)

// Params holds the trainable tensors of the network, flattened row-major.
//
//	TimeW  [filtersTime][filterLength]
//	TimeB  [filtersTime]
//	SpatW  [filtersSpat][filtersTime][channels]
//	Gamma  [filtersSpat]
//	Beta   [filtersSpat]
//	ClassW [classes][filtersSpat][poolSamples]
//	ClassB [classes]
type Params struct {
	TimeW  []float64 `json:"time_w"`
	TimeB  []float64 `json:"time_b"`
	SpatW  []float64 `json:"spat_w"`
	Gamma  []float64 `json:"gamma"`
	Beta   []float64 `json:"beta"`
	ClassW []float64 `json:"class_w"`
	ClassB []float64 `json:"class_b"`
}

func newParams(m ModelConfig) *Params {
	return &Params{
		TimeW:  make([]float64, m.NFiltersTime*m.FilterTimeLength),
		TimeB:  make([]float64, m.NFiltersTime),
		SpatW:  make([]float64, m.NFiltersSpat*m.NFiltersTime*m.NChannels),
		Gamma:  make([]float64, m.NFiltersSpat),
		Beta:   make([]float64, m.NFiltersSpat),
		ClassW: make([]float64, m.NClasses*m.NFiltersSpat*m.PoolSamples()),
		ClassB: make([]float64, m.NClasses),
	}
}

// Tensors lists the parameter tensors in a fixed order.
func (p *Params) Tensors() [][]float64 {
	return [][]float64{p.TimeW, p.TimeB, p.SpatW, p.Gamma, p.Beta, p.ClassW, p.ClassB}
}

func (p *Params) zero() {
	for _, t := range p.Tensors() {
		for i := range t {
			t[i] = 0
		}
	}
}

// addTo accumulates p into dst and clears p.
func (p *Params) addTo(dst *Params) {
	src := p.Tensors()
	for i, t := range dst.Tensors() {
		floats.Add(t, src[i])
	}
	p.zero()
}

// Flat returns a copy of all tensors concatenated.
func (p *Params) Flat() []float64 {
	var out []float64
	for _, t := range p.Tensors() {
		out = append(out, t...)
	}
	return out
}

func (p *Params) sameShape(o *Params) bool {
	a, b := p.Tensors(), o.Tensors()
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}

// Network is ShallowFBCSPNet: temporal convolution, spatial convolution,
// batch norm, square, mean pool, safe log, dropout, dense classifier and
// log-softmax.
type Network struct {
	cfg    ModelConfig
	Params *Params

	RunningMean []float64
	RunningVar  []float64
}

func newNetwork(m ModelConfig) *Network {
	return &Network{
		cfg:         m,
		Params:      newParams(m),
		RunningMean: make([]float64, m.NFiltersSpat),
		RunningVar:  make([]float64, m.NFiltersSpat),
	}
}

// reset draws Xavier uniform weights, zero biases and unit batch norm scale.
func (n *Network) reset(rnd *rand.Rand) {
	m := n.cfg
	p := n.Params
	p.zero()
	k, f1, f2, c, pool := m.FilterTimeLength, m.NFiltersTime, m.NFiltersSpat, m.NChannels, m.PoolSamples()
	xavier(rnd, p.TimeW, k, f1*k)
	xavier(rnd, p.SpatW, f1*c, f2*c)
	xavier(rnd, p.ClassW, f2*pool, m.NClasses*pool)
	for i := range p.Gamma {
		p.Gamma[i] = 1
	}
	for i := range n.RunningMean {
		n.RunningMean[i] = 0
		n.RunningVar[i] = 1
	}
}

func xavier(rnd *rand.Rand, data []float64, fanIn, fanOut int) {
	bound := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range data {
		data[i] = (2*rnd.Float64() - 1) * bound
	}
}

// temporal writes the response of temporal filter f1 on every channel of x
// into buf, indexed [channel][time].
func (n *Network) temporal(x []float64, f1 int, buf []float64) {
	m := n.cfg
	t1, k := m.TimeSamples(), m.FilterTimeLength
	w := n.Params.TimeW[f1*k : (f1+1)*k]
	for c := 0; c < m.NChannels; c++ {
		out := buf[c*t1 : (c+1)*t1]
		for t := range out {
			out[t] = n.Params.TimeB[f1]
		}
		xc := x[c*m.InputWindowSamples : (c+1)*m.InputWindowSamples]
		for j := 0; j < k; j++ {
			floats.AddScaled(out, w[j], xc[j:j+t1])
		}
	}
}

// convForward returns the spatial filter outputs [filtersSpat][time] of one
// sample x [channels][samples].
func (n *Network) convForward(x []float64) []float64 {
	m := n.cfg
	t1, f1n, f2n, cn := m.TimeSamples(), m.NFiltersTime, m.NFiltersSpat, m.NChannels
	a2 := make([]float64, f2n*t1)
	buf := make([]float64, cn*t1)
	for f1 := 0; f1 < f1n; f1++ {
		n.temporal(x, f1, buf)
		for f2 := 0; f2 < f2n; f2++ {
			row := a2[f2*t1 : (f2+1)*t1]
			for c := 0; c < cn; c++ {
				floats.AddScaled(row, n.Params.SpatW[(f2*f1n+f1)*cn+c], buf[c*t1:(c+1)*t1])
			}
		}
	}
	return a2
}

// convBackward accumulates the gradient of both convolutions given the
// gradient da2 of the spatial filter outputs.
func (n *Network) convBackward(x, da2 []float64, grad *Params) {
	m := n.cfg
	t1, k, f1n, f2n, cn := m.TimeSamples(), m.FilterTimeLength, m.NFiltersTime, m.NFiltersSpat, m.NChannels
	buf := make([]float64, cn*t1)
	da1 := make([]float64, cn*t1)
	for f1 := 0; f1 < f1n; f1++ {
		n.temporal(x, f1, buf)
		for i := range da1 {
			da1[i] = 0
		}
		for f2 := 0; f2 < f2n; f2++ {
			g := da2[f2*t1 : (f2+1)*t1]
			for c := 0; c < cn; c++ {
				idx := (f2*f1n+f1)*cn + c
				grad.SpatW[idx] += floats.Dot(g, buf[c*t1:(c+1)*t1])
				floats.AddScaled(da1[c*t1:(c+1)*t1], n.Params.SpatW[idx], g)
			}
		}
		for c := 0; c < cn; c++ {
			d := da1[c*t1 : (c+1)*t1]
			xc := x[c*m.InputWindowSamples : (c+1)*m.InputWindowSamples]
			grad.TimeB[f1] += floats.Sum(d)
			for j := 0; j < k; j++ {
				grad.TimeW[f1*k+j] += floats.Dot(d, xc[j:j+t1])
			}
		}
	}
}

// bnStats are the per filter statistics used to normalise a batch.
type bnStats struct {
	mean   []float64
	invStd []float64
}

// batchStats computes the biased batch mean and variance of the spatial
// outputs and updates the running statistics.
func (n *Network) batchStats(a2s [][]float64) bnStats {
	m := n.cfg
	t1, f2n := m.TimeSamples(), m.NFiltersSpat
	count := float64(len(a2s) * t1)
	st := bnStats{mean: make([]float64, f2n), invStd: make([]float64, f2n)}
	for f2 := 0; f2 < f2n; f2++ {
		var sum float64
		for _, a2 := range a2s {
			sum += floats.Sum(a2[f2*t1 : (f2+1)*t1])
		}
		mean := sum / count
		var sq float64
		for _, a2 := range a2s {
			for _, v := range a2[f2*t1 : (f2+1)*t1] {
				d := v - mean
				sq += d * d
			}
		}
		variance := sq / count
		st.mean[f2] = mean
		st.invStd[f2] = 1 / math.Sqrt(variance+bnEps)

		unbiased := variance
		if count > 1 {
			unbiased = sq / (count - 1)
		}
		mom := m.BatchNormMomentum
		n.RunningMean[f2] = (1-mom)*n.RunningMean[f2] + mom*mean
		n.RunningVar[f2] = (1-mom)*n.RunningVar[f2] + mom*unbiased
	}
	return st
}

func (n *Network) runningStats() bnStats {
	st := bnStats{mean: n.RunningMean, invStd: make([]float64, len(n.RunningVar))}
	for i, v := range n.RunningVar {
		st.invStd[i] = 1 / math.Sqrt(v+bnEps)
	}
	return st
}

// activations of one sample kept for the backward pass.
type activations struct {
	x    []float64
	a2   []float64
	z    []float64 // normalised
	y    []float64 // scaled and shifted
	pool []float64
	mask []float64 // dropout scale, nil when not training
	feat []float64
	logp []float64
	dy   []float64
}

// headForward runs everything after the spatial convolution.
func (n *Network) headForward(act *activations, st bnStats) {
	m := n.cfg
	p := n.Params
	t1, f2n, pn := m.TimeSamples(), m.NFiltersSpat, m.PoolSamples()
	act.z = make([]float64, f2n*t1)
	act.y = make([]float64, f2n*t1)
	act.pool = make([]float64, f2n*pn)
	act.feat = make([]float64, f2n*pn)
	for f2 := 0; f2 < f2n; f2++ {
		for t := 0; t < t1; t++ {
			i := f2*t1 + t
			act.z[i] = (act.a2[i] - st.mean[f2]) * st.invStd[f2]
			act.y[i] = p.Gamma[f2]*act.z[i] + p.Beta[f2]
		}
		for j := 0; j < pn; j++ {
			var s float64
			for _, v := range act.y[f2*t1+j*m.PoolTimeStride : f2*t1+j*m.PoolTimeStride+m.PoolTimeLength] {
				s += v * v
			}
			i := f2*pn + j
			act.pool[i] = s / float64(m.PoolTimeLength)
			act.feat[i] = math.Log(math.Max(act.pool[i], logFloor))
			if act.mask != nil {
				act.feat[i] *= act.mask[i]
			}
		}
	}
	width := f2n * pn
	logits := make([]float64, m.NClasses)
	for k := range logits {
		logits[k] = p.ClassB[k] + floats.Dot(p.ClassW[k*width:(k+1)*width], act.feat)
	}
	act.logp = logSoftmax(logits)
}

// headBackward accumulates the classifier gradient and leaves the gradient
// of the batch norm output in act.dy. scale is the loss weight of the
// sample (1 / batch size).
func (n *Network) headBackward(act *activations, label int, scale float64, grad *Params) {
	m := n.cfg
	p := n.Params
	t1, f2n, pn := m.TimeSamples(), m.NFiltersSpat, m.PoolSamples()
	width := f2n * pn

	dfeat := make([]float64, width)
	for k := 0; k < m.NClasses; k++ {
		dl := math.Exp(act.logp[k])
		if k == label {
			dl--
		}
		dl *= scale
		grad.ClassB[k] += dl
		floats.AddScaled(grad.ClassW[k*width:(k+1)*width], dl, act.feat)
		floats.AddScaled(dfeat, dl, p.ClassW[k*width:(k+1)*width])
	}

	act.dy = make([]float64, f2n*t1)
	for f2 := 0; f2 < f2n; f2++ {
		for j := 0; j < pn; j++ {
			i := f2*pn + j
			d := dfeat[i]
			if act.mask != nil {
				d *= act.mask[i]
			}
			// the clamp has zero gradient below the floor
			if act.pool[i] <= logFloor {
				continue
			}
			d /= act.pool[i] * float64(m.PoolTimeLength)
			start := f2*t1 + j*m.PoolTimeStride
			for t := start; t < start+m.PoolTimeLength; t++ {
				act.dy[t] += 2 * act.y[t] * d
			}
		}
	}
}

// bnSums are the batch reductions needed by the batch norm backward pass.
type bnSums struct {
	dy  []float64
	dyz []float64
}

func newBNSums(n int) bnSums {
	return bnSums{dy: make([]float64, n), dyz: make([]float64, n)}
}

func (s bnSums) accumulate(act *activations, t1 int) {
	for f2 := range s.dy {
		row := act.dy[f2*t1 : (f2+1)*t1]
		s.dy[f2] += floats.Sum(row)
		s.dyz[f2] += floats.Dot(row, act.z[f2*t1:(f2+1)*t1])
	}
}

func (s bnSums) addTo(dst bnSums) {
	floats.Add(dst.dy, s.dy)
	floats.Add(dst.dyz, s.dyz)
}

// bnBackward returns the gradient of the spatial outputs of one sample.
func (n *Network) bnBackward(act *activations, st bnStats, sums bnSums, batch int) []float64 {
	m := n.cfg
	t1 := m.TimeSamples()
	count := float64(batch * t1)
	da2 := make([]float64, len(act.dy))
	for f2 := 0; f2 < m.NFiltersSpat; f2++ {
		k := n.Params.Gamma[f2] * st.invStd[f2] / count
		for t := 0; t < t1; t++ {
			i := f2*t1 + t
			da2[i] = k * (count*act.dy[i] - sums.dy[f2] - act.z[i]*sums.dyz[f2])
		}
	}
	return da2
}

func logSoftmax(logits []float64) []float64 {
	hi := floats.Max(logits)
	var sum float64
	for _, v := range logits {
		sum += math.Exp(v - hi)
	}
	lse := hi + math.Log(sum)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = v - lse
	}
	return out
}

// gradients runs the forward and backward pass of a training batch with batch
// statistics. It returns the gradient of the mean NLL loss, the loss of every
// sample and whether each sample was classified correctly.
func (n *Network) gradients(acts []*activations, labels []int, workers int) (*Params, []float64, []bool) {
	m := n.cfg
	b := len(acts)
	each(workers, b, func(_, i int) {
		acts[i].a2 = n.convForward(acts[i].x)
	}, nil)

	st := n.batchStats(a2s(acts))

	grads := make([]*Params, workers)
	partial := make([]bnSums, workers)
	for w := range grads {
		grads[w] = newParams(m)
		partial[w] = newBNSums(m.NFiltersSpat)
	}
	total := newParams(m)
	sums := newBNSums(m.NFiltersSpat)
	losses := make([]float64, b)
	hits := make([]bool, b)
	scale := 1 / float64(b)

	var mu sync.Mutex
	each(workers, b, func(w, i int) {
		a := acts[i]
		n.headForward(a, st)
		losses[i] = -a.logp[labels[i]]
		hits[i] = argmax(a.logp) == labels[i]
		n.headBackward(a, labels[i], scale, grads[w])
		partial[w].accumulate(a, m.TimeSamples())
	}, func(w int) {
		mu.Lock()
		partial[w].addTo(sums)
		mu.Unlock()
	})

	copy(total.Gamma, sums.dyz)
	copy(total.Beta, sums.dy)

	each(workers, b, func(w, i int) {
		da2 := n.bnBackward(acts[i], st, sums, b)
		n.convBackward(acts[i].x, da2, grads[w])
	}, func(w int) {
		mu.Lock()
		grads[w].addTo(total)
		mu.Unlock()
	})

	return total, losses, hits
}
