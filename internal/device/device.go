// Package device selects where the training loop runs.
package device

import (
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Kind is the compute device class.
type Kind string

const (
	CPU         Kind = "cpu"
	Accelerator Kind = "accelerator"
)

// Device is the resolved device configuration for a classifier.
type Device struct {
	Kind Kind
	// Benchmark trades bitwise reproducibility for speed: gradients of a
	// minibatch are computed by Workers goroutines and summed in completion
	// order.
	Benchmark bool
	Workers   int
	Info      Info
}

// Info describes the detected hardware.
type Info struct {
	Brand        string
	LogicalCores int
	Features     []string
}

// Probe reports whether an accelerator is available.
type Probe interface {
	Accelerator() (Info, bool)
}

// CPUIDProbe treats wide vector units on a multi-core host as the
// accelerator.
type CPUIDProbe struct{}

func (CPUIDProbe) Accelerator() (Info, bool) {
	info := Info{
		Brand:        cpuid.CPU.BrandName,
		LogicalCores: cpuid.CPU.LogicalCores,
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	for _, f := range []cpuid.FeatureID{cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.AVX512DQ} {
		if cpuid.CPU.Supports(f) {
			info.Features = append(info.Features, f.String())
		}
	}
	ok := cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ) && info.LogicalCores > 1
	return info, ok
}

// ParseKind parses a device override. The empty string and "auto" mean
// probe.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case string(CPU):
		return CPU, nil
	case string(Accelerator), "gpu", "cuda":
		return Accelerator, nil
	default:
		return "", errors.Errorf("unknown device %q, must be one of [auto, cpu, accelerator]", s)
	}
}

// Select resolves the device. An explicit override wins over the probe; an
// accelerator override on a host without one falls back to the CPU.
func Select(p Probe, override Kind) Device {
	info, ok := p.Accelerator()

	kind := CPU
	switch override {
	case CPU:
	case Accelerator:
		if ok {
			kind = Accelerator
		} else {
			log.Warn("accelerator requested but not available, using cpu")
		}
	default:
		if ok {
			kind = Accelerator
		}
	}

	d := Device{Kind: kind, Workers: 1, Info: info}
	if kind == Accelerator {
		d.Benchmark = true
		d.Workers = info.LogicalCores
		if d.Workers < 1 {
			d.Workers = 1
		}
	}

	log.WithFields(log.Fields{
		"device":    d.Kind,
		"benchmark": d.Benchmark,
		"workers":   d.Workers,
		"cpu":       info.Brand,
	}).Debug("Selected device")

	return d
}
