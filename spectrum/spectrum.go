// Package spectrum estimates an averaged periodogram from a capture file.
package spectrum

import (
	"math"

	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/iqfile"
)

// Spectrum holds one decibel value per transform bin, bin 0 being DC.
// Bins are in transform order, no shift is applied.
type Spectrum []float64

// Result is the outcome of estimating a capture file.
type Result struct {
	Params   iqfile.Parameters
	Spectrum Spectrum
	Backend  string
	// Truncated is set when the file held fewer samples than declared and
	// the remainder was zero-padded.
	Truncated bool
}

// Estimator turns capture files into spectra.
type Estimator struct {
	// Backend names the transform primitive, see NewTransformer.
	Backend string
}

// Estimate decodes the capture file at source and returns its header and
// averaged spectrum using the default transform.
func Estimate(source string) (iqfile.Parameters, Spectrum, error) {
	res, err := (&Estimator{}).Estimate(source)
	if err != nil {
		return iqfile.Parameters{}, nil, err
	}
	return res.Params, res.Spectrum, nil
}

// Estimate decodes the capture file at source and computes its spectrum.
func (e *Estimator) Estimate(source string) (*Result, error) {
	c, err := iqfile.Load(source)
	if err != nil {
		return nil, err
	}
	return e.EstimateCapture(c)
}

// EstimateCapture computes the spectrum of an already decoded capture.
func (e *Estimator) EstimateCapture(c *iqfile.Capture) (*Result, error) {
	t, err := NewTransformer(e.Backend, int(c.Params.BlockLength))
	if err != nil {
		return nil, err
	}
	if c.Truncated() {
		glog.Warningf("capture holds %d of %d declared samples, zero-padding the rest", c.Pairs, c.Params.Samples())
	}
	if !c.Params.IsPowerOfTwo() {
		glog.V(1).Infof("block length %d is not a power of two", c.Params.BlockLength)
	}
	return &Result{
		Params:    c.Params,
		Spectrum:  Compute(c.Params, c.I, c.Q, t),
		Backend:   t.Name(),
		Truncated: c.Truncated(),
	}, nil
}

// Compute transforms every block of i/q, accumulates the squared real and
// imaginary parts per bin across all blocks and reduces them to decibels.
// i and q must hold at least p.Samples() elements.
//
// The accumulated sums are divided by blockCount squared rather than by
// blockCount. Existing recordings and plots depend on that scaling, which
// shifts every bin by -20*log10(blockCount) dB against a Bartlett average.
func Compute(p iqfile.Parameters, i, q []int8, t Transformer) Spectrum {
	l := int(p.BlockLength)
	realSum := make([]float64, l)
	imagSum := make([]float64, l)

	in := make([]complex128, l)
	out := make([]complex128, l)
	for b := 0; b < int(p.BlockCount); b++ {
		off := b * l
		for j := 0; j < l; j++ {
			in[j] = complex(float64(i[off+j]), float64(q[off+j]))
		}
		out = t.Forward(out, in)
		for k, c := range out {
			realSum[k] += real(c) * real(c)
			imagSum[k] += imag(c) * imag(c)
		}
	}

	div := float64(p.BlockCount) * float64(p.BlockCount)
	s := make(Spectrum, l)
	for k := range s {
		realSum[k] /= div
		imagSum[k] /= div
		s[k] = 20 * math.Log10(math.Sqrt(realSum[k]+imagSum[k]))
	}
	return s
}
