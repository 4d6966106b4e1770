package spectrum

import (
	"fmt"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	BackendGonum = "gonum"
	BackendGoDSP = "godsp"
)

// Transformer computes an unnormalized forward DFT of src into dst. Both have
// the length the transformer was built for.
type Transformer interface {
	Name() string
	Forward(dst, src []complex128) []complex128
}

// NewTransformer returns the named backend for transforms of length n.
func NewTransformer(backend string, n int) (Transformer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid transform length %d", n)
	}
	switch strings.ToLower(backend) {
	case "", BackendGonum:
		return &gonumTransform{fft: fourier.NewCmplxFFT(n)}, nil
	case BackendGoDSP:
		return goDSPTransform{}, nil
	}
	return nil, fmt.Errorf("%q is not a supported FFT backend, pick one of: %s, %s", backend, BackendGonum, BackendGoDSP)
}

type gonumTransform struct {
	fft *fourier.CmplxFFT
}

func (g *gonumTransform) Name() string {
	return BackendGonum
}

func (g *gonumTransform) Forward(dst, src []complex128) []complex128 {
	return g.fft.Coefficients(dst, src)
}

// goDSPTransform uses mjibson/go-dsp which handles any length, falling back
// to Bluestein's algorithm for non powers of two.
type goDSPTransform struct{}

func (goDSPTransform) Name() string {
	return BackendGoDSP
}

func (goDSPTransform) Forward(dst, src []complex128) []complex128 {
	out := fft.FFT(src)
	if dst == nil {
		return out
	}
	copy(dst, out)
	return dst
}
