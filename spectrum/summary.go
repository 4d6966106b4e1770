package spectrum

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/hb9tf/iqscope/iqfile"
)

// BinWidth returns the frequency span of one bin in Hz.
func BinWidth(p iqfile.Parameters) float64 {
	return p.SampleRate / float64(p.BlockLength)
}

// BinFrequency maps transform bin k to an absolute frequency in Hz. Bins in
// the upper half of the transform are negative offsets from the center.
func BinFrequency(p iqfile.Parameters, k int) float64 {
	l := int(p.BlockLength)
	offset := k
	if k >= (l+1)/2 {
		offset = k - l
	}
	return p.CenterFrequency + float64(offset)*BinWidth(p)
}

// Summary describes the finite part of a spectrum.
type Summary struct {
	PeakBin       int
	PeakFrequency float64
	MaxDB         float64
	MinDB         float64
	MeanDB        float64
	// NonFinite counts bins that are -Inf (zero amplitude) or NaN.
	NonFinite int
}

// Summarize computes Summary for s. PeakBin is -1 when no bin is finite.
func Summarize(p iqfile.Parameters, s Spectrum) Summary {
	finite := make([]float64, 0, len(s))
	bins := make([]int, 0, len(s))
	for k, v := range s {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		finite = append(finite, v)
		bins = append(bins, k)
	}
	sum := Summary{
		PeakBin:   -1,
		NonFinite: len(s) - len(finite),
		MaxDB:     math.NaN(),
		MinDB:     math.NaN(),
		MeanDB:    math.NaN(),
	}
	if len(finite) == 0 {
		return sum
	}
	peak := floats.MaxIdx(finite)
	sum.PeakBin = bins[peak]
	sum.PeakFrequency = BinFrequency(p, sum.PeakBin)
	sum.MaxDB = finite[peak]
	sum.MinDB = floats.Min(finite)
	sum.MeanDB = stat.Mean(finite, nil)
	return sum
}
