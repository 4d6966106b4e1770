package spectrum

import (
	"math"
	"time"
)

// Bin is one spectrum value with the metadata needed to store it on its own.
type Bin struct {
	// Metadata
	Identifier string
	Source     string
	Created    time.Time

	// Spectrum data
	Bin         int
	FreqCenter  int64
	FreqLow     int64
	FreqHigh    int64
	DB          float64
	BlockLength int32
	BlockCount  int32
}

// Bins flattens res into per-bin records tagged with identifier and source.
func Bins(res *Result, identifier, source string, created time.Time) []Bin {
	p := res.Params
	half := BinWidth(p) / 2
	out := make([]Bin, len(res.Spectrum))
	for k, db := range res.Spectrum {
		center := BinFrequency(p, k)
		out[k] = Bin{
			Identifier:  identifier,
			Source:      source,
			Created:     created,
			Bin:         k,
			FreqCenter:  int64(math.Round(center)),
			FreqLow:     int64(math.Round(center - half)),
			FreqHigh:    int64(math.Round(center + half)),
			DB:          db,
			BlockLength: p.BlockLength,
			BlockCount:  p.BlockCount,
		}
	}
	return out
}

// CaptureCenter recovers the center frequency of the capture b belongs to,
// using the FFT ordering of BinFrequency.
func (b Bin) CaptureCenter() float64 {
	offset := b.Bin
	if l := int(b.BlockLength); offset >= (l+1)/2 {
		offset -= l
	}
	return float64(b.FreqCenter) - float64(offset)*float64(b.FreqHigh-b.FreqLow)
}

// FromBins rebuilds a spectrum from stored bins. Bins are placed by index,
// missing indices become -Inf.
func FromBins(bins []Bin) Spectrum {
	n := 0
	for _, b := range bins {
		n = max(n, b.Bin+1)
	}
	s := make(Spectrum, n)
	for k := range s {
		s[k] = math.Inf(-1)
	}
	for _, b := range bins {
		if b.Bin >= 0 {
			s[b.Bin] = b.DB
		}
	}
	return s
}
