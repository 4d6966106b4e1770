package filter

import (
	"context"
	"math"

	"github.com/hb9tf/iqscope/spectrum"
)

type Filterer interface {
	ShouldIgnore(*spectrum.Bin) bool
}

// Filter forwards every bin no filter ignores and closes output once input
// is drained or ctx is done.
func Filter(ctx context.Context, input <-chan spectrum.Bin, output chan<- spectrum.Bin, filters []Filterer) error {
	defer close(output)
	for b := range input {
		skip := false
		for _, f := range filters {
			if f.ShouldIgnore(&b) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		select {
		case output <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type FilterFreq struct {
	FreqHigh int64
	FreqLow  int64
}

func (f *FilterFreq) ShouldIgnore(b *spectrum.Bin) bool {
	// Check if low freq of bin is higher than what we want to include.
	if b.FreqLow > f.FreqHigh {
		return true
	}
	// Check if high freq of bin is lower than what we want to include.
	if b.FreqHigh < f.FreqLow {
		return true
	}
	return false
}

// FilterNonFinite drops bins whose level has no finite representation, which
// JSON and most SQL engines cannot store.
type FilterNonFinite struct{}

func (FilterNonFinite) ShouldIgnore(b *spectrum.Bin) bool {
	return math.IsInf(b.DB, 0) || math.IsNaN(b.DB)
}
