// Package plot renders spectra for display.
package plot

import (
	"fmt"
	"math"
)

// Config describes how a sequence of values is displayed. X is the value
// index, Y the value itself.
type Config struct {
	Title string
	// LogY selects a logarithmic Y axis. Values <= 0 cannot be shown on it
	// and are left out.
	LogY bool
	XMin float64
	XMax float64
	// YMin is the lower Y bound. With LogY the bound is raised to the
	// smallest positive value.
	YMin float64

	// Width and Height of rendered images in pixels.
	Width  int
	Height int
}

// SpectrumConfig returns the display configuration for a spectrum of
// blockLength bins.
func SpectrumConfig(blockLength int, centerFreq float64) Config {
	return Config{
		Title:  fmt.Sprintf("Spectrum @ %s", GetReadableFreq(int64(centerFreq))),
		LogY:   true,
		XMin:   0,
		XMax:   float64(blockLength),
		YMin:   0,
		Width:  1024,
		Height: 480,
	}
}

// Sink accepts a sequence of values for display.
type Sink interface {
	Plot(values []float64, cfg Config) error
}

var expSuffixLookup = map[int]string{
	0: "Hz",  // 10^0
	1: "kHz", // 10^3
	2: "MHz", // 10^6
	3: "GHz", // 10^9
	4: "THz", // 10^12
}

// GetReadableFreq formats freq with an SI prefix.
func GetReadableFreq(freq int64) string {
	exp := 0
	for f := math.Abs(float64(freq)); f >= 1000; f = f / 1000.0 {
		exp += 1
	}
	suffix, ok := expSuffixLookup[exp]
	if !ok || exp == 0 {
		return fmt.Sprintf("%d Hz", freq)
	}
	return fmt.Sprintf("%.2f %s", float64(freq)/math.Pow(1000, float64(exp)), suffix)
}

// yRange returns the displayed Y bounds, in log10 units when cfg.LogY.
// ok is false when no value can be displayed.
func yRange(values []float64, cfg Config) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !visible(v, cfg) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	if cfg.LogY {
		if cfg.YMin > lo {
			lo = cfg.YMin
		}
		lo, hi = math.Log10(lo), math.Log10(hi)
	} else if cfg.YMin < lo {
		lo = cfg.YMin
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi, true
}

func visible(v float64, cfg Config) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if cfg.LogY && v <= 0 {
		return false
	}
	return v >= cfg.YMin || cfg.LogY
}
