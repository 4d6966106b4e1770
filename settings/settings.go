// Package settings persists the capture parameters between runs in a line
// based file and merges them with defaults and command line overrides.
package settings

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/hb9tf/iqscope/iqfile"
)

// DefaultPath is the settings file used when none is given.
const DefaultPath = "settings.conf"

var ErrInvalidNumericArgument = errors.New("invalid numeric argument")

// Field names one persisted setting. The order is the line order in the file.
type Field int

const (
	SampleRate Field = iota
	Frequency
	Gain
	Bandwidth
	BlockLength
	BlockCount

	numFields
)

var fieldNames = [numFields]string{
	SampleRate:  "sample rate",
	Frequency:   "frequency",
	Gain:        "gain",
	Bandwidth:   "bandwidth",
	BlockLength: "block length",
	BlockCount:  "number of blocks",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Defaults returns the parameters used when nothing is persisted.
func Defaults() iqfile.Parameters {
	return iqfile.Parameters{
		SampleRate:      250000.0,
		CenterFrequency: 105500000.0,
		Gain:            30,
		Bandwidth:       40000,
		BlockLength:     1024,
		BlockCount:      100,
	}
}

// Set parses raw into field f of p. On error p is left unchanged and the
// error wraps ErrInvalidNumericArgument.
func Set(p *iqfile.Parameters, f Field, raw string) error {
	raw = strings.TrimSpace(raw)
	switch f {
	case SampleRate, Frequency:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s %q", ErrInvalidNumericArgument, f, raw)
		}
		if f == SampleRate {
			p.SampleRate = v
		} else {
			p.CenterFrequency = v
		}
		return nil
	case Gain, Bandwidth, BlockLength, BlockCount:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidNumericArgument, f, raw)
		}
		switch {
		case (f == BlockLength || f == BlockCount) && v <= 0:
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidNumericArgument, f, v)
		case v < 0:
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidNumericArgument, f, v)
		}
		switch f {
		case Gain:
			p.Gain = int32(v)
		case Bandwidth:
			p.Bandwidth = int32(v)
		case BlockLength:
			p.BlockLength = int32(v)
		case BlockCount:
			p.BlockCount = int32(v)
		}
		return nil
	}
	return fmt.Errorf("unknown setting %s", f)
}

// Get formats field f of p the way it is persisted.
func Get(p iqfile.Parameters, f Field) string {
	switch f {
	case SampleRate:
		return strconv.FormatFloat(p.SampleRate, 'f', -1, 64)
	case Frequency:
		return strconv.FormatFloat(p.CenterFrequency, 'f', -1, 64)
	case Gain:
		return strconv.Itoa(int(p.Gain))
	case Bandwidth:
		return strconv.Itoa(int(p.Bandwidth))
	case BlockLength:
		return strconv.Itoa(int(p.BlockLength))
	case BlockCount:
		return strconv.Itoa(int(p.BlockCount))
	}
	return ""
}

// Load reads the settings file at path on top of base. Lines that do not
// parse keep the value from base; their errors are joined into the returned
// error while the remaining lines still apply. A missing file returns base
// and an error matching fs.ErrNotExist.
func Load(path string, base iqfile.Parameters) (iqfile.Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, err
	}
	defer f.Close()

	p := base
	var errs []error
	scanner := bufio.NewScanner(f)
	for field := Field(0); field < numFields && scanner.Scan(); field++ {
		if err := Set(&p, field, scanner.Text()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return p, errors.Join(errs...)
}

// Save writes p to path, one setting per line.
func Save(path string, p iqfile.Parameters) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("saving to %s failed: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for field := Field(0); field < numFields; field++ {
		fmt.Fprintln(w, Get(p, field))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("saving to %s failed: %w", path, err)
	}
	return f.Close()
}

// Print writes a human readable listing of p.
func Print(w io.Writer, p iqfile.Parameters) {
	fmt.Fprintf(w, "Current sample rate: %d samples/sec\n", int64(p.SampleRate))
	fmt.Fprintf(w, "Current frequency: %d Hz\n", int64(p.CenterFrequency))
	fmt.Fprintf(w, "Current gain: %d dB\n", p.Gain)
	fmt.Fprintf(w, "Current bandwidth: %d Hz\n", p.Bandwidth)
	fmt.Fprintf(w, "Current block length: %d values\n", p.BlockLength)
	fmt.Fprintf(w, "Current number of blocks: %d\n", p.BlockCount)
}
