// Package iqfile implements the framed binary capture format: a fixed 32 byte
// little-endian header describing the capture followed by raw interleaved
// signed 8-bit I/Q pairs in block-major order.
package iqfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the encoded size of the capture header in bytes.
	HeaderSize = 32
	// MaxSamples bounds blockLength*blockCount accepted from a header.
	MaxSamples = 1 << 30
)

var (
	ErrInvalidHeader   = errors.New("invalid capture header")
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrTooLarge is returned by DecodeLimit for headers declaring more
	// samples than the caller accepts.
	ErrTooLarge = errors.New("capture too large")
)

// FileOpenError reports a capture file that could not be opened.
type FileOpenError struct {
	Path string
	Op   string // "read" or "write"
	Err  error
}

func (e *FileOpenError) Error() string {
	return fmt.Sprintf("unable to open %q for %s: %s", e.Path, e.Op, e.Err)
}

func (e *FileOpenError) Unwrap() error {
	return e.Err
}

// Parameters describe a capture run. They are written as the file header and
// drive device configuration.
type Parameters struct {
	// SampleRate in Hz.
	SampleRate float64
	// CenterFrequency in Hz.
	CenterFrequency float64
	// Gain in dB.
	Gain int32
	// Bandwidth in Hz.
	Bandwidth int32
	// BlockLength is the number of samples per block (transform length).
	// Powers of two are fastest but any positive length works.
	BlockLength int32
	// BlockCount is the number of blocks in the capture.
	BlockCount int32
}

// header is the on-disk field order.
type header struct {
	CenterFrequency float64
	SampleRate      float64
	BlockCount      int32
	BlockLength     int32
	Gain            int32
	Bandwidth       int32
}

// Samples returns the total number of I/Q pairs described by p.
func (p Parameters) Samples() int {
	return int(p.BlockLength) * int(p.BlockCount)
}

// Validate rejects parameters a capture file must never carry.
func (p Parameters) Validate() error {
	switch {
	case math.IsNaN(p.SampleRate) || math.IsInf(p.SampleRate, 0) || p.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %v", ErrInvalidHeader, p.SampleRate)
	case math.IsNaN(p.CenterFrequency) || math.IsInf(p.CenterFrequency, 0) || p.CenterFrequency <= 0:
		return fmt.Errorf("%w: center frequency %v", ErrInvalidHeader, p.CenterFrequency)
	case p.BlockLength <= 0:
		return fmt.Errorf("%w: block length %d", ErrInvalidHeader, p.BlockLength)
	case p.BlockCount <= 0:
		return fmt.Errorf("%w: block count %d", ErrInvalidHeader, p.BlockCount)
	case p.Gain < 0:
		return fmt.Errorf("%w: gain %d", ErrInvalidHeader, p.Gain)
	case p.Bandwidth < 0:
		return fmt.Errorf("%w: bandwidth %d", ErrInvalidHeader, p.Bandwidth)
	case int64(p.BlockLength)*int64(p.BlockCount) > MaxSamples:
		return fmt.Errorf("%w: %d blocks of %d samples exceed %d samples", ErrInvalidHeader, p.BlockCount, p.BlockLength, MaxSamples)
	}
	return nil
}

// IsPowerOfTwo reports whether the block length is a power of two.
func (p Parameters) IsPowerOfTwo() bool {
	return p.BlockLength > 0 && p.BlockLength&(p.BlockLength-1) == 0
}

// WriteHeader encodes p in the fixed field order.
func WriteHeader(w io.Writer, p Parameters) error {
	return binary.Write(w, binary.LittleEndian, header{
		CenterFrequency: p.CenterFrequency,
		SampleRate:      p.SampleRate,
		BlockCount:      p.BlockCount,
		BlockLength:     p.BlockLength,
		Gain:            p.Gain,
		Bandwidth:       p.Bandwidth,
	})
}

// ReadHeader decodes and validates a header.
func ReadHeader(r io.Reader) (Parameters, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Parameters{}, fmt.Errorf("%w: truncated header", ErrInvalidHeader)
		}
		return Parameters{}, err
	}
	p := Parameters{
		SampleRate:      h.SampleRate,
		CenterFrequency: h.CenterFrequency,
		Gain:            h.Gain,
		Bandwidth:       h.Bandwidth,
		BlockLength:     h.BlockLength,
		BlockCount:      h.BlockCount,
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}
