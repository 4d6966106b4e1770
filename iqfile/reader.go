package iqfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Capture is a decoded capture file with its samples split into parallel
// I and Q sequences of exactly Params.Samples() elements.
type Capture struct {
	Params Parameters
	I      []int8
	Q      []int8
	// Pairs is the number of complete pairs found in the file before
	// resizing.
	Pairs int
}

// Load opens and decodes the capture file at path.
func Load(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileOpenError{Path: path, Op: "read", Err: err}
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a header and the sample stream that follows it. Consecutive
// bytes are de-interleaved into I and Q until EOF. Both sequences are then
// truncated or zero-padded to blockLength*blockCount elements.
func Decode(r io.Reader) (*Capture, error) {
	return DecodeLimit(r, MaxSamples)
}

// DecodeLimit is Decode for captures of at most maxSamples pairs. Larger
// headers fail with ErrTooLarge before any sample buffer is allocated.
func DecodeLimit(r io.Reader, maxSamples int) (*Capture, error) {
	br := bufio.NewReader(r)
	p, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	total := p.Samples()
	if total > maxSamples {
		return nil, fmt.Errorf("%w: %d samples declared, at most %d accepted", ErrTooLarge, total, maxSamples)
	}

	raw, err := io.ReadAll(io.LimitReader(br, 2*int64(total)))
	if err != nil {
		return nil, err
	}

	c := &Capture{
		Params: p,
		I:      make([]int8, total),
		Q:      make([]int8, total),
		Pairs:  len(raw) / 2,
	}
	for n, b := range raw {
		if n%2 == 0 {
			c.I[n/2] = int8(b)
		} else {
			c.Q[n/2] = int8(b)
		}
	}
	return c, nil
}

// Truncated reports whether the file held fewer pairs than its header declares.
func (c *Capture) Truncated() bool {
	return c.Pairs < c.Params.Samples()
}
