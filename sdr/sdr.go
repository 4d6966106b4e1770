package sdr

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Stream.ReadBlock when the timeout elapsed before
// the block was complete. The returned count holds what was read.
var ErrTimeout = errors.New("stream read timed out")

// Sample is one complex baseband sample in the receiver's raw signed 8-bit
// quantization.
type Sample struct {
	I int8
	Q int8
}

// Descriptor identifies an enumerated receiver.
type Descriptor struct {
	Driver string
	// Serial or index as understood by the driver's tools.
	Serial string
	Label  string
}

func (d Descriptor) String() string {
	if d.Label == "" {
		return d.Driver + ":" + d.Serial
	}
	return d.Driver + ":" + d.Serial + " (" + d.Label + ")"
}

// Driver discovers and opens receivers of one kind.
type Driver interface {
	Name() string
	Enumerate() ([]Descriptor, error)
	Open(Descriptor) (Device, error)
}

// Device is an opened receiver. Setters are best effort and apply to its
// first receive channel.
type Device interface {
	SetSampleRate(hz float64) error
	SetFrequency(hz float64) error
	SetGain(db int) error
	SetBandwidth(hz int) error
	// OpenStream opens a receive stream of 8-bit complex samples.
	OpenStream() (Stream, error)
	// Release frees the device handle. It must be called exactly once.
	Release() error
}

// Stream delivers blocks of samples between Activate and Deactivate.
type Stream interface {
	Activate() error
	// ReadBlock fills buf and returns the number of samples read. It returns
	// ErrTimeout with a short count when timeout elapsed first.
	ReadBlock(buf []Sample, timeout time.Duration) (int, error)
	Deactivate() error
	Close() error
}
