// Package recorder captures fixed-size blocks of I/Q samples from the first
// available receiver into a capture file.
package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/iqfile"
	"github.com/hb9tf/iqscope/sdr"
)

// DefaultReadTimeout bounds the wait for a single block.
const DefaultReadTimeout = time.Second

var (
	ErrNoDeviceFound = errors.New("no receiver device found")
	ErrDeviceOpen    = errors.New("unable to open receiver device")
	ErrStreamSetup   = errors.New("unable to set up receive stream")
	ErrShortRead     = errors.New("short block read")
)

type Options struct {
	// ReadTimeout per block, DefaultReadTimeout when zero.
	ReadTimeout time.Duration
	// Strict turns an incomplete block into ErrShortRead. Otherwise the
	// samples that did arrive are written and capture continues.
	Strict bool
}

// Result summarizes a finished capture.
type Result struct {
	Device      sdr.Descriptor
	Samples     int
	ShortBlocks int
}

// Capture records p.BlockCount blocks of p.BlockLength samples from the first
// device reported by drv into dest. The device, the stream and the file are
// released on every return path.
func Capture(drv sdr.Driver, p iqfile.Parameters, dest string, opts *Options) (res *Result, err error) {
	if opts == nil {
		opts = &Options{}
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to capture: %w", err)
	}

	devices, err := drv.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerating %s devices: %s", ErrNoDeviceFound, drv.Name(), err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s reported no devices", ErrNoDeviceFound, drv.Name())
	}
	for i, d := range devices {
		glog.Infof("found device #%d: %s", i, d)
	}
	res = &Result{Device: devices[0]}

	w, err := iqfile.Create(dest, p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("unable to finish %q: %w", dest, cerr)
		}
		res.Samples = w.Written()
	}()

	dev, err := drv.Open(res.Device)
	if err != nil {
		return res, fmt.Errorf("%w %s: %s", ErrDeviceOpen, res.Device, err)
	}
	defer func() {
		if rerr := dev.Release(); rerr != nil {
			glog.Warningf("unable to release %s: %s", res.Device, rerr)
		}
	}()

	configure(dev, p)

	stream, err := dev.OpenStream()
	if err != nil {
		return res, fmt.Errorf("%w: %s", ErrStreamSetup, err)
	}
	defer func() {
		if derr := stream.Deactivate(); derr != nil {
			glog.Warningf("unable to deactivate stream: %s", derr)
		}
		if cerr := stream.Close(); cerr != nil {
			glog.Warningf("unable to close stream: %s", cerr)
		}
	}()
	if err := stream.Activate(); err != nil {
		return res, fmt.Errorf("%w: activating: %s", ErrStreamSetup, err)
	}

	buf := make([]sdr.Sample, p.BlockLength)
	for b := 0; b < int(p.BlockCount); b++ {
		n, rerr := stream.ReadBlock(buf, timeout)
		if rerr != nil && !errors.Is(rerr, sdr.ErrTimeout) {
			if werr := w.WriteSamples(buf[:n]); werr != nil {
				glog.Warningf("unable to write partial block %d: %s", b, werr)
			}
			return res, fmt.Errorf("reading block %d: %w", b, rerr)
		}
		if n < len(buf) {
			if opts.Strict {
				return res, fmt.Errorf("%w: block %d has %d of %d samples", ErrShortRead, b, n, len(buf))
			}
			res.ShortBlocks++
			glog.Warningf("block %d: got %d of %d samples within %s", b, n, len(buf), timeout)
		}
		if err := w.WriteSamples(buf[:n]); err != nil {
			return res, fmt.Errorf("writing block %d: %w", b, err)
		}
		glog.V(2).Infof("block %d/%d: %d samples", b+1, p.BlockCount, n)
	}

	return res, nil
}

// configure applies p to the receive channel. Failures are not fatal, the
// device keeps whatever it accepted.
func configure(dev sdr.Device, p iqfile.Parameters) {
	if err := dev.SetSampleRate(p.SampleRate); err != nil {
		glog.Warningf("unable to set sample rate to %.0f Hz: %s", p.SampleRate, err)
	}
	if err := dev.SetFrequency(p.CenterFrequency); err != nil {
		glog.Warningf("unable to set frequency to %.0f Hz: %s", p.CenterFrequency, err)
	}
	if err := dev.SetGain(int(p.Gain)); err != nil {
		glog.Warningf("unable to set gain to %d dB: %s", p.Gain, err)
	}
	if err := dev.SetBandwidth(int(p.Bandwidth)); err != nil {
		glog.Warningf("unable to set bandwidth to %d Hz: %s", p.Bandwidth, err)
	}
}
