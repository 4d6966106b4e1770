package rtlsdr

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/sdr"
)

const (
	SourceName  = "rtl_sdr"
	testAlias   = "rtl_test"
	streamAlias = "rtl_sdr"
)

// Driver finds dongles with rtl_test and streams with rtl_sdr. rtl_sdr emits
// unsigned 8-bit I/Q which is shifted to signed samples.
type Driver struct{}

func (Driver) Name() string {
	return SourceName
}

func (d Driver) Enumerate() ([]sdr.Descriptor, error) {
	// -t only probes the tuner and exits.
	cmd := exec.Command(testAlias, "-t")
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("unable to run %s: %w", testAlias, err)
		}
		glog.V(1).Infof("%s exited with %s", testAlias, err)
	}
	return parseDeviceList(out)
}

// parseDeviceList reads the "Found N device(s):" section of rtl_test, e.g.
//
//	Found 1 device(s):
//	  0:  Realtek, RTL2838UHIDIR, SN: 00000001
func parseDeviceList(out []byte) ([]sdr.Descriptor, error) {
	var devices []sdr.Descriptor
	listing := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		glog.V(3).Info(line)
		if strings.HasPrefix(line, "Found ") && strings.Contains(line, "device(s)") {
			listing = true
			continue
		}
		if !listing {
			continue
		}
		idx, label, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			break
		}
		if _, err := strconv.Atoi(idx); err != nil {
			break
		}
		devices = append(devices, sdr.Descriptor{
			Driver: SourceName,
			Serial: idx,
			Label:  strings.TrimSpace(label),
		})
	}
	return devices, scanner.Err()
}

func (d Driver) Open(desc sdr.Descriptor) (sdr.Device, error) {
	if _, err := strconv.Atoi(desc.Serial); err != nil {
		return nil, fmt.Errorf("invalid rtl_sdr device index %q: %w", desc.Serial, err)
	}
	return &Device{index: desc.Serial}, nil
}

// Device holds the configuration passed to rtl_sdr when the stream is
// activated.
type Device struct {
	index      string
	sampleRate float64
	freq       float64
	gain       int
	released   bool
}

func (d *Device) SetSampleRate(hz float64) error {
	d.sampleRate = hz
	return nil
}

func (d *Device) SetFrequency(hz float64) error {
	d.freq = hz
	return nil
}

func (d *Device) SetGain(db int) error {
	d.gain = db
	return nil
}

func (d *Device) SetBandwidth(hz int) error {
	glog.Warningf("%s does not support setting the bandwidth, ignoring %d Hz", streamAlias, hz)
	return nil
}

func (d *Device) OpenStream() (sdr.Stream, error) {
	if d.released {
		return nil, errors.New("device already released")
	}
	if _, err := exec.LookPath(streamAlias); err != nil {
		return nil, err
	}
	args := []string{
		"-d", d.index,
		"-f", strconv.FormatInt(int64(d.freq), 10),
		"-s", strconv.FormatInt(int64(d.sampleRate), 10),
		"-g", strconv.Itoa(d.gain), // 0 selects automatic gain
		"-", // dumps samples to stdout
	}
	return &sdr.ProcessStream{
		Tool:   streamAlias,
		Args:   args,
		Decode: sdr.UnsignedDecoder,
	}, nil
}

func (d *Device) Release() error {
	if d.released {
		return errors.New("device already released")
	}
	d.released = true
	return nil
}
