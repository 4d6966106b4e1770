package hackrf

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
	SourceName    = "hackrf"
	infoAlias     = "hackrf_info"
	transferAlias = "hackrf_transfer"

	maxLNAGain = 40 // dB, 8dB steps
	maxVGAGain = 62 // dB, 2dB steps
)

// Driver finds HackRF boards with hackrf_info and streams with hackrf_transfer,
// which already emits signed 8-bit I/Q.
type Driver struct{}

func (Driver) Name() string {
	return SourceName
}

func (d Driver) Enumerate() ([]sdr.Descriptor, error) {
	cmd := exec.Command(infoAlias)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("unable to run %s: %w", infoAlias, err)
		}
		glog.V(1).Infof("%s exited with %s", infoAlias, err)
	}
	return parseInfo(out)
}

// Older firmware prints the serial as four space separated hex words.
var serialCleaner = strings.NewReplacer(" ", "", "0x", "")

// parseInfo extracts one descriptor per "Serial number:" line.
func parseInfo(out []byte) ([]sdr.Descriptor, error) {
	var devices []sdr.Descriptor
	board := ""
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		glog.V(3).Info(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Board ID Number":
			board = value
			if len(devices) > 0 && devices[len(devices)-1].Label == "" {
				devices[len(devices)-1].Label = board
			}
		case "Serial number":
			devices = append(devices, sdr.Descriptor{
				Driver: SourceName,
				Serial: serialCleaner.Replace(value),
			})
		}
	}
	return devices, scanner.Err()
}

func (d Driver) Open(desc sdr.Descriptor) (sdr.Device, error) {
	if desc.Serial == "" {
		return nil, errors.New("hackrf descriptor without serial number")
	}
	return &Device{serial: desc.Serial}, nil
}

// Device holds the configuration passed to hackrf_transfer when the stream
// is activated.
type Device struct {
	serial     string
	sampleRate float64
	freq       float64
	gain       int
	bandwidth  int
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
	d.bandwidth = hz
	return nil
}

// splitGain distributes a total gain over the LNA (IF) and VGA (baseband) stages.
func splitGain(db int) (lna, vga int) {
	if db < 0 {
		db = 0
	}
	lna = min(maxLNAGain, db/8*8)
	vga = min(maxVGAGain, (db-lna)/2*2)
	return lna, vga
}

func (d *Device) OpenStream() (sdr.Stream, error) {
	if d.released {
		return nil, errors.New("device already released")
	}
	if _, err := exec.LookPath(transferAlias); err != nil {
		return nil, err
	}
	lna, vga := splitGain(d.gain)
	args := []string{
		"-d", d.serial,
		"-r", "-", // dumps samples to stdout
		"-f", strconv.FormatInt(int64(d.freq), 10),
		"-s", strconv.FormatInt(int64(d.sampleRate), 10),
		"-l", strconv.Itoa(lna),
		"-g", strconv.Itoa(vga),
	}
	if d.bandwidth > 0 {
		args = append(args, "-b", strconv.Itoa(d.bandwidth))
	}
	return &sdr.ProcessStream{
		Tool:   transferAlias,
		Args:   args,
		Decode: sdr.SignedDecoder,
	}, nil
}

func (d *Device) Release() error {
	if d.released {
		return errors.New("device already released")
	}
	d.released = true
	return nil
}
