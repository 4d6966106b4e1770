package sdr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/golang/glog"
)

// Decoder converts one raw byte pair emitted by a tool into a Sample.
type Decoder func(i, q byte) Sample

// SignedDecoder reads the bytes as signed 8-bit values.
func SignedDecoder(i, q byte) Sample {
	return Sample{I: int8(i), Q: int8(q)}
}

// UnsignedDecoder shifts offset binary bytes (zero at 128) to signed values.
func UnsignedDecoder(i, q byte) Sample {
	return Sample{I: int8(i ^ 0x80), Q: int8(q ^ 0x80)}
}

type deadliner interface {
	SetReadDeadline(time.Time) error
}

// ProcessStream is a Stream backed by a vendor tool which writes raw
// interleaved I/Q bytes to its stdout.
type ProcessStream struct {
	Tool   string
	Args   []string
	Decode Decoder

	cmd     *exec.Cmd
	out     io.ReadCloser
	raw     []byte
	pending []byte
}

func (s *ProcessStream) Activate() error {
	if s.cmd != nil {
		return errors.New("stream already active")
	}
	cmd := exec.Command(s.Tool, s.Args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	glog.Infof("running %q", cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to start %s: %w", s.Tool, err)
	}
	s.cmd = cmd
	s.out = out
	return nil
}

func (s *ProcessStream) ReadBlock(buf []Sample, timeout time.Duration) (int, error) {
	if s.cmd == nil {
		return 0, errors.New("stream not active")
	}
	need := 2*len(buf) - len(s.pending)
	if cap(s.raw) < 2*len(buf) {
		s.raw = make([]byte, 2*len(buf))
	}
	raw := append(s.raw[:0], s.pending...)
	s.pending = s.pending[:0]

	if d, ok := s.out.(deadliner); ok && timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			glog.V(2).Infof("read deadline not supported on %s output: %s", s.Tool, err)
		}
	}
	n, err := io.ReadFull(s.out, raw[len(raw):len(raw)+need])
	raw = raw[:len(raw)+n]

	samples := len(raw) / 2
	for k := 0; k < samples; k++ {
		buf[k] = s.Decode(raw[2*k], raw[2*k+1])
	}
	if len(raw)%2 == 1 {
		s.pending = append(s.pending, raw[len(raw)-1])
	}

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return samples, ErrTimeout
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return samples, fmt.Errorf("%s output ended: %w", s.Tool, io.EOF)
	}
	return samples, err
}

func (s *ProcessStream) Deactivate() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	if cmd.ProcessState == nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			glog.Warningf("unable to stop %s: %s", s.Tool, err)
		}
	}
	// The tool is killed on purpose, so its exit status carries no information.
	if err := cmd.Wait(); err != nil {
		glog.V(2).Infof("%s exited: %s", s.Tool, err)
	}
	return nil
}

func (s *ProcessStream) Close() error {
	return s.Deactivate()
}
