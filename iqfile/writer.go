package iqfile

import (
	"bufio"
	"os"

	"github.com/hb9tf/iqscope/sdr"
)

// Writer appends sample pairs to a capture file after its header.
type Writer struct {
	f   *os.File
	buf *bufio.Writer
	n   int
}

// Create truncates or creates path and writes the header for p.
func Create(path string, p Parameters) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &FileOpenError{Path: path, Op: "write", Err: err}
	}
	w := &Writer{
		f:   f,
		buf: bufio.NewWriter(f),
	}
	if err := WriteHeader(w.buf, p); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteSamples appends each sample as two raw bytes, I then Q.
func (w *Writer) WriteSamples(samples []sdr.Sample) error {
	for _, s := range samples {
		if err := w.buf.WriteByte(byte(s.I)); err != nil {
			return err
		}
		if err := w.buf.WriteByte(byte(s.Q)); err != nil {
			return err
		}
	}
	w.n += len(samples)
	return nil
}

// Written returns the number of samples appended so far.
func (w *Writer) Written() int {
	return w.n
}

// Close flushes buffered samples and closes the file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
