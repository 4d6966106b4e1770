package spectrum

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/hb9tf/iqscope/iqfile"
	"github.com/hb9tf/iqscope/sdr"
)

var scenarioParams = iqfile.Parameters{
	CenterFrequency: 105500000.0,
	SampleRate:      250000.0,
	BlockCount:      2,
	BlockLength:     4,
	Gain:            30,
	Bandwidth:       40000,
}

func writeCapture(t *testing.T, p iqfile.Parameters, samples []sdr.Sample) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.iq")
	w, err := iqfile.Create(path, p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func pseudoRandomSamples(n int) []sdr.Sample {
	out := make([]sdr.Sample, n)
	x := uint32(2463534242)
	for k := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[k] = sdr.Sample{I: int8(x), Q: int8(x >> 8)}
	}
	return out
}

func relClose(got, want, tol float64) bool {
	if got == want {
		return true
	}
	return math.Abs(got-want) <= tol*math.Abs(want)
}

func TestEstimateImpulses(t *testing.T) {
	path := writeCapture(t, scenarioParams, []sdr.Sample{
		{I: 3, Q: 4}, {I: 0, Q: 0}, {I: 0, Q: 0}, {I: 0, Q: 0},
		{I: 0, Q: 2}, {I: 0, Q: 0}, {I: 0, Q: 0}, {I: 0, Q: 0},
	})
	p, s, err := Estimate(path)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if p != scenarioParams {
		t.Fatalf("params=%+v want=%+v", p, scenarioParams)
	}
	// Every bin of an impulse transform equals the impulse value:
	// real^2 sums to 9, imag^2 to 16+4, both divided by 2^2.
	want := 20 * math.Log10(math.Sqrt(9.0/4+20.0/4))
	if len(s) != 4 {
		t.Fatalf("len=%d want=4", len(s))
	}
	for k, v := range s {
		if !relClose(v, want, 1e-9) {
			t.Errorf("bin %d=%v want=%v", k, v, want)
		}
	}
}

func TestEstimateToneAndAlternation(t *testing.T) {
	path := writeCapture(t, scenarioParams, []sdr.Sample{
		{I: 1, Q: 1}, {I: 1, Q: 1}, {I: 1, Q: 1}, {I: 1, Q: 1},
		{I: 1, Q: 0}, {I: -1, Q: 0}, {I: 1, Q: 0}, {I: -1, Q: 0},
	})
	_, s, err := Estimate(path)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	// Block 0 puts 4+4i into bin 0, block 1 puts 4 into bin 2.
	if want := 20 * math.Log10(math.Sqrt(16.0/4+16.0/4)); !relClose(s[0], want, 1e-9) {
		t.Errorf("bin 0=%v want=%v", s[0], want)
	}
	if want := 20 * math.Log10(math.Sqrt(16.0/4)); !relClose(s[2], want, 1e-9) {
		t.Errorf("bin 2=%v want=%v", s[2], want)
	}
	for _, k := range []int{1, 3} {
		if !(math.IsInf(s[k], -1) || s[k] < -200) {
			t.Errorf("bin %d=%v want -Inf or below -200 dB", k, s[k])
		}
	}
}

func TestSingleBlockMatchesDirectTransform(t *testing.T) {
	p := scenarioParams
	p.BlockLength = 16
	p.BlockCount = 1
	samples := pseudoRandomSamples(16)

	tr, err := NewTransformer(BackendGonum, 16)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]complex128, 16)
	i := make([]int8, 16)
	q := make([]int8, 16)
	for k, smp := range samples {
		in[k] = complex(float64(smp.I), float64(smp.Q))
		i[k], q[k] = smp.I, smp.Q
	}
	out := tr.Forward(nil, in)

	got := Compute(p, i, q, tr)
	for k, c := range out {
		// Explicit conversions keep the compiler from fusing into an FMA.
		want := 20 * math.Log10(math.Sqrt(float64(real(c)*real(c))+float64(imag(c)*imag(c))))
		if math.Float64bits(got[k]) != math.Float64bits(want) {
			t.Errorf("bin %d=%v want=%v", k, got[k], want)
		}
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	p := scenarioParams
	p.BlockLength = 64
	p.BlockCount = 8
	path := writeCapture(t, p, pseudoRandomSamples(p.Samples()))

	_, first, err := Estimate(path)
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := Estimate(path)
	if err != nil {
		t.Fatal(err)
	}
	for k := range first {
		if math.Float64bits(first[k]) != math.Float64bits(second[k]) {
			t.Fatalf("bin %d differs: %v != %v", k, first[k], second[k])
		}
	}
}

func TestSpectrumLengthAndFiniteness(t *testing.T) {
	for _, blocks := range []int32{1, 2, 5} {
		p := scenarioParams
		p.BlockLength = 32
		p.BlockCount = blocks
		path := writeCapture(t, p, pseudoRandomSamples(p.Samples()))
		_, s, err := Estimate(path)
		if err != nil {
			t.Fatalf("blocks=%d: %v", blocks, err)
		}
		if len(s) != 32 {
			t.Fatalf("blocks=%d: len=%d want=32", blocks, len(s))
		}
		for k, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 1) {
				t.Errorf("blocks=%d bin %d=%v", blocks, k, v)
			}
		}
	}
}

func TestEstimateTruncatedFile(t *testing.T) {
	p := scenarioParams
	p.BlockLength = 8
	p.BlockCount = 3
	path := writeCapture(t, p, pseudoRandomSamples(5))

	res, err := (&Estimator{}).Estimate(path)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if !res.Truncated {
		t.Errorf("expected truncated result")
	}
	if len(res.Spectrum) != 8 {
		t.Fatalf("len=%d want=8", len(res.Spectrum))
	}
}

func TestBackendsAgree(t *testing.T) {
	for _, l := range []int32{16, 12} {
		p := scenarioParams
		p.BlockLength = l
		p.BlockCount = 4
		path := writeCapture(t, p, pseudoRandomSamples(p.Samples()))

		a, err := (&Estimator{Backend: BackendGonum}).Estimate(path)
		if err != nil {
			t.Fatal(err)
		}
		b, err := (&Estimator{Backend: BackendGoDSP}).Estimate(path)
		if err != nil {
			t.Fatal(err)
		}
		if a.Backend != BackendGonum || b.Backend != BackendGoDSP {
			t.Fatalf("backends=%q,%q", a.Backend, b.Backend)
		}
		for k := range a.Spectrum {
			if math.Abs(a.Spectrum[k]-b.Spectrum[k]) > 1e-6 {
				t.Errorf("L=%d bin %d: gonum=%v godsp=%v", l, k, a.Spectrum[k], b.Spectrum[k])
			}
		}
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := NewTransformer("fftw", 8); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestEstimateErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Estimate(filepath.Join(dir, "nope.iq"))
	var openErr *iqfile.FileOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("err=%v want *iqfile.FileOpenError", err)
	}

	p := scenarioParams
	p.BlockCount = 0
	path := writeCapture(t, p, nil)
	if _, _, err := Estimate(path); !errors.Is(err, iqfile.ErrInvalidHeader) {
		t.Fatalf("err=%v want ErrInvalidHeader", err)
	}
}

func TestCaptureCenter(t *testing.T) {
	for _, l := range []int32{4, 5} {
		p := scenarioParams
		p.BlockLength = l
		res := &Result{Params: p, Spectrum: make(Spectrum, l)}
		for _, b := range Bins(res, "id", "capture.iq", time.Time{}) {
			if got := b.CaptureCenter(); got != p.CenterFrequency {
				t.Errorf("L=%d bin %d: center=%v want %v", l, b.Bin, got, p.CenterFrequency)
			}
		}
	}
}
