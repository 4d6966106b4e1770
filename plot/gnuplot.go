package plot

import (
	"bytes"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

const gnuplotAlias = "gnuplot"

// Gnuplot pipes the values into an interactive gnuplot window.
type Gnuplot struct {
	// Tool overrides the gnuplot binary.
	Tool string
}

func (g *Gnuplot) Plot(values []float64, cfg Config) error {
	tool := g.Tool
	if tool == "" {
		tool = gnuplotAlias
	}
	cmd := exec.Command(tool, "-persist")
	cmd.Stdin = strings.NewReader(Script(values, cfg))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	glog.Infof("running %q", cmd)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", tool, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Script returns the gnuplot program plotting values with cfg, including the
// inline data terminated by "e".
func Script(values []float64, cfg Config) string {
	var b strings.Builder
	b.WriteString("set nokey\n")
	if cfg.LogY {
		b.WriteString("set logscale y\n")
	}
	fmt.Fprintf(&b, "set title '%s'\n", strings.ReplaceAll(cfg.Title, "'", "''"))
	if cfg.XMax > cfg.XMin {
		fmt.Fprintf(&b, "set xrange[%s:%s]\n", fmtNum(cfg.XMin), fmtNum(cfg.XMax))
	}
	fmt.Fprintf(&b, "set yrange[%s:]\n", fmtNum(cfg.YMin))
	b.WriteString("plot '-' smooth acsplines\n")
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteString("NaN\n")
			continue
		}
		b.WriteString(fmtNum(v))
		b.WriteByte('\n')
	}
	b.WriteString("e\n")
	return b.String()
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
