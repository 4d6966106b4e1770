package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/spectrum"
)

// CSV writes one line per bin, to stdout unless Out is set.
type CSV struct {
	Out io.Writer
}

func (c *CSV) Write(ctx context.Context, bins <-chan spectrum.Bin) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := csv.NewWriter(out)
	w.Write([]string{
		"Source",
		"Identifier",
		"Bin",
		"FreqCenter",
		"FreqLow",
		"FreqHigh",
		"dB",
		"BlockLength",
		"BlockCount",
		"CreatedUnixMilli",
	})

	for b := range bins {
		if err := w.Write([]string{
			b.Source,
			b.Identifier,
			fmt.Sprintf("%d", b.Bin),
			fmt.Sprintf("%d", b.FreqCenter),
			fmt.Sprintf("%d", b.FreqLow),
			fmt.Sprintf("%d", b.FreqHigh),
			fmt.Sprintf("%f", b.DB),
			fmt.Sprintf("%d", b.BlockLength),
			fmt.Sprintf("%d", b.BlockCount),
			fmt.Sprintf("%d", b.Created.UnixMilli()),
		}); err != nil {
			glog.Warningf("error while writing CSV line: %s\n", err)
		}
	}
	w.Flush()
	return w.Error()
}
