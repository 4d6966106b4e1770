package export

import (
	"context"

	"github.com/hb9tf/iqscope/spectrum"
)

type Exporter interface {
	Write(context.Context, <-chan spectrum.Bin) error
}

// Send feeds bins into a channel that is closed after the last one, or as
// soon as ctx is done.
func Send(ctx context.Context, bins []spectrum.Bin) <-chan spectrum.Bin {
	c := make(chan spectrum.Bin)
	go func() {
		defer close(c)
		for _, b := range bins {
			select {
			case c <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return c
}
