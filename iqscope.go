package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/iqscope/export"
	"github.com/hb9tf/iqscope/filter"
	"github.com/hb9tf/iqscope/hackrf"
	"github.com/hb9tf/iqscope/iqfile"
	"github.com/hb9tf/iqscope/plot"
	"github.com/hb9tf/iqscope/recorder"
	"github.com/hb9tf/iqscope/rtlsdr"
	"github.com/hb9tf/iqscope/sdr"
	"github.com/hb9tf/iqscope/settings"
	"github.com/hb9tf/iqscope/spectrum"
)

// Flags
var (
	outFile      = flag.String("o", "", "capture into this file (generated name when empty)")
	plotFile     = flag.String("p", "", "estimate and plot the spectrum of this capture file")
	showSettings = flag.Bool("S", false, "show the current settings")
	settingsFile = flag.String("settings", settings.DefaultPath, "file the settings are persisted in")

	// Persisted settings, parsed by the settings package so that bad values
	// only produce a warning.
	settingFlags = map[string]settings.Field{
		"s": settings.SampleRate,
		"f": settings.Frequency,
		"g": settings.Gain,
		"b": settings.Bandwidth,
		"l": settings.BlockLength,
		"n": settings.BlockCount,
	}
	_ = flag.String("s", "", "set the sample rate in samples/sec")
	_ = flag.String("f", "", "set the center frequency in Hz")
	_ = flag.String("g", "", "set the gain in dB")
	_ = flag.String("b", "", "set the bandwidth in Hz")
	_ = flag.String("l", "", "set the block length in samples")
	_ = flag.String("n", "", "set the number of blocks")

	// Capture
	sdrType     = flag.String("sdr", rtlsdr.SourceName, "SDR to use (one of: hackrf, rtl_sdr)")
	readTimeout = flag.Duration("timeout", recorder.DefaultReadTimeout, "maximum time to wait for one block")
	strict      = flag.Bool("strict", false, "abort the capture when a block is incomplete")

	// Estimation
	identifier = flag.String("id", "", "identifier of the estimated spectrum (defaults to a random UUID)")
	fftBackend = flag.String("fft", spectrum.BackendGonum, "FFT implementation (one of: gonum, godsp)")
	plotType   = flag.String("plot", "png", "plot output (one of: png, gnuplot, none)")
	plotPath   = flag.String("plotPath", "", "image to render for -plot=png (defaults to the capture file name with .png)")
	output     = flag.String("output", "none", "Export mechanism to use (one of: none, csv, sqlite, mysql, server)")
	freqLow    = flag.Int64("freqLow", 0, "Only export bins reaching up to at least this frequency in Hz (0 for no bound).")
	freqHigh   = flag.Int64("freqHigh", 0, "Only export bins starting at or below this frequency in Hz (0 for no bound).")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/iqscope", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "iqscope", "Name of the DB to use.")

	// iqscope server
	serverURL  = flag.String("server", "https://localhost:8443", "URL scheme, address and port of the iqscope server.")
	serverBins = flag.Int("serverBins", 0, "Defines how many bins should be sent to the server at once.")
)

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	given := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { given[f.Name] = true })

	params, updated := resolveSettings(given)
	if *showSettings {
		settings.Print(os.Stdout, params)
	}
	if updated {
		if err := settings.Save(*settingsFile, params); err != nil {
			glog.Warningf("%s", err)
		} else {
			fmt.Printf("Settings saved to %s\n", *settingsFile)
		}
	}

	switch {
	case given["p"]:
		if *plotFile == "" {
			glog.Exit("-p: file name missing")
		}
		if err := estimate(ctx, *plotFile); err != nil {
			glog.Exit(err)
		}
	case given["o"] || (!updated && !*showSettings):
		if err := capture(params); err != nil {
			glog.Exit(err)
		}
	}
}

// resolveSettings merges defaults, the settings file and command line
// overrides, in that order of precedence.
func resolveSettings(given map[string]bool) (iqfile.Parameters, bool) {
	params, err := settings.Load(*settingsFile, settings.Defaults())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		glog.Warningf("cannot find settings file %q, creating a new one with defaults", *settingsFile)
		if err := settings.Save(*settingsFile, params); err != nil {
			glog.Warningf("%s", err)
		}
	case err != nil:
		glog.Warningf("some settings in %q were ignored: %s", *settingsFile, err)
	}

	updated := false
	for name, field := range settingFlags {
		if !given[name] {
			continue
		}
		raw := flag.Lookup(name).Value.String()
		if err := settings.Set(&params, field, raw); err != nil {
			glog.Warningf("-%s: %s, keeping %s", name, err, settings.Get(params, field))
			continue
		}
		fmt.Printf("New %s: %s\n", field, settings.Get(params, field))
		updated = true
	}
	return params, updated
}

func newDriver(name string) (sdr.Driver, error) {
	switch strings.ToLower(name) {
	case hackrf.SourceName:
		return hackrf.Driver{}, nil
	case rtlsdr.SourceName, "rtlsdr":
		return rtlsdr.Driver{}, nil
	}
	return nil, fmt.Errorf("%q is not a supported SDR type, pick one of: hackrf, rtl_sdr", name)
}

// captureName returns raw if it is a usable file name and the default name
// for now otherwise.
func captureName(raw string, now time.Time) string {
	if raw == "" {
		return iqfile.DefaultName(now)
	}
	if err := iqfile.ValidateName(raw); err != nil {
		glog.Warningf("%s, using the default file name", err)
		return iqfile.DefaultName(now)
	}
	return raw
}

func capture(params iqfile.Parameters) error {
	name := captureName(*outFile, time.Now())

	drv, err := newDriver(*sdrType)
	if err != nil {
		return err
	}

	fmt.Printf("Starting measurement, results go to %s\n", name)
	res, err := recorder.Capture(drv, params, name, &recorder.Options{
		ReadTimeout: *readTimeout,
		Strict:      *strict,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Captured %d samples from %s into %s", res.Samples, res.Device, name)
	if res.ShortBlocks > 0 {
		fmt.Printf(" (%d incomplete blocks)", res.ShortBlocks)
	}
	fmt.Println()
	return nil
}

func estimate(ctx context.Context, source string) error {
	if !iqfile.HasExtension(source) {
		glog.Warningf("%q does not have the %s extension", source, iqfile.Extension)
	}
	est := &spectrum.Estimator{Backend: *fftBackend}
	res, err := est.Estimate(source)
	if err != nil {
		return err
	}
	p := res.Params
	fmt.Printf("current frequency: %s\n", plot.GetReadableFreq(int64(p.CenterFrequency)))
	fmt.Printf("current sample rate: %.0f\n", p.SampleRate)
	fmt.Printf("current block length: %d\n", p.BlockLength)
	fmt.Printf("current number of blocks: %d\n", p.BlockCount)
	fmt.Printf("current gain: %d\n", p.Gain)
	fmt.Printf("current bandwidth: %d\n", p.Bandwidth)

	sum := spectrum.Summarize(p, res.Spectrum)
	if sum.PeakBin >= 0 {
		fmt.Printf("peak: bin %d (%s) at %.2f dB, mean %.2f dB\n", sum.PeakBin, plot.GetReadableFreq(int64(sum.PeakFrequency)), sum.MaxDB, sum.MeanDB)
	}

	if err := render(res, source); err != nil {
		return err
	}
	return exportSpectrum(ctx, res, source)
}

func render(res *spectrum.Result, source string) error {
	var sink plot.Sink
	switch strings.ToLower(*plotType) {
	case "png":
		path := *plotPath
		if path == "" {
			path = strings.TrimSuffix(source, filepath.Ext(source)) + ".png"
		}
		sink = &plot.PNG{Path: path}
		fmt.Printf("Writing spectrum plot to %q\n", path)
	case "gnuplot":
		sink = &plot.Gnuplot{}
		fmt.Println("Now plotting...")
	case "none", "":
		return nil
	default:
		return fmt.Errorf("%q is not a supported plot output, pick one of: png, gnuplot, none", *plotType)
	}
	return sink.Plot(res.Spectrum, plot.SpectrumConfig(len(res.Spectrum), res.Params.CenterFrequency))
}

func exportSpectrum(ctx context.Context, res *spectrum.Result, source string) error {
	var exporter export.Exporter
	switch strings.ToLower(*output) {
	case "none", "":
		return nil
	case "csv":
		exporter = &export.CSV{}
	case "sqlite":
		db, err := export.OpenSQLite(*sqliteFile)
		if err != nil {
			return err
		}
		defer db.Close()
		exporter = &export.SQL{DB: db, Dialect: "sqlite3"}
	case "mysql":
		db, err := export.OpenMySQL(export.MySQLOptions{
			Server:       *mysqlServer,
			User:         *mysqlUser,
			PasswordFile: *mysqlPasswordFile,
			DBName:       *mysqlDBName,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		exporter = &export.SQL{DB: db, Dialect: "mysql"}
	case "server":
		exporter = &export.Server{
			Server:         *serverURL,
			SendBinsAmount: *serverBins,
		}
	default:
		return fmt.Errorf("%q is not a supported export method, pick one of: none, csv, sqlite, mysql, server", *output)
	}

	if *identifier == "" {
		*identifier = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	bins := export.Send(ctx, spectrum.Bins(res, *identifier, filepath.Base(source), time.Now()))
	if filters := exportFilters(*output, *freqLow, *freqHigh); len(filters) > 0 {
		filtered := make(chan spectrum.Bin)
		go filter.Filter(ctx, bins, filtered, filters)
		bins = filtered
	}
	if err := exporter.Write(ctx, bins); err != nil {
		return err
	}
	fmt.Printf("Exported spectrum %s via %s\n", *identifier, *output)
	return nil
}

// exportFilters returns the filters applied before writing to output. Bounds
// of 0 are open.
func exportFilters(output string, low, high int64) []filter.Filterer {
	var filters []filter.Filterer
	if strings.ToLower(output) != "csv" {
		filters = append(filters, filter.FilterNonFinite{})
	}
	if low > 0 || high > 0 {
		if high <= 0 {
			high = math.MaxInt64
		}
		filters = append(filters, &filter.FilterFreq{FreqLow: low, FreqHigh: high})
	}
	return filters
}
