package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/export"
	"github.com/hb9tf/iqscope/iqfile"
	"github.com/hb9tf/iqscope/plot"
	"github.com/hb9tf/iqscope/spectrum"
)

var (
	listen    = flag.String("listen", ":8443", "")
	certFile  = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile   = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
	output    = flag.String("output", "sqlite", "Storage to use (one of: sqlite, mysql)")
	fft       = flag.String("fft", spectrum.BackendGonum, "FFT implementation used for uploaded captures (one of: gonum, godsp)")
	maxUpload = flag.Int64("maxUpload", 64<<20, "Maximum size in bytes of an uploaded capture file.")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/iqscope", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "iqscope", "Name of the DB to use.")
)

const (
	estimateEndpoint = "/iqscope/v1/estimate"
	spectraEndpoint  = "/iqscope/v1/spectra/:id"
	captureFormField = "capture"
)

// IQScopeServer stores collected spectra and estimates uploaded captures.
type IQScopeServer struct {
	store     *export.SQL
	estimator *spectrum.Estimator
	maxUpload int64
}

// EstimateResponse is the JSON reply of the estimate endpoint. Bins without a
// finite level are null.
type EstimateResponse struct {
	CenterFrequency float64    `json:"centerFrequency"`
	SampleRate      float64    `json:"sampleRate"`
	BlockLength     int32      `json:"blockLength"`
	BlockCount      int32      `json:"blockCount"`
	Gain            int32      `json:"gain"`
	Bandwidth       int32      `json:"bandwidth"`
	Backend         string     `json:"backend"`
	Truncated       bool       `json:"truncated"`
	PeakBin         int        `json:"peakBin"`
	PeakFrequency   *float64   `json:"peakFrequency"`
	Spectrum        []*float64 `json:"spectrum"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func newRouter(s *IQScopeServer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/"+export.CollectEndpoint, s.collectHandler)
	r.POST(estimateEndpoint, s.estimateHandler)
	r.GET(spectraEndpoint, s.spectrumHandler)
	r.GET(spectraEndpoint+"/plot", s.plotHandler)
	return r
}

func (s *IQScopeServer) collectHandler(c *gin.Context) {
	bins := []spectrum.Bin{}
	if err := c.ShouldBindJSON(&bins); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if err := s.store.Write(ctx, export.Send(ctx, bins)); err != nil {
		glog.Warningf("unable to store %d bins: %s", len(bins), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, export.CollectResponse{Status: "ok", BinCount: len(bins)})
}

func (s *IQScopeServer) estimateHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	fh, err := c.FormFile(captureFormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing %q file: %s", captureFormField, err)})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	capture, err := iqfile.DecodeLimit(f, s.maxSamples())
	if errors.Is(err, iqfile.ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.estimator.EstimateCapture(capture)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.ToLower(c.Query("format")) == "png" {
		s.renderPNG(c, res.Spectrum, res.Params.CenterFrequency)
		return
	}

	p := res.Params
	sum := spectrum.Summarize(p, res.Spectrum)
	resp := EstimateResponse{
		CenterFrequency: p.CenterFrequency,
		SampleRate:      p.SampleRate,
		BlockLength:     p.BlockLength,
		BlockCount:      p.BlockCount,
		Gain:            p.Gain,
		Bandwidth:       p.Bandwidth,
		Backend:         res.Backend,
		Truncated:       res.Truncated,
		PeakBin:         sum.PeakBin,
		PeakFrequency:   finite(sum.PeakFrequency),
		Spectrum:        make([]*float64, len(res.Spectrum)),
	}
	for k, v := range res.Spectrum {
		resp.Spectrum[k] = finite(v)
	}
	c.JSON(http.StatusOK, resp)
}

// maxSamples is the largest capture an upload of maxUpload bytes can hold.
func (s *IQScopeServer) maxSamples() int {
	return int(max(0, (s.maxUpload-iqfile.HeaderSize)/2))
}

func (s *IQScopeServer) loadBins(c *gin.Context) ([]spectrum.Bin, bool) {
	id := c.Param("id")
	bins, err := s.store.Load(c.Request.Context(), id)
	if err != nil {
		glog.Warningf("unable to load spectrum %q: %s", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(bins) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no spectrum with identifier %q", id)})
		return nil, false
	}
	return bins, true
}

func (s *IQScopeServer) spectrumHandler(c *gin.Context) {
	bins, ok := s.loadBins(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, bins)
}

func (s *IQScopeServer) plotHandler(c *gin.Context) {
	bins, ok := s.loadBins(c)
	if !ok {
		return
	}
	s.renderPNG(c, spectrum.FromBins(bins), bins[0].CaptureCenter())
}

func (s *IQScopeServer) renderPNG(c *gin.Context, values []float64, centerFreq float64) {
	img := plot.Render(values, plot.SpectrumConfig(len(values), centerFreq))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func openStore() (*export.SQL, error) {
	var db *sql.DB
	var err error
	switch strings.ToLower(*output) {
	case "sqlite":
		db, err = export.OpenSQLite(*sqliteFile)
	case "mysql":
		db, err = export.OpenMySQL(export.MySQLOptions{
			Server:       *mysqlServer,
			User:         *mysqlUser,
			PasswordFile: *mysqlPasswordFile,
			DBName:       *mysqlDBName,
		})
	default:
		return nil, fmt.Errorf("%q is not a supported storage, pick one of: sqlite, mysql", *output)
	}
	if err != nil {
		return nil, err
	}
	dialect := strings.ToLower(*output)
	if dialect == "sqlite" {
		dialect = "sqlite3"
	}
	return &export.SQL{DB: db, Dialect: dialect}, nil
}

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	store, err := openStore()
	if err != nil {
		glog.Exit(err)
	}
	defer store.DB.Close()
	if err := store.Init(ctx); err != nil {
		glog.Exit(err)
	}

	gin.SetMode(gin.ReleaseMode)
	s := &IQScopeServer{
		store:     store,
		estimator: &spectrum.Estimator{Backend: *fft},
		maxUpload: *maxUpload,
	}
	srv := &http.Server{
		Addr:    *listen,
		Handler: newRouter(s),
	}
	if *certFile != "" || *keyFile != "" {
		glog.Error(srv.ListenAndServeTLS(*certFile, *keyFile))
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		glog.Error(srv.ListenAndServe())
	}
}
