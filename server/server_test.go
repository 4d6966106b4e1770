package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hb9tf/iqscope/export"
	"github.com/hb9tf/iqscope/iqfile"
	"github.com/hb9tf/iqscope/spectrum"
)

var testParams = iqfile.Parameters{
	SampleRate:      250000,
	CenterFrequency: 105500000,
	Gain:            30,
	Bandwidth:       40000,
	BlockLength:     4,
	BlockCount:      2,
}

func newTestServer(t *testing.T) *IQScopeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := export.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return &IQScopeServer{
		store:     &export.SQL{DB: db, Dialect: "sqlite3"},
		estimator: &spectrum.Estimator{Backend: spectrum.BackendGonum},
		maxUpload: 1 << 20,
	}
}

func captureBytes(t *testing.T, p iqfile.Parameters, samples []int8) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := iqfile.WriteHeader(&buf, p); err != nil {
		t.Fatal(err)
	}
	for _, s := range samples {
		buf.WriteByte(byte(s))
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(captureFormField, "test.iq")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestEstimateJSON(t *testing.T) {
	s := newTestServer(t)
	r := newRouter(s)
	// Impulse in both blocks.
	data := captureBytes(t, testParams, []int8{3, -1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, estimateEndpoint, data))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var got EstimateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}

	c, err := iqfile.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	want, err := s.estimator.EstimateCapture(c)
	if err != nil {
		t.Fatal(err)
	}
	if got.BlockLength != 4 || got.BlockCount != 2 || got.CenterFrequency != 105500000 || got.Backend != spectrum.BackendGonum {
		t.Fatalf("unexpected header fields %+v", got)
	}
	if len(got.Spectrum) != len(want.Spectrum) {
		t.Fatalf("got %d bins want %d", len(got.Spectrum), len(want.Spectrum))
	}
	for k, v := range got.Spectrum {
		if v == nil || *v != want.Spectrum[k] {
			t.Errorf("bin %d: got %v want %v", k, v, want.Spectrum[k])
		}
	}
}

func TestEstimateSilentCapture(t *testing.T) {
	r := newRouter(newTestServer(t))
	data := captureBytes(t, testParams, make([]int8, 16))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, estimateEndpoint, data))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var got EstimateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.PeakBin != -1 || got.PeakFrequency != nil {
		t.Fatalf("silent capture reported a peak: %+v", got)
	}
	for k, v := range got.Spectrum {
		if v != nil {
			t.Errorf("bin %d should be null, got %v", k, *v)
		}
	}
}

func TestEstimatePNG(t *testing.T) {
	r := newRouter(newTestServer(t))
	data := captureBytes(t, testParams, []int8{3, -1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, estimateEndpoint+"?format=png", data))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 1024 || b.Dy() != 480 {
		t.Fatalf("image is %v", b)
	}
}

func TestEstimateRejectsBadUploads(t *testing.T) {
	r := newRouter(newTestServer(t))

	bad := testParams
	bad.BlockLength = 0
	for name, req := range map[string]*http.Request{
		"no file":        httptest.NewRequest(http.MethodPost, estimateEndpoint, nil),
		"short header":   uploadRequest(t, estimateEndpoint, []byte{1, 2, 3}),
		"invalid header": uploadRequest(t, estimateEndpoint, captureBytes(t, bad, nil)),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d want %d", name, w.Code, http.StatusBadRequest)
		}
	}
}

func TestCollectAndServeSpectrum(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(newRouter(s))
	defer ts.Close()

	created := time.UnixMilli(1700000000000)
	bins := []spectrum.Bin{
		{Identifier: "run-1", Source: "a.iq", Bin: 0, FreqCenter: 105500000, DB: 12.5, BlockLength: 2, BlockCount: 1, Created: created},
		{Identifier: "run-1", Source: "a.iq", Bin: 1, FreqCenter: 105375000, DB: 7, BlockLength: 2, BlockCount: 1, Created: created},
	}
	exporter := &export.Server{Server: ts.URL}
	if err := exporter.Write(context.Background(), export.Send(context.Background(), bins)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	resp, err := http.Get(ts.URL + "/iqscope/v1/spectra/run-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got []spectrum.Bin
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].DB != 7 || got[0].FreqCenter != 105500000 || !got[0].Created.Equal(created) {
		t.Fatalf("unexpected bins %+v", got)
	}

	plotResp, err := http.Get(ts.URL + "/iqscope/v1/spectra/run-1/plot")
	if err != nil {
		t.Fatal(err)
	}
	defer plotResp.Body.Close()
	if _, err := png.Decode(plotResp.Body); err != nil {
		t.Fatalf("plot is not a PNG: %v", err)
	}

	missing, err := http.Get(ts.URL + "/iqscope/v1/spectra/unknown")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d want %d", missing.StatusCode, http.StatusNotFound)
	}
}

func TestCollectRejectsMalformedJSON(t *testing.T) {
	r := newRouter(newTestServer(t))
	req := httptest.NewRequest(http.MethodPost, "/"+export.CollectEndpoint, bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEstimateRejectsCapturesLargerThanUploads(t *testing.T) {
	s := newTestServer(t)
	r := newRouter(s)
	huge := testParams
	huge.BlockLength, huge.BlockCount = 1<<20, 1<<8

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, estimateEndpoint, captureBytes(t, huge, nil)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d want %d: %s", w.Code, http.StatusRequestEntityTooLarge, w.Body.String())
	}

	// The largest capture the upload limit admits is still estimated.
	fits := testParams
	fits.BlockLength, fits.BlockCount = 1024, int32(s.maxSamples()/1024)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, estimateEndpoint, captureBytes(t, fits, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestFailedCollectsDoNotLeak(t *testing.T) {
	s := newTestServer(t)
	s.store.Dialect = "postgres"
	r := newRouter(s)
	body, err := json.Marshal([]spectrum.Bin{{Identifier: "run-1", DB: 1}, {Identifier: "run-1", Bin: 1, DB: 2}})
	if err != nil {
		t.Fatal(err)
	}

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/"+export.CollectEndpoint, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status %d want %d", w.Code, http.StatusInternalServerError)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for runtime.NumGoroutine() > before+5 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines before=%d after=%d", before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
