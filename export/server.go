package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/spectrum"
)

const (
	contentType          = "application/json"
	CollectEndpoint      = "iqscope/v1/collect"
	defaultSendBinAmount = 256
)

// Server posts bins in JSON batches to an iqscope server. Bins must have a
// finite level, see filter.FilterNonFinite.
type Server struct {
	Server         string
	SendBinsAmount int
	Client         *http.Client
}

// CollectResponse is the reply of the collect endpoint.
type CollectResponse struct {
	Status   string `json:"status"`
	BinCount int    `json:"binCount"`
}

func (s *Server) Write(ctx context.Context, bins <-chan spectrum.Bin) error {
	sendBinsAmount := defaultSendBinAmount
	if s.SendBinsAmount > 0 {
		sendBinsAmount = s.SendBinsAmount
	}

	var binsToSend []spectrum.Bin
	for b := range bins {
		binsToSend = append(binsToSend, b)
		if len(binsToSend) < sendBinsAmount {
			continue // we haven't collected enough bins to send yet
		}
		if err := s.send(ctx, binsToSend); err != nil {
			glog.Warningf("error sending bins: %s\n", err)
		}
		binsToSend = nil
	}
	if len(binsToSend) > 0 {
		return s.send(ctx, binsToSend)
	}
	return nil
}

func (s *Server) send(ctx context.Context, bins []spectrum.Bin) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(bins)
	if err != nil {
		return fmt.Errorf("error marshalling bins to JSON: %w", err)
	}
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.Server, "/"), CollectEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error POSTing bins: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading POST body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server %s returned %s: %s", s.Server, resp.Status, strings.TrimSpace(string(respBody)))
	}
	collectResponseBody := CollectResponse{}
	if err := json.Unmarshal(respBody, &collectResponseBody); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	glog.Infof("submitted %d bins to server %s", collectResponseBody.BinCount, s.Server)
	return nil
}
