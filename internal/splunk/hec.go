package splunk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vantagesec/socqa/internal/domain"
)

const (
	collectorPath = "/services/collector"
	eventSource   = "soc_qa_agent"
)

// HECConfig holds HTTP Event Collector settings.
type HECConfig struct {
	// URL is the collector base (https://splunk:8088) or a full
	// collector endpoint.
	URL       string
	Token     string
	Index     string
	SSLVerify bool
	Timeout   time.Duration
}

// HECSink delivers QA reports to Splunk through the HTTP Event
// Collector. Delivery is acknowledged only on HTTP 200 with ack code 0.
type HECSink struct {
	endpoint   string
	token      string
	index      string
	host       string
	httpClient *http.Client
	now        func() time.Time
}

func NewHECSink(cfg HECConfig) *HECSink {
	endpoint := strings.TrimRight(cfg.URL, "/")
	if !strings.Contains(endpoint, collectorPath) {
		endpoint += collectorPath + "/event"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if !cfg.SSLVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	hostname, _ := os.Hostname()

	return &HECSink{
		endpoint:   endpoint,
		token:      cfg.Token,
		index:      cfg.Index,
		host:       hostname,
		httpClient: client,
		now:        time.Now,
	}
}

type hecEnvelope struct {
	Time       float64          `json:"time"`
	Host       string           `json:"host"`
	Source     string           `json:"source"`
	Sourcetype string           `json:"sourcetype"`
	Index      string           `json:"index"`
	Event      *domain.QAReport `json:"event"`
}

type hecAck struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

// Deliver sends one report. Any error means the report was not
// durably accepted; the caller decides whether to fail the incident.
func (s *HECSink) Deliver(ctx context.Context, report *domain.QAReport) error {
	envelope := hecEnvelope{
		Time:       float64(s.now().UnixNano()) / float64(time.Second),
		Host:       s.host,
		Source:     eventSource,
		Sourcetype: "_json",
		Index:      s.index,
		Event:      report,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal HEC payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Splunk "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read HEC response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HEC returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var ack hecAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return fmt.Errorf("failed to parse HEC ack: %w", err)
	}
	if ack.Code != 0 {
		return fmt.Errorf("HEC rejected event (code %d): %s", ack.Code, ack.Text)
	}

	return nil
}
