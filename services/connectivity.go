package services

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

// ConnectivityService probes the application origin to decide whether
// the network is reachable. Engagement writes and offline sync key off
// its answer.
type ConnectivityService struct {
	probeURL string
	client   *http.Client
}

// NewConnectivityService creates a connectivity prober against the
// given URL, typically the application origin's health endpoint
func NewConnectivityService(probeURL string) *ConnectivityService {
	return &ConnectivityService{
		probeURL: probeURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// IsOnline reports whether the probe URL currently answers
func (c *ConnectivityService) IsOnline() bool {
	return c.Probe() == nil
}

// Probe performs a single reachability check
func (c *ConnectivityService) Probe() error {
	resp, err := c.client.Get(c.probeURL)
	if err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("connectivity probe returned status %d", resp.StatusCode)
	}
	return nil
}
