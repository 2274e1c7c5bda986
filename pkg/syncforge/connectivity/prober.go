package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Prober performs the low-level network checks for the Monitor.
// The production implementation dials a well-known endpoint and issues
// HTTP requests; tests inject fakes to simulate latency and failure.
type Prober interface {
	// Dial attempts a raw socket connection to a low-latency endpoint.
	// A nil return means basic reachability.
	Dial(ctx context.Context) error

	// Fetch issues one HTTP GET and reports the round-trip time.
	// Any non-2xx status is an error.
	Fetch(ctx context.Context, url string) (time.Duration, error)
}

// netProber is the production Prober backed by net.Dialer and http.Client.
type netProber struct {
	dialAddress string
	dialTimeout time.Duration
	client      *http.Client
}

// NewProber creates the production prober.
func NewProber(dialAddress string, dialTimeout, httpTimeout time.Duration) Prober {
	return &netProber{
		dialAddress: dialAddress,
		dialTimeout: dialTimeout,
		client: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// Dial implements Prober.
func (p *netProber) Dial(ctx context.Context) error {
	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.dialAddress)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.dialAddress, err)
	}
	return conn.Close()
}

// Fetch implements Prober.
func (p *netProber) Fetch(ctx context.Context, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return elapsed, fmt.Errorf("probe %s: unexpected status %d", url, resp.StatusCode)
	}
	return elapsed, nil
}
