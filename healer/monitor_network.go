package healer

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// networkMonitor probes a TCP or HTTP(S) endpoint on a fixed interval. A
// single failed probe is enough to publish ProcessDisconnected; after that
// it stays quiet (rearmed only by a subsequent successful probe), mirroring
// pidMonitor's one-event-per-episode debounce.
type networkMonitor struct {
	name string
	spec NetworkMonitorSpec
	bus  *Bus

	client *http.Client
}

var _ Monitor = (*networkMonitor)(nil)

func (m *networkMonitor) Run(ctx context.Context) error {
	interval := m.spec.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := m.spec.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	disconnected := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		reachable := m.probe(ctx, timeout)
		if reachable {
			disconnected = false
			continue
		}

		if disconnected {
			continue
		}
		disconnected = true
		m.bus.Publish(NewProcessDisconnected(m.name, m.spec.URL))
	}
}

// probe reaches spec.URL once: a bare TCP connect for a "tcp://host:port"
// target, or an HTTP(S) GET of "/" otherwise. Any response at all, including
// a 5xx, counts as reachable; only a connection error or timeout is a
// failure.
func (m *networkMonitor) probe(ctx context.Context, timeout time.Duration) bool {
	u, err := url.Parse(m.spec.URL)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if strings.EqualFold(u.Scheme, "tcp") {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.spec.URL, nil)
	if err != nil {
		return false
	}

	client := m.client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// client.Do returning without error already proves the endpoint is
	// reachable; any status code, including a 5xx, is the target responding.
	return true
}
