package netmon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/metrics"
)

// Prober is a Monitor that determines reachability by periodically probing
// an HTTP endpoint on the backend. Any 2xx-3xx response counts as online;
// transport errors and server errors count as offline.
type Prober struct {
	*state

	// URL is the full probe URL (e.g. "https://api.parcelops.io/healthz")
	URL string

	// Interval is the time between probes
	Interval time.Duration

	// Timeout is the per-probe HTTP timeout
	Timeout time.Duration

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client

	// Check, when set, replaces the raw GET probe. A nil error counts as
	// online. The agent wires this to the API client's Health method so
	// probes share its error normalization.
	Check func(ctx context.Context) error

	stopCh chan struct{}
}

// NewProber creates a prober for the given URL with sensible defaults.
func NewProber(url string) *Prober {
	p := &Prober{
		state:    newState(),
		URL:      url,
		Interval: 15 * time.Second,
		Timeout:  5 * time.Second,
		stopCh:   make(chan struct{}),
	}
	p.Client = &http.Client{Timeout: p.Timeout}
	return p
}

func (p *Prober) Online() bool               { return p.state.current() }
func (p *Prober) Subscribe() <-chan bool     { return p.state.subscribe() }
func (p *Prober) Unsubscribe(ch <-chan bool) { p.state.unsubscribe(ch) }

// Start begins the probe loop. The first probe runs immediately so an
// initial state is available quickly after subscription.
func (p *Prober) Start() {
	go p.run()
}

// Stop ends the probe loop
func (p *Prober) Stop() {
	close(p.stopCh)
}

func (p *Prober) run() {
	logger := log.WithComponent("netmon")

	probe := func() {
		online := p.probe()
		if changed := p.state.set(online); changed {
			logger.Info().Bool("online", online).Msg("Reachability changed")
		}
		if online {
			metrics.UpdateComponent("network", true, "")
		} else {
			metrics.UpdateComponent("network", false, "backend unreachable")
		}
	}

	probe()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probe()
		case <-p.stopCh:
			return
		}
	}
}

// probe performs one reachability check.
func (p *Prober) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	if p.Check != nil {
		return p.Check(ctx) == nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 399
}

// String describes the prober configuration, for startup logging.
func (p *Prober) String() string {
	return fmt.Sprintf("probe %s every %s", p.URL, p.Interval)
}
