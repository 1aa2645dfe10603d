package upstream

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Prober periodically probes completion endpoints and keeps the healthy
// subset the selector draws from. Endpoints start healthy so a cold start
// never blocks on the first probe cycle.
type Prober struct {
	mu        sync.RWMutex
	endpoints []string
	failures  map[string]int
	healthy   map[string]bool

	path        string
	interval    time.Duration
	timeout     time.Duration
	maxFailures int

	stopChan chan struct{}
	running  bool
}

type ProberConfig struct {
	Endpoints   []string
	Path        string        // Probe path (default: "/v1/models")
	Interval    time.Duration // How often to probe (default: 30s)
	Timeout     time.Duration // Per-probe timeout (default: 5s)
	MaxFailures int           // Consecutive failures before marking down (default: 3)
}

func NewProber(cfg ProberConfig) *Prober {
	if cfg.Path == "" {
		cfg.Path = "/v1/models"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	p := &Prober{
		endpoints:   cfg.Endpoints,
		failures:    make(map[string]int),
		healthy:     make(map[string]bool),
		path:        cfg.Path,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		stopChan:    make(chan struct{}),
	}

	for _, endpoint := range cfg.Endpoints {
		p.healthy[endpoint] = true
	}

	return p
}

// Start begins periodic probing.
func (p *Prober) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.probeAll()
			case <-p.stopChan:
				return
			}
		}
	}()
}

func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		close(p.stopChan)
		p.running = false
	}
}

func (p *Prober) probeAll() {
	var wg sync.WaitGroup

	for _, endpoint := range p.endpoints {
		wg.Add(1)
		go func(e string) {
			defer wg.Done()
			p.probe(e)
		}(endpoint)
	}

	wg.Wait()
}

func (p *Prober) probe(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+p.path, nil)
	if err != nil {
		p.record(endpoint, false)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		p.record(endpoint, false)
		return
	}
	defer resp.Body.Close()

	p.record(endpoint, resp.StatusCode < 500)
}

func (p *Prober) record(endpoint string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok {
		if !p.healthy[endpoint] {
			log.Printf("upstream %s is healthy again", endpoint)
		}
		p.failures[endpoint] = 0
		p.healthy[endpoint] = true
		return
	}

	p.failures[endpoint]++
	if p.healthy[endpoint] && p.failures[endpoint] >= p.maxFailures {
		log.Printf("upstream %s marked unhealthy after %d failures", endpoint, p.failures[endpoint])
		p.healthy[endpoint] = false
	}
}

// Counts reports how many endpoints are up out of the total, without the
// all-down fallback Healthy applies.
func (p *Prober) Counts() (healthy, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, endpoint := range p.endpoints {
		if p.healthy[endpoint] {
			healthy++
		}
	}
	return healthy, len(p.endpoints)
}

// Healthy returns the endpoints currently considered up. When every
// endpoint is down the full set is returned, since failing fast on all of
// them helps nobody.
func (p *Prober) Healthy() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	healthy := make([]string, 0, len(p.endpoints))
	for _, endpoint := range p.endpoints {
		if p.healthy[endpoint] {
			healthy = append(healthy, endpoint)
		}
	}

	if len(healthy) == 0 {
		all := make([]string, len(p.endpoints))
		copy(all, p.endpoints)
		return all
	}

	return healthy
}
