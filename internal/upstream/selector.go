package upstream

import (
	"fmt"
	"math/rand"
	"sync"
)

// Selector picks which completion endpoint serves the next request.
type Selector interface {
	// Next selects an endpoint from those currently available.
	Next(endpoints []string) string

	// Name returns the strategy name.
	Name() string
}

func NewSelector(strategy string) (Selector, error) {
	switch strategy {
	case "round_robin", "round-robin", "":
		return NewRoundRobin(), nil
	case "random":
		return NewRandom(), nil
	default:
		return nil, fmt.Errorf("unknown selection strategy: %q", strategy)
	}
}

type RoundRobin struct {
	mu      sync.Mutex
	current int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Next(endpoints []string) string {
	if len(endpoints) == 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint := endpoints[r.current%len(endpoints)]
	r.current++

	return endpoint
}

func (r *RoundRobin) Name() string {
	return "round_robin"
}

type Random struct{}

func NewRandom() *Random {
	return &Random{}
}

func (r *Random) Next(endpoints []string) string {
	if len(endpoints) == 0 {
		return ""
	}

	return endpoints[rand.Intn(len(endpoints))]
}

func (r *Random) Name() string {
	return "random"
}
