package breaker

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
)

// Registry holds one breaker per downstream target. Targets are fixed when
// the registry is built.
type Registry struct {
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config, clk clock.Clock, targets ...string) *Registry {
	r := &Registry{breakers: make(map[string]*Breaker, len(targets))}
	for _, t := range targets {
		r.breakers[t] = New(t, cfg, clk)
	}
	return r
}

func (r *Registry) Get(target string) (*Breaker, bool) {
	b, ok := r.breakers[target]
	return b, ok
}

func (r *Registry) Execute(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	b, ok := r.breakers[target]
	if !ok {
		return fmt.Errorf("no circuit breaker for target %q", target)
	}
	return b.Execute(ctx, fn)
}

// Snapshot returns the status of every breaker ordered by target.
func (r *Registry) Snapshot() []Status {
	out := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}
