// Package health reports the resilience state of external sources. It only
// reads breaker and limiter state and never changes it.
package health

import (
	"time"

	"github.com/lepinkainen/folio/internal/breaker"
	"github.com/lepinkainen/folio/internal/sourcestate"
)

// Status is the overall health of the external sources.
type Status string

const (
	// StatusHealthy means every source circuit is closed.
	StatusHealthy Status = "healthy"
	// StatusDegraded means some but not all circuits are open or half-open.
	StatusDegraded Status = "degraded"
	// StatusDown means every source circuit is open or half-open.
	StatusDown Status = "down"
)

// SourceHealth is a point-in-time view of one source.
type SourceHealth struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastTransition      time.Time `json:"lastTransition"`
	OpenedAt            time.Time `json:"openedAt,omitzero"`
	Tokens              float64   `json:"tokens"`
	Rate                float64   `json:"rate"`
	Burst               int       `json:"burst"`
}

// Monitor reads source state from a registry.
type Monitor struct {
	registry *sourcestate.Registry
	names    []string
}

// NewMonitor creates a Monitor. names lists the configured sources so they
// are reported even before their first request.
func NewMonitor(registry *sourcestate.Registry, names ...string) *Monitor {
	return &Monitor{registry: registry, names: names}
}

// Snapshot returns the health of every known source ordered by name.
func (m *Monitor) Snapshot() []SourceHealth {
	for _, name := range m.names {
		m.registry.Get(name)
	}

	entries := m.registry.Entries()
	out := make([]SourceHealth, 0, len(entries))
	for _, e := range entries {
		out = append(out, view(e))
	}
	return out
}

// Source returns the health of a single source.
func (m *Monitor) Source(name string) (SourceHealth, bool) {
	e, ok := m.registry.Lookup(name)
	if !ok {
		for _, known := range m.names {
			if known == name {
				return view(m.registry.Get(name)), true
			}
		}
		return SourceHealth{}, false
	}
	return view(e), true
}

// Overall summarizes Snapshot. With no sources the system is healthy: local
// search does not depend on them.
func (m *Monitor) Overall() Status {
	snapshot := m.Snapshot()
	unhealthy := 0
	for _, s := range snapshot {
		if s.State != breaker.Closed.String() {
			unhealthy++
		}
	}
	switch {
	case unhealthy == 0:
		return StatusHealthy
	case unhealthy == len(snapshot):
		return StatusDown
	default:
		return StatusDegraded
	}
}

func view(e *sourcestate.Entry) SourceHealth {
	snap := e.Breaker.Snapshot()
	return SourceHealth{
		Name:                e.Name,
		State:               snap.State.String(),
		ConsecutiveFailures: snap.Failures,
		LastTransition:      snap.LastTransition,
		OpenedAt:            snap.OpenedAt,
		Tokens:              e.Limiter.Tokens(),
		Rate:                e.Limiter.Rate(),
		Burst:               e.Limiter.Burst(),
	}
}
