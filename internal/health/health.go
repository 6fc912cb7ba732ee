// ABOUTME: Component health reporting and aggregation for the gateway
// ABOUTME: The worst component state determines the overall status

package health

import (
	"context"
	"time"
)

// State is the health of a component or of the whole service.
type State string

// Health states, ordered from best to worst.
const (
	Healthy   State = "healthy"
	Degraded  State = "degraded"
	Unhealthy State = "unhealthy"
)

func (s State) rank() int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

// ComponentHealth is the result of checking a single component.
type ComponentHealth struct {
	Name      string `json:"name"`
	State     State  `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Checker is implemented by components that can report their own health.
type Checker interface {
	Check(ctx context.Context) ComponentHealth
}

// Status is the aggregated service health.
type Status struct {
	Status        State             `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    []ComponentHealth `json:"components"`
}

// FromChecks aggregates component results. No components means healthy.
func FromChecks(checks []ComponentHealth, uptime time.Duration) Status {
	overall := Healthy
	for _, c := range checks {
		if c.State.rank() > overall.rank() {
			overall = c.State
		}
	}
	if checks == nil {
		checks = []ComponentHealth{}
	}
	return Status{
		Status:        overall,
		UptimeSeconds: int64(uptime / time.Second),
		Components:    checks,
	}
}

// Timed runs probe and converts its error into a ComponentHealth with latency.
// A nil error is healthy; slow successful probes are degraded.
func Timed(name string, slow time.Duration, probe func() error) ComponentHealth {
	start := time.Now()
	err := probe()
	elapsed := time.Since(start)

	ch := ComponentHealth{Name: name, State: Healthy, LatencyMs: elapsed.Milliseconds()}
	switch {
	case err != nil:
		ch.State = Unhealthy
		ch.Message = err.Error()
	case slow > 0 && elapsed > slow:
		ch.State = Degraded
		ch.Message = "slow response"
	}
	return ch
}
