// ABOUTME: Per-user running feature statistics for deviation-based estimates
// ABOUTME: A message far from the user's own norm says more than its absolute features

package infer

import (
	"math"
	"sync"
)

// Baseline defaults
const (
	// MinBaselineSamples is how many messages a baseline needs before it
	// produces delta estimates.
	MinBaselineSamples = 5
	// DeltaThreshold is the |z| at which a deviation counts.
	DeltaThreshold = 2.0
	// minStdDev keeps a user who always writes the same way from turning
	// tiny wobbles into huge z-scores.
	minStdDev = 0.05
)

// metric is one per-message quantity a Baseline tracks.
type metric struct {
	name  string
	value func(Features) float64
}

func density(count, words int) float64 {
	if words == 0 {
		return 0
	}
	return float64(count) / float64(words)
}

var baselineMetrics = []metric{
	{"word_count", func(f Features) float64 { return float64(f.WordCount) }},
	{"exclamation_ratio", func(f Features) float64 { return f.ExclamationRatio }},
	{"caps_ratio", func(f Features) float64 { return f.CapsRatio }},
	{"hedge_density", func(f Features) float64 { return density(f.HedgeCount, f.WordCount) }},
	{"negative_density", func(f Features) float64 { return density(f.NegativeEmotionCount, f.WordCount) }},
	{"urgency_density", func(f Features) float64 { return density(f.UrgencyWordCount, f.WordCount) }},
}

// deltaRule turns a deviation on one metric into an axis estimate. sign is
// +1 when a rise in the metric raises the axis, -1 when it lowers it.
type deltaRule struct {
	metric string
	axis   string
	sign   float64
}

var deltaRules = []deltaRule{
	{"word_count", "cognitive_load", -1},
	{"exclamation_ratio", "emotional_stability", -1},
	{"caps_ratio", "emotional_stability", -1},
	{"hedge_density", "need_for_reassurance", 1},
	{"negative_density", "anxiety_level", 1},
	{"urgency_density", "urgency_sensitivity", 1},
}

// runningStat is Welford's online mean and variance.
type runningStat struct {
	mean float64
	m2   float64
}

// Baseline is one user's running feature statistics. It is safe for
// concurrent use.
type Baseline struct {
	mu      sync.Mutex
	samples int
	stats   []runningStat
}

// NewBaseline returns an empty baseline.
func NewBaseline() *Baseline {
	return &Baseline{stats: make([]runningStat, len(baselineMetrics))}
}

// Samples reports how many messages the baseline has seen.
func (b *Baseline) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// deviation is a z-score on one metric.
type deviation struct {
	metric string
	z      float64
}

// observe returns the deviations of f from the baseline, then folds f in.
// Nothing is returned until the baseline has MinBaselineSamples messages.
func (b *Baseline) observe(f Features) []deviation {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []deviation
	if b.samples >= MinBaselineSamples {
		for i, m := range baselineMetrics {
			s := b.stats[i]
			std := math.Max(math.Sqrt(s.m2/float64(b.samples-1)), minStdDev)
			z := (m.value(f) - s.mean) / std
			if math.Abs(z) >= DeltaThreshold {
				out = append(out, deviation{metric: m.name, z: z})
			}
		}
	}

	b.samples++
	n := float64(b.samples)
	for i, m := range baselineMetrics {
		x := m.value(f)
		s := &b.stats[i]
		d := x - s.mean
		s.mean += d / n
		s.m2 += d * (x - s.mean)
	}
	return out
}

// Mean returns the running mean of a tracked metric.
func (b *Baseline) Mean(name string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range baselineMetrics {
		if m.name == name {
			return b.stats[i].mean, b.samples > 0
		}
	}
	return 0, false
}
