// ABOUTME: Heuristic inference of axis estimates from message text
// ABOUTME: Only axes with supporting evidence are estimated; confidence grows with message length

package infer

import (
	"math"
	"slices"

	"github.com/2389/attuned-gateway/internal/state"
)

// Estimate source types
const (
	SourceLinguistic = "linguistic"
	SourceDelta      = "delta"
	SourceCombined   = "combined"
)

// Source describes how an estimate was produced. Linguistic estimates list
// FeaturesUsed, delta estimates carry Metric and ZScore, combined estimates
// carry SourceCount.
type Source struct {
	Type         string   `json:"type"`
	FeaturesUsed []string `json:"features_used,omitempty"`
	Metric       string   `json:"metric,omitempty"`
	ZScore       float64  `json:"z_score,omitempty"`
	SourceCount  int      `json:"source_count,omitempty"`
}

// Estimate is one inferred axis value.
type Estimate struct {
	Axis       string  `json:"axis"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Estimates are ordered by canonical axis position.
type Estimates []Estimate

// Get returns the estimate for axis.
func (e Estimates) Get(axis string) (Estimate, bool) {
	for _, est := range e {
		if est.Axis == axis {
			return est, true
		}
	}
	return Estimate{}, false
}

// Axes flattens the estimates into axis values.
func (e Estimates) Axes() map[string]float64 {
	out := make(map[string]float64, len(e))
	for _, est := range e {
		out[est.Axis] = est.Value
	}
	return out
}

// Engine infers axis estimates from free text. Implementations must be safe
// for concurrent use.
type Engine interface {
	Infer(message string) Estimates
	// InferWithBaseline also compares the message with the user's baseline
	// and then folds it in. A nil baseline behaves like Infer.
	InferWithBaseline(message string, b *Baseline) Estimates
}

// Config tunes the heuristic engine.
type Config struct {
	// MaxConfidence caps the confidence of any lexical estimate.
	MaxConfidence float64
	// MinWords is the shortest message that yields estimates.
	MinWords int
}

// DefaultConfig caps confidence at 0.7 and needs at least 3 words.
func DefaultConfig() Config {
	return Config{MaxConfidence: 0.7, MinWords: 3}
}

// HeuristicEngine maps lexical features to estimates with fixed weights.
type HeuristicEngine struct {
	cfg Config
}

// NewHeuristicEngine creates an engine. Zero fields take DefaultConfig values.
func NewHeuristicEngine(cfg Config) *HeuristicEngine {
	def := DefaultConfig()
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence >= 1 {
		cfg.MaxConfidence = def.MaxConfidence
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	return &HeuristicEngine{cfg: cfg}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Infer implements Engine.
func (e *HeuristicEngine) Infer(message string) Estimates {
	f := ExtractFeatures(message)
	if f.WordCount < e.cfg.MinWords {
		return Estimates{}
	}
	return e.linguistic(f)
}

// InferWithBaseline implements Engine.
func (e *HeuristicEngine) InferWithBaseline(message string, b *Baseline) Estimates {
	if b == nil {
		return e.Infer(message)
	}
	f := ExtractFeatures(message)
	if f.WordCount < e.cfg.MinWords {
		return Estimates{}
	}
	return e.combine(e.linguistic(f), e.deltas(b.observe(f)))
}

// deltas maps deviations to estimates, keeping the strongest per axis.
func (e *HeuristicEngine) deltas(devs []deviation) map[string]Estimate {
	out := make(map[string]Estimate)
	for _, d := range devs {
		for _, rule := range deltaRules {
			if rule.metric != d.metric {
				continue
			}
			if prev, ok := out[rule.axis]; ok && math.Abs(prev.Source.ZScore) >= math.Abs(d.z) {
				continue
			}
			out[rule.axis] = Estimate{
				Axis:       rule.axis,
				Value:      clamp01(0.5 + rule.sign*0.1*d.z),
				Confidence: math.Min(0.2+0.1*math.Abs(d.z), e.cfg.MaxConfidence),
				Source:     Source{Type: SourceDelta, Metric: d.metric, ZScore: d.z},
			}
		}
	}
	return out
}

// combine merges delta estimates into the linguistic ones. Where both cover
// an axis the values are averaged by confidence.
func (e *HeuristicEngine) combine(ling Estimates, deltas map[string]Estimate) Estimates {
	if len(deltas) == 0 {
		return ling
	}

	out := make(Estimates, 0, len(ling)+len(deltas))
	for _, est := range ling {
		d, ok := deltas[est.Axis]
		if !ok {
			out = append(out, est)
			continue
		}
		delete(deltas, est.Axis)
		total := est.Confidence + d.Confidence
		out = append(out, Estimate{
			Axis:       est.Axis,
			Value:      clamp01((est.Value*est.Confidence + d.Value*d.Confidence) / total),
			Confidence: math.Min(math.Max(est.Confidence, d.Confidence)+0.1, e.cfg.MaxConfidence),
			Source:     Source{Type: SourceCombined, SourceCount: 2},
		})
	}
	for _, d := range deltas {
		out = append(out, d)
	}

	slices.SortFunc(out, func(a, b Estimate) int {
		return state.AxisPosition(a.Axis) - state.AxisPosition(b.Axis)
	})
	return out
}

// linguistic estimates axes from absolute feature values.
func (e *HeuristicEngine) linguistic(f Features) Estimates {

	// longer messages give more evidence, but never certainty
	base := math.Min(0.2+float64(f.WordCount)/100, e.cfg.MaxConfidence)

	var out Estimates
	add := func(axis string, value, weight float64, used ...string) {
		out = append(out, Estimate{
			Axis:       axis,
			Value:      clamp01(value),
			Confidence: math.Max(0.05, math.Min(base*weight, e.cfg.MaxConfidence)),
			Source:     Source{Type: SourceLinguistic, FeaturesUsed: used},
		})
	}

	if f.NegativeEmotionCount > 0 || f.HedgeCount > 0 {
		v := 0.3 + 0.15*float64(f.NegativeEmotionCount) + 0.08*float64(f.HedgeCount) + 0.1*f.QuestionRatio
		add("anxiety_level", v, 1.0, "negative_emotion_count", "hedge_count", "question_ratio")
	}

	if f.UrgencyWordCount > 0 || f.ExclamationRatio > 0 || f.CapsRatio > 0.5 {
		v := 0.35 + 0.2*float64(f.UrgencyWordCount) + 0.2*f.ExclamationRatio
		if f.CapsRatio > 0.5 {
			v += 0.2
		}
		add("urgency_sensitivity", v, 0.9, "urgency_word_count", "exclamation_ratio", "caps_ratio")
	}

	if f.SentenceCount > 0 {
		v := 0.3 + 0.02*(f.AvgSentenceLength()-12) + 0.1*float64(f.HedgeCount) + 0.15*f.QuestionRatio
		add("cognitive_load", v, 0.6, "sentence_count", "word_count", "hedge_count", "question_ratio")
	}

	add("verbosity_preference", float64(f.WordCount)/150, 0.5, "word_count")

	if f.PolitenessCount > 0 {
		add("warmth", 0.55+0.1*float64(f.PolitenessCount), 0.7, "politeness_count")
	}

	formality := 0.6 - 0.08*float64(f.ContractionCount) - 0.1*f.ExclamationRatio
	if f.CapsRatio > 0.5 {
		formality -= 0.2
	}
	add("formality", formality, 0.5, "contraction_count", "exclamation_ratio", "caps_ratio")

	slices.SortFunc(out, func(a, b Estimate) int {
		return state.AxisPosition(a.Axis) - state.AxisPosition(b.Axis)
	})
	return out
}
