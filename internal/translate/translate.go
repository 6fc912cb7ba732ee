// ABOUTME: Converts a state snapshot into prompt guidance for a downstream model
// ABOUTME: RuleTranslator applies fixed per-axis threshold rules

package translate

import (
	"github.com/2389/attuned-gateway/internal/state"
)

// Verbosity is the suggested response length.
type Verbosity string

// Verbosity levels
const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// PromptContext is the translated guidance returned to callers.
type PromptContext struct {
	Guidelines []string  `json:"guidelines"`
	Tone       string    `json:"tone"`
	Verbosity  Verbosity `json:"verbosity"`
	Flags      []string  `json:"flags"`
}

// Translator turns a snapshot into a PromptContext. Implementations must be
// safe for concurrent use.
type Translator interface {
	ToPromptContext(snap *state.Snapshot) PromptContext
}

// Thresholds split each axis into low, neutral and high bands. Values
// strictly above High or strictly below Low trigger rules.
type Thresholds struct {
	High float64
	Low  float64
}

// DefaultThresholds are 0.7 and 0.3.
var DefaultThresholds = Thresholds{High: 0.7, Low: 0.3}

// LowConfidence is the confidence below which the low_confidence flag is set.
const LowConfidence = 0.5

// baseGuidelines are always present regardless of state.
var baseGuidelines = []string{
	"Offer suggestions, not actions; the user decides what happens next.",
	"Drafts require explicit user approval before being sent or used.",
	"Silence is acceptable; do not fill gaps or push for engagement.",
}

type rule struct {
	axis string
	high string
	low  string
	flag string // set on high
}

var rules = []rule{
	{axis: "cognitive_load", high: "Keep responses concise and focused on one thing at a time.", flag: "high_cognitive_load"},
	{axis: "decision_fatigue", high: "Offer a single clear recommendation instead of many options."},
	{axis: "tolerance_for_complexity", high: "Detailed explanations and nuance are welcome.", low: "Avoid jargon and break ideas into simple steps."},
	{axis: "urgency_sensitivity", high: "Lead with the most important information.", low: "There is no rush; a measured pace is fine."},
	{axis: "anxiety_level", high: "Provide reassurance and avoid alarming language.", flag: "high_anxiety"},
	{axis: "need_for_reassurance", high: "Acknowledge concerns and confirm the user is on the right track."},
	{axis: "emotional_openness", low: "Stay matter-of-fact; do not probe feelings."},
	{axis: "emotional_stability", low: "Be steady and calm; avoid abrupt shifts in tone.", flag: "emotional_instability"},
	{axis: "boundary_strength", high: "Respect stated boundaries; do not revisit declined topics."},
	{axis: "assertiveness", high: "The user is direct; respond in kind without hedging."},
	{axis: "ritual_need", high: "Keep a consistent structure across responses."},
	{axis: "transactional_preference", high: "Skip pleasantries and get to the point."},
	{axis: "directness_preference", high: "State conclusions plainly.", low: "Frame points gently and leave room for interpretation."},
	{axis: "autonomy_preference", high: "Present options without steering; the user prefers to choose."},
	{axis: "suggestion_tolerance", low: "Only make suggestions when asked."},
	{axis: "interruption_tolerance", low: "Avoid follow-up questions unless essential."},
	{axis: "reflection_vs_action_bias", high: "Focus on concrete next steps.", low: "Leave space for reflection before proposing actions."},
	{axis: "stakes_awareness", high: "Note risks and consequences explicitly.", flag: "high_stakes"},
	{axis: "privacy_sensitivity", high: "Do not ask for or repeat personal details.", flag: "privacy_sensitive"},
}

// RuleTranslator maps axes to guidance with fixed rules. Missing axes are
// treated as neutral.
type RuleTranslator struct {
	Thresholds Thresholds
}

// NewRuleTranslator returns a translator using DefaultThresholds.
func NewRuleTranslator() *RuleTranslator {
	return &RuleTranslator{Thresholds: DefaultThresholds}
}

func (t *RuleTranslator) band(snap *state.Snapshot, axis string) int {
	v, ok := snap.Axes[axis]
	switch {
	case !ok:
		return 0
	case v > t.Thresholds.High:
		return 1
	case v < t.Thresholds.Low:
		return -1
	}
	return 0
}

// ToPromptContext implements Translator.
func (t *RuleTranslator) ToPromptContext(snap *state.Snapshot) PromptContext {
	pc := PromptContext{
		Guidelines: append([]string(nil), baseGuidelines...),
		Flags:      []string{},
	}

	for _, r := range rules {
		switch t.band(snap, r.axis) {
		case 1:
			if r.high != "" {
				pc.Guidelines = append(pc.Guidelines, r.high)
			}
			if r.flag != "" {
				pc.Flags = append(pc.Flags, r.flag)
			}
		case -1:
			if r.low != "" {
				pc.Guidelines = append(pc.Guidelines, r.low)
			}
		}
	}

	pc.Tone = t.tone(snap)
	pc.Verbosity = t.verbosity(snap)

	if snap.Confidence < LowConfidence {
		pc.Flags = append(pc.Flags, "low_confidence")
	}
	return pc
}

func (t *RuleTranslator) tone(snap *state.Snapshot) string {
	warmth := "neutral"
	if t.band(snap, "warmth") == 1 {
		warmth = "warm"
	}
	formality := "balanced"
	switch t.band(snap, "formality") {
	case 1:
		formality = "formal"
	case -1:
		formality = "casual"
	}
	return warmth + "-" + formality
}

func (t *RuleTranslator) verbosity(snap *state.Snapshot) Verbosity {
	// high cognitive load overrides a stated preference for long answers
	if t.band(snap, "cognitive_load") == 1 {
		return VerbosityLow
	}
	switch t.band(snap, "verbosity_preference") {
	case 1:
		return VerbosityHigh
	case -1:
		return VerbosityLow
	}
	return VerbosityMedium
}
