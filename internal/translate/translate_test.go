package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/attuned-gateway/internal/state"
)

func build(t *testing.T, confidence float64, axes map[string]float64) *state.Snapshot {
	t.Helper()
	snap, err := state.NewBuilder().UserID("u1").Confidence(confidence).Axes(axes).Build()
	require.NoError(t, err)
	return snap
}

func TestRuleTranslator_Neutral(t *testing.T) {
	pc := NewRuleTranslator().ToPromptContext(build(t, 1.0, nil))

	assert.Equal(t, baseGuidelines, pc.Guidelines)
	assert.Equal(t, "neutral-balanced", pc.Tone)
	assert.Equal(t, VerbosityMedium, pc.Verbosity)
	assert.NotNil(t, pc.Flags)
	assert.Empty(t, pc.Flags)
}

func TestRuleTranslator_HighAxes(t *testing.T) {
	pc := NewRuleTranslator().ToPromptContext(build(t, 1.0, map[string]float64{
		"anxiety_level":  0.95,
		"cognitive_load": 0.9,
	}))

	assert.Contains(t, pc.Guidelines, "Provide reassurance and avoid alarming language.")
	assert.Contains(t, pc.Guidelines, "Keep responses concise and focused on one thing at a time.")
	assert.ElementsMatch(t, []string{"high_anxiety", "high_cognitive_load"}, pc.Flags)
	assert.Equal(t, VerbosityLow, pc.Verbosity)
}

func TestRuleTranslator_ThresholdsAreStrict(t *testing.T) {
	pc := NewRuleTranslator().ToPromptContext(build(t, 1.0, map[string]float64{
		"anxiety_level":        0.7,
		"verbosity_preference": 0.3,
	}))
	assert.Empty(t, pc.Flags)
	assert.Equal(t, VerbosityMedium, pc.Verbosity)
	assert.Len(t, pc.Guidelines, len(baseGuidelines))
}

func TestRuleTranslator_Tone(t *testing.T) {
	tests := []struct {
		warmth, formality float64
		want              string
	}{
		{0.9, 0.1, "warm-casual"},
		{0.1, 0.9, "neutral-formal"},
		{0.9, 0.5, "warm-balanced"},
	}
	tr := NewRuleTranslator()
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			pc := tr.ToPromptContext(build(t, 1.0, map[string]float64{
				"warmth":    tt.warmth,
				"formality": tt.formality,
			}))
			assert.Equal(t, tt.want, pc.Tone)
		})
	}
}

func TestRuleTranslator_Verbosity(t *testing.T) {
	tr := NewRuleTranslator()
	assert.Equal(t, VerbosityHigh, tr.ToPromptContext(build(t, 1, map[string]float64{"verbosity_preference": 0.95})).Verbosity)
	assert.Equal(t, VerbosityLow, tr.ToPromptContext(build(t, 1, map[string]float64{"verbosity_preference": 0.1})).Verbosity)
}

func TestRuleTranslator_LowConfidence(t *testing.T) {
	tr := NewRuleTranslator()
	assert.Contains(t, tr.ToPromptContext(build(t, 0.4, nil)).Flags, "low_confidence")
	assert.NotContains(t, tr.ToPromptContext(build(t, 0.5, nil)).Flags, "low_confidence")
}

func TestRules_ReferenceKnownAxes(t *testing.T) {
	for _, r := range rules {
		assert.True(t, state.IsKnownAxis(r.axis), r.axis)
	}
}
