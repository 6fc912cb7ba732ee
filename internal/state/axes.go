// ABOUTME: Canonical axis registry for behavioral state snapshots
// ABOUTME: Axis names outside this list are rejected by snapshot validation

package state

// Category groups related axes.
type Category string

// Axis categories
const (
	CategoryCognitive   Category = "cognitive"
	CategoryEmotional   Category = "emotional"
	CategorySocial      Category = "social"
	CategoryPreferences Category = "preferences"
	CategoryControl     Category = "control"
	CategorySafety      Category = "safety"
)

// Axis bounds. Every canonical axis shares the same range.
const (
	AxisMin = 0.0
	AxisMax = 1.0
)

// Axis describes one named dimension of a user's tracked state.
type Axis struct {
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

var canonicalAxes = []Axis{
	{"cognitive_load", CategoryCognitive, "How much mental bandwidth the user currently has in use"},
	{"decision_fatigue", CategoryCognitive, "Accumulated weariness from making choices"},
	{"tolerance_for_complexity", CategoryCognitive, "Willingness to engage with dense or technical material"},
	{"urgency_sensitivity", CategoryCognitive, "How strongly time pressure shapes the user's needs"},

	{"emotional_openness", CategoryEmotional, "Comfort with emotionally expressive exchanges"},
	{"emotional_stability", CategoryEmotional, "Current steadiness of the user's emotional state"},
	{"anxiety_level", CategoryEmotional, "Degree of worry or stress the user is showing"},
	{"need_for_reassurance", CategoryEmotional, "How much the user benefits from confirmation and support"},

	{"warmth", CategorySocial, "Preferred interpersonal warmth of responses"},
	{"formality", CategorySocial, "Preferred register, from casual to formal"},
	{"boundary_strength", CategorySocial, "How firmly the user holds personal boundaries"},
	{"assertiveness", CategorySocial, "How forcefully the user states needs"},
	{"reciprocity_expectation", CategorySocial, "Expectation of give-and-take in the exchange"},

	{"ritual_need", CategoryPreferences, "Value placed on familiar openings, closings and patterns"},
	{"transactional_preference", CategoryPreferences, "Preference for task-focused over relational exchanges"},
	{"verbosity_preference", CategoryPreferences, "Preferred response length, from terse to thorough"},
	{"directness_preference", CategoryPreferences, "Preference for blunt over softened phrasing"},

	{"autonomy_preference", CategoryControl, "Desire to make decisions without being steered"},
	{"suggestion_tolerance", CategoryControl, "Receptiveness to unsolicited suggestions"},
	{"interruption_tolerance", CategoryControl, "Acceptance of proactive interruptions"},
	{"reflection_vs_action_bias", CategoryControl, "Leaning toward deliberation (low) or action (high)"},

	{"stakes_awareness", CategorySafety, "How consequential the user perceives the situation to be"},
	{"privacy_sensitivity", CategorySafety, "Sensitivity about sharing or being asked for personal details"},
}

var axisIndex = func() map[string]int {
	idx := make(map[string]int, len(canonicalAxes))
	for i, a := range canonicalAxes {
		idx[a.Name] = i
	}
	return idx
}()

// CanonicalAxes returns a copy of the registry in its stable order.
func CanonicalAxes() []Axis {
	out := make([]Axis, len(canonicalAxes))
	copy(out, canonicalAxes)
	return out
}

// LookupAxis returns the axis definition for name.
func LookupAxis(name string) (Axis, bool) {
	i, ok := axisIndex[name]
	if !ok {
		return Axis{}, false
	}
	return canonicalAxes[i], true
}

// IsKnownAxis reports whether name is a canonical axis.
func IsKnownAxis(name string) bool {
	_, ok := axisIndex[name]
	return ok
}

// AxisPosition returns the index of name in canonical order, or -1.
func AxisPosition(name string) int {
	i, ok := axisIndex[name]
	if !ok {
		return -1
	}
	return i
}
