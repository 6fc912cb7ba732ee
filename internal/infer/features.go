// ABOUTME: Lexical feature extraction from a single message
// ABOUTME: Counts hedges, urgency and emotion words plus punctuation and casing ratios

package infer

import (
	"strings"
	"unicode"
)

// Features are the lexical signals the heuristic engine works from.
type Features struct {
	WordCount            int     `json:"word_count"`
	SentenceCount        int     `json:"sentence_count"`
	HedgeCount           int     `json:"hedge_count"`
	UrgencyWordCount     int     `json:"urgency_word_count"`
	NegativeEmotionCount int     `json:"negative_emotion_count"`
	PolitenessCount      int     `json:"politeness_count"`
	ContractionCount     int     `json:"contraction_count"`
	ExclamationRatio     float64 `json:"exclamation_ratio"`
	QuestionRatio        float64 `json:"question_ratio"`
	CapsRatio            float64 `json:"caps_ratio"`
	FirstPersonRatio     float64 `json:"first_person_ratio"`
}

// AvgSentenceLength is words per sentence, 0 for an empty message.
func (f Features) AvgSentenceLength() float64 {
	if f.SentenceCount == 0 {
		return 0
	}
	return float64(f.WordCount) / float64(f.SentenceCount)
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var (
	hedgeWords = wordSet("maybe", "perhaps", "might", "possibly", "probably",
		"guess", "somewhat", "unsure", "apparently", "seems", "suppose")
	hedgePhrases = []string{"i think", "not sure", "kind of", "sort of", "i wonder"}

	urgencyWords = wordSet("urgent", "urgently", "asap", "immediately", "now",
		"quickly", "emergency", "deadline", "hurry", "critical", "today", "tonight")

	negativeWords = wordSet("worried", "worry", "anxious", "scared", "afraid",
		"stressed", "overwhelmed", "frustrated", "upset", "angry", "sad",
		"nervous", "panic", "panicking", "terrible", "awful", "hate", "confused")

	politeWords = wordSet("please", "thanks", "thank", "appreciate", "grateful",
		"glad", "happy", "love", "lovely", "kind")

	firstPersonWords = wordSet("i", "me", "my", "mine", "myself",
		"i'm", "i've", "i'll", "i'd")
)

func tokenize(message string) []string {
	return strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func countSentences(message string) int {
	count := 0
	hasText := false
	for _, r := range message {
		switch {
		case r == '.' || r == '!' || r == '?':
			if hasText {
				count++
			}
			hasText = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			hasText = true
		}
	}
	if hasText {
		count++
	}
	return count
}

// ExtractFeatures computes Features for message.
func ExtractFeatures(message string) Features {
	words := tokenize(message)
	f := Features{
		WordCount:     len(words),
		SentenceCount: countSentences(message),
	}
	if f.WordCount == 0 {
		return f
	}

	firstPerson := 0
	for _, w := range words {
		trimmed := strings.Trim(w, "'")
		if _, ok := hedgeWords[trimmed]; ok {
			f.HedgeCount++
		}
		if _, ok := urgencyWords[trimmed]; ok {
			f.UrgencyWordCount++
		}
		if _, ok := negativeWords[trimmed]; ok {
			f.NegativeEmotionCount++
		}
		if _, ok := politeWords[trimmed]; ok {
			f.PolitenessCount++
		}
		if _, ok := firstPersonWords[trimmed]; ok {
			firstPerson++
		}
		if strings.Contains(trimmed, "'") {
			f.ContractionCount++
		}
	}

	joined := " " + strings.Join(words, " ") + " "
	for _, p := range hedgePhrases {
		f.HedgeCount += strings.Count(joined, " "+p+" ")
	}

	var letters, upper, exclaims, questions int
	for _, r := range message {
		switch {
		case r == '!':
			exclaims++
		case r == '?':
			questions++
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}

	sentences := float64(max(f.SentenceCount, 1))
	f.ExclamationRatio = min(float64(exclaims)/sentences, 1)
	f.QuestionRatio = min(float64(questions)/sentences, 1)
	if letters > 0 {
		f.CapsRatio = float64(upper) / float64(letters)
	}
	f.FirstPersonRatio = float64(firstPerson) / float64(f.WordCount)
	return f
}
