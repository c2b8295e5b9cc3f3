package capability

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

var errNoDocumentText = errors.New("no document text")

// rule fires when the text mentions any marker and any qualifier.
type rule struct {
	markers    []string
	qualifiers []string
	advice     string
}

func (r rule) matches(lower string) bool {
	return containsAny(lower, r.markers) && containsAny(lower, r.qualifiers)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

var nutritionRules = []rule{
	{
		markers:    []string{"hemoglobin", "hgb", "hb"},
		qualifiers: []string{"low", "below", "deficient"},
		advice:     "Consider iron-rich foods: spinach, red meat, lentils, fortified cereals",
	},
	{
		markers:    []string{"vitamin d", "vit d"},
		qualifiers: []string{"low", "deficient", "insufficient"},
		advice:     "Increase vitamin D: fatty fish, fortified milk, sunlight exposure",
	},
	{
		markers:    []string{"cholesterol"},
		qualifiers: []string{"high", "elevated"},
		advice:     "Heart-healthy diet: reduce saturated fats, increase fiber, omega-3 fatty acids",
	},
	{
		markers:    []string{"glucose", "blood sugar"},
		qualifiers: []string{"high", "elevated"},
		advice:     "Blood sugar management: complex carbohydrates, regular meals, limit refined sugars",
	},
}

const nutritionFallback = "Maintain a balanced diet with variety of fruits, vegetables, lean proteins, and whole grains"

var exerciseRules = []rule{
	{
		markers:    []string{"hemoglobin", "hgb"},
		qualifiers: []string{"low", "anemia"},
		advice:     "Start with light exercise: walking, gentle yoga. Gradually increase intensity as iron levels improve",
	},
	{
		markers:    []string{"cholesterol"},
		qualifiers: []string{"high", "elevated"},
		advice:     "Cardiovascular exercise: 30 minutes moderate activity 5 days/week (walking, swimming, cycling)",
	},
	{
		markers:    []string{"glucose"},
		qualifiers: []string{"high", "diabetes"},
		advice:     "Blood sugar management: regular exercise, resistance training 2-3x/week, post-meal walks",
	},
}

var exerciseGeneral = []string{
	"Strength training: 2-3 sessions per week targeting major muscle groups",
	"Flexibility: Daily stretching or yoga",
	"Cardio: 150 minutes moderate or 75 minutes vigorous activity per week",
}

// Nutrition suggests dietary changes from keyword matches in the report text.
func Nutrition() Capability {
	return Func{ID: NutritionLookup, Fn: func(_ context.Context, args Args) (string, error) {
		recs := applyRules(nutritionRules, args.Text)
		if len(recs) == 0 {
			recs = []string{nutritionFallback}
		}
		return bullets("Nutrition Recommendations:", recs), nil
	}}
}

// Exercise suggests activity adjustments from keyword matches in the report
// text, always followed by general guidelines.
func Exercise() Capability {
	return Func{ID: ExerciseLookup, Fn: func(_ context.Context, args Args) (string, error) {
		recs := append(applyRules(exerciseRules, args.Text), exerciseGeneral...)
		return bullets("Exercise Plan:", recs), nil
	}}
}

// Document returns the request's document text, cut to maxChars runes
// (no limit if <= 0).
func Document(maxChars int) Capability {
	return Func{ID: DocumentRead, Fn: func(_ context.Context, args Args) (string, error) {
		if strings.TrimSpace(args.Text) == "" {
			return "", errNoDocumentText
		}
		return truncateRunes(args.Text, maxChars), nil
	}}
}

func applyRules(rules []rule, text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, r := range rules {
		if r.matches(lower) {
			out = append(out, r.advice)
		}
	}
	return out
}

func bullets(header string, lines []string) string {
	var sb strings.Builder
	sb.WriteString(header)
	for _, l := range lines {
		sb.WriteString("\n• ")
		sb.WriteString(l)
	}
	return sb.String()
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "\n[... document truncated ...]"
}
