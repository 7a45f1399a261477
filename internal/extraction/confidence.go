package extraction

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	reValidEmail  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	reValidAmount = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
	reValidZip    = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	reValidISO    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	rePhoneChars  = regexp.MustCompile(`^[\d\s().+\-]+$`)
)

var (
	amountKeywords     = []string{"amount", "price", "total", "cost", "fee", "tax", "sum"}
	longTextKeywords   = []string{"description", "notes", "note", "comment", "memo"}
	shortAllowKeywords = []string{"id", "code"}
	criticalKeywords   = []string{"total", "amount", "invoice", "date", "customer", "vendor", "id"}
	secondaryKeywords  = []string{"address", "email", "phone", "tax", "description"}
)

const (
	longTextThreshold    = 20
	lengthSaturation     = 20.0
	extractionWeight     = 0.7
	contentQualityWeight = 0.3
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ScoreField blends the strategy's extraction confidence with a content
// quality score for the value.
func ScoreField(name, value string, extractionConfidence float64) float64 {
	quality, _ := contentQuality(name, value)
	return clamp(extractionWeight*clamp(extractionConfidence) + contentQualityWeight*quality)
}

// Validate reports whether value matches the pattern implied by name. It
// returns nil when the field has no typed pattern.
func Validate(name, value string) *bool {
	_, valid := contentQuality(name, value)
	return valid
}

// contentQuality scores value against the pattern implied by the field name.
// valid is nil for fields with no typed pattern.
func contentQuality(name, value string) (score float64, valid *bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0.1, nil
	}
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "email"):
		return typed(reValidEmail.MatchString(value), 0.95, 0.3)
	case strings.Contains(lower, "phone"):
		return typed(isPhone(value), 0.9, 0.4)
	case strings.Contains(lower, "date"):
		return typed(isISODate(value), 0.9, 0.4)
	case containsAny(lower, amountKeywords):
		return typed(reValidAmount.MatchString(value), 0.95, 0.5)
	case strings.Contains(lower, "zip") || strings.Contains(lower, "postal"):
		return typed(reValidZip.MatchString(value), 0.95, 0.5)
	}

	n := utf8.RuneCountInString(value)
	if containsAny(lower, longTextKeywords) && n > longTextThreshold {
		return 0.8, nil
	}
	if n < 3 && !containsAny(lower, shortAllowKeywords) {
		return 0.4, nil
	}
	return genericQuality(value, n), nil
}

func typed(ok bool, hit, miss float64) (float64, *bool) {
	if ok {
		return hit, &ok
	}
	return miss, &ok
}

func isPhone(v string) bool {
	if !rePhoneChars.MatchString(v) {
		return false
	}
	digits := 0
	first := rune(0)
	for _, r := range v {
		if r >= '0' && r <= '9' {
			if digits == 0 {
				first = r
			}
			digits++
		}
	}
	return digits == 10 || (digits == 11 && first == '1')
}

func isISODate(v string) bool {
	if !reValidISO.MatchString(v) {
		return false
	}
	_, err := time.Parse("2006-01-02", v)
	return err == nil
}

// genericQuality blends a length score saturating at 20 characters with a
// unique-character ratio weighted by length, 60/40.
func genericQuality(value string, n int) float64 {
	lengthScore := float64(n) / lengthSaturation
	if lengthScore > 1 {
		lengthScore = 1
	}
	unique := make(map[rune]struct{}, n)
	for _, r := range value {
		unique[r] = struct{}{}
	}
	variety := float64(len(unique)) / float64(n) * lengthScore
	return 0.6*lengthScore + 0.4*variety
}

func fieldWeight(name string) float64 {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, criticalKeywords):
		return 2.0
	case containsAny(lower, secondaryKeywords):
		return 1.5
	default:
		return 1.0
	}
}

// DocumentConfidence is the importance weighted average of field confidences.
// It is 0 for an empty field list.
func DocumentConfidence(fields []Field) float64 {
	var sum, weights float64
	for _, f := range fields {
		w := fieldWeight(f.Name)
		sum += w * clamp(f.Confidence)
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return clamp(sum / weights)
}
