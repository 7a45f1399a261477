package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	reEmail      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	reNonDigit   = regexp.MustCompile(`\D`)
	reAmountJunk = regexp.MustCompile(`[^0-9.\-]`)
	reWord       = regexp.MustCompile(`\b[A-Za-z]+\b`)

	reDateUS    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reDateDash  = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	reDateWords = regexp.MustCompile(`(?i)^([a-z]{3,9})\.?\s+(\d{1,2}),?\s+(\d{4})$`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var streetTypes = map[string]struct{}{
	"street": {}, "st": {},
	"avenue": {}, "ave": {},
	"road": {}, "rd": {},
	"boulevard": {}, "blvd": {},
	"drive": {}, "dr": {},
	"lane": {}, "ln": {},
	"court": {}, "ct": {},
	"plaza": {}, "plz": {},
	"square": {}, "sq": {},
}

// Email lowercases an address and removes whitespace. Values that do not
// look like local@domain.tld are returned unchanged.
func Email(s string) string {
	cleaned := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if !reEmail.MatchString(cleaned) {
		return s
	}
	return cleaned
}

// Phone formats 10 digit numbers as (XXX) XXX-XXXX and 11 digit numbers with
// a leading 1 as 1-XXX-XXX-XXXX. Anything else is returned unchanged.
func Phone(s string) string {
	digits := reNonDigit.ReplaceAllString(s, "")
	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:])
	case len(digits) == 11 && digits[0] == '1':
		return fmt.Sprintf("1-%s-%s-%s", digits[1:4], digits[4:7], digits[7:])
	default:
		return s
	}
}

// Date rewrites MM/DD/YYYY, DD-MM-YYYY and "Month DD, YYYY" values as
// YYYY-MM-DD. Ambiguous day/month order is not resolved: the first pattern
// that matches wins, and values naming an impossible calendar day are left
// untouched.
func Date(s string) string {
	v := strings.TrimSpace(s)

	if m := reDateUS.FindStringSubmatch(v); m != nil {
		return isoDate(s, atoi(m[3]), atoi(m[1]), atoi(m[2]))
	}
	if m := reDateDash.FindStringSubmatch(v); m != nil {
		return isoDate(s, atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := reDateWords.FindStringSubmatch(v); m != nil {
		month, ok := months[strings.ToLower(m[1])]
		if !ok {
			return s
		}
		return isoDate(s, atoi(m[3]), int(month), atoi(m[2]))
	}
	return s
}

func isoDate(original string, year, month, day int) string {
	if month < 1 || month > 12 || day < 1 {
		return original
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return original
	}
	return t.Format("2006-01-02")
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// Amount keeps digits, '.' and '-', drops every decimal point after the
// first and formats the result with exactly two decimals. When the stripped
// value does not parse it is returned as-is; when nothing survives stripping
// the original is returned.
func Amount(s string) string {
	stripped := reAmountJunk.ReplaceAllString(s, "")
	if stripped == "" {
		return s
	}
	if i := strings.IndexByte(stripped, '.'); i >= 0 {
		stripped = stripped[:i+1] + strings.ReplaceAll(stripped[i+1:], ".", "")
	}
	d, err := decimal.NewFromString(stripped)
	if err != nil {
		return stripped
	}
	return d.StringFixed(2)
}

// Address collapses whitespace, title-cases street types and uppercases
// other standalone two letter tokens (state codes).
func Address(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		return s
	}
	return reWord.ReplaceAllStringFunc(collapsed, func(w string) string {
		lower := strings.ToLower(w)
		if _, ok := streetTypes[lower]; ok {
			return strings.ToUpper(lower[:1]) + lower[1:]
		}
		if len(w) == 2 {
			return strings.ToUpper(w)
		}
		return w
	})
}

// Name lowercases the value and capitalizes the first letter of each word.
func Name(s string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.Und).String(strings.ToLower(s))
}

// Clean trims surrounding whitespace and drops control characters. Newlines
// and tabs inside the value are replaced by a space.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
