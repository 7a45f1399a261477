package extraction

import (
	"strings"
	"unicode"

	"github.com/zombor/docextract/internal/normalize"
)

var (
	digitConfusions  = strings.NewReplacer("O", "0", "o", "0", "I", "1", "l", "1")
	letterConfusions = strings.NewReplacer("0", "O", "1", "I", "$", "S")
)

// Processor normalizes raw strategy fields and rescores them.
type Processor struct{}

// NewProcessor creates a Processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process runs the format pass for the producing strategy, then the common
// pass, then recomputes each field's confidence from its extraction
// confidence and the normalized value. The input slice is not modified.
func (p *Processor) Process(fields []Field, format Format) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		raw := f.Value

		v := formatPass(format, f.Name, raw)
		v = normalize.Field(f.Name, v)
		v = normalize.Field(f.Name, normalize.Clean(v))

		_, valid := contentQuality(f.Name, v)
		out = append(out, Field{
			Name:                 f.Name,
			Value:                v,
			Confidence:           ScoreField(f.Name, v, f.Confidence),
			IsValid:              valid,
			RawValue:             raw,
			ExtractionConfidence: clamp(f.Confidence),
		})
	}
	return out
}

func formatPass(format Format, name, v string) string {
	if name == lineItemsFieldName {
		return v
	}
	switch format {
	case FormatText:
		return strings.Join(strings.Fields(v), " ")
	case FormatImage:
		return fixOCRConfusions(name, strings.Join(strings.Fields(v), " "))
	case FormatTabular:
		return stripFormula(v)
	default:
		return v
	}
}

// fixOCRConfusions repairs characters OCR commonly swaps. Tokens of numeric
// fields that already contain a digit get letters mapped to digits, and a
// leading S before a digit becomes $. Tokens of name fields get digits mapped
// back to letters.
func fixOCRConfusions(name, v string) string {
	switch normalize.CategoryOf(name) {
	case normalize.CategoryAmount, normalize.CategoryPhone, normalize.CategoryDate:
		tokens := strings.Split(v, " ")
		for i, tok := range tokens {
			if !strings.ContainsFunc(tok, unicode.IsDigit) {
				continue
			}
			if len(tok) > 1 && tok[0] == 'S' && unicode.IsDigit(rune(tok[1])) {
				tok = "$" + tok[1:]
			}
			tokens[i] = digitConfusions.Replace(tok)
		}
		return strings.Join(tokens, " ")
	case normalize.CategoryName:
		tokens := strings.Split(v, " ")
		for i, tok := range tokens {
			if strings.ContainsFunc(tok, unicode.IsLetter) {
				tokens[i] = letterConfusions.Replace(tok)
			}
		}
		return strings.Join(tokens, " ")
	default:
		return v
	}
}

// stripFormula removes a leading '=' or '\'' and unwraps ="..." text
// formulas.
func stripFormula(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 3 && strings.HasPrefix(v, `="`) && strings.HasSuffix(v, `"`) {
		return v[2 : len(v)-1]
	}
	v = strings.TrimPrefix(v, "=")
	return strings.TrimPrefix(v, "'")
}
