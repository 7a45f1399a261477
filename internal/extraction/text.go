package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	keyValueConfidence  = 0.7
	lineItemsConfidence = 0.7
	lineItemsFieldName  = "Line Items"
	minKeyLength        = 2
	maxKeyLength        = 25
	minTableColumns     = 3
)

// labeledPattern finds one labeled value in free text. Group 1 is the label,
// group 2 the value.
type labeledPattern struct {
	re         *regexp.Regexp
	confidence float64
	name       func(label string) string
}

// Looser patterns carry lower confidence.
var labeledPatterns = []labeledPattern{
	{
		re:         regexp.MustCompile(`(?i)\b(invoice|order)\s*(?:number\b|num\b|no\b\.?|#)\s*[:#\-]?\s*([a-z0-9][a-z0-9\-/]*)`),
		confidence: 0.9,
		name:       func(label string) string { return titleLabel(label) + " Number" },
	},
	{
		re:         regexp.MustCompile(`(?i)\b((?:(?:invoice|order|due|issue|bill)\s+)?date)\s*[:\-]?\s*(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}|\d{4}-\d{2}-\d{2}|[a-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})`),
		confidence: 0.85,
		name:       titleLabel,
	},
	{
		re:         regexp.MustCompile(`(?i)\b((?:grand\s+)?total(?:\s+(?:due|amount))?|amount(?:\s+due)?|balance\s+due)\s*[:\-]?\s*([$€£]?\s*-?\d[\d,]*(?:\.\d{1,2})?)`),
		confidence: 0.8,
		name:       titleLabel,
	},
	{
		re:         regexp.MustCompile(`(?im)^[ \t]*(customer|client|vendor|supplier|bill\s+to|sold\s+to)(?:\s+name)?[ \t]*[:\-][ \t]*(\S.*?)[ \t]*$`),
		confidence: 0.75,
		name: func(label string) string {
			switch strings.ToLower(label) {
			case "vendor", "supplier":
				return "Vendor Name"
			default:
				return "Customer Name"
			}
		},
	},
}

var (
	reMultiSpace = regexp.MustCompile(`\s{2,}`)
	reColumnSep  = regexp.MustCompile(`\t+|\s{2,}`)
	reDashSep    = regexp.MustCompile(`\s-|-\s`)
)

func titleLabel(label string) string {
	return cases.Title(language.Und).String(strings.ToLower(strings.Join(strings.Fields(label), " ")))
}

// TextStrategy handles PDFs and plain text documents.
type TextStrategy struct {
	matcher
	logger  *slog.Logger
	readPDF func(path string) ([]string, error)
}

// NewTextStrategy creates a TextStrategy that reads PDFs with MuPDF.
func NewTextStrategy(logger *slog.Logger) *TextStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStrategy{
		matcher: newMatcher(
			[]string{"pdf", "application/pdf", "text", "txt", "text/plain", "document"},
			nil,
			[]string{".pdf", ".txt", ".text"},
		),
		logger:  logger,
		readPDF: readPDFPages,
	}
}

func (s *TextStrategy) Format() Format { return FormatText }

func (s *TextStrategy) Supports(kind, extension string) bool {
	return s.supports(kind, extension)
}

// Extract reads every page, then runs labeled-pattern, key-value and table
// detection over the concatenated text.
func (s *TextStrategy) Extract(ctx context.Context, file File) ([]Field, error) {
	pages, err := s.readPages(file)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.Join(pages, "\n\n")

	fields := fieldsFromText(text, 1)
	tables := detectTables(text)
	if len(tables) > 0 {
		data, err := json.Marshal(tables)
		if err != nil {
			return nil, fmt.Errorf("encoding line items: %w", err)
		}
		fields = append(fields, Field{Name: lineItemsFieldName, Value: string(data), Confidence: lineItemsConfidence})
	}

	s.logger.Debug("text extraction complete",
		"path", file.Path,
		"pages", len(pages),
		"fields", len(fields),
		"tables", len(tables),
	)
	return fields, nil
}

func (s *TextStrategy) readPages(file File) ([]string, error) {
	isPDF := file.Extension == ".pdf" ||
		(file.Extension != ".txt" && file.Extension != ".text" && strings.Contains(file.Kind, "pdf"))
	if isPDF {
		pages, err := s.readPDF(file.Path)
		if err != nil {
			return nil, fmt.Errorf("reading pdf: %w", err)
		}
		return pages, nil
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("reading text file: content is not valid UTF-8")
	}
	// Form feeds separate pages in plain text exports.
	return strings.Split(string(data), "\f"), nil
}

// fieldsFromText runs the labeled patterns and key-value detection. Every
// confidence is multiplied by scale.
func fieldsFromText(text string, scale float64) []Field {
	var fields []Field
	seen := make(map[string]struct{})

	for _, p := range labeledPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		name := p.name(m[1])
		seen[normalizeKey(name)] = struct{}{}
		fields = append(fields, Field{Name: name, Value: value, Confidence: clamp(p.confidence * scale)})
	}

	for _, line := range strings.Split(text, "\n") {
		if len(splitColumns(line)) >= minTableColumns {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		nk := normalizeKey(key)
		if _, dup := seen[nk]; dup {
			continue
		}
		seen[nk] = struct{}{}
		fields = append(fields, Field{Name: key, Value: value, Confidence: clamp(keyValueConfidence * scale)})
	}

	return fields
}

// splitKeyValue splits "key: value", "key  value" and "key - value" lines.
func splitKeyValue(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	var key, value string
	if i := strings.Index(line, ":"); i > 0 {
		key, value = line[:i], line[i+1:]
	} else if loc := reMultiSpace.FindStringIndex(line); loc != nil {
		key, value = line[:loc[0]], line[loc[1]:]
	} else if loc := reDashSep.FindStringIndex(line); loc != nil {
		key, value = line[:loc[0]], line[loc[1]:]
	} else {
		return "", "", false
	}

	key = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(key), "-"))
	value = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(value), "-"))
	n := utf8.RuneCountInString(key)
	if n < minKeyLength || n > maxKeyLength || value == "" {
		return "", "", false
	}
	if strings.IndexFunc(key, unicode.IsLetter) < 0 {
		return "", "", false
	}
	return key, value, true
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func splitColumns(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cols := reColumnSep.Split(line, -1)
	for i, c := range cols {
		cols[i] = strings.Join(strings.Fields(c), " ")
	}
	return cols
}

// table rows line up with Headers by position.
type table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// detectTables groups runs of lines with the same column count (at least
// three). The first line of a run is the header.
func detectTables(text string) []table {
	var tables []table
	var cur *table

	flush := func() {
		if cur != nil && len(cur.Rows) > 0 {
			tables = append(tables, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		cols := splitColumns(line)
		if len(cols) < minTableColumns {
			flush()
			continue
		}
		if cur != nil && len(cols) == len(cur.Headers) {
			cur.Rows = append(cur.Rows, cols)
			continue
		}
		flush()
		cur = &table{Headers: cols}
	}
	flush()

	return tables
}
