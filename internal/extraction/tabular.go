package extraction

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	rowCountFieldName     = MetadataPrefix + "row_count"
	documentTypeFieldName = MetadataPrefix + "document_type"
	grandTotalFieldName   = "Grand Total"

	columnBaseConfidence      = 0.7
	columnImportantConfidence = 0.85
	documentTypeConfidence    = 0.8
	columnSumConfidence       = 0.85
	grandTotalConfidence      = 0.8
)

var (
	sumColumnKeywords        = []string{"amount", "total", "price", "cost", "value"}
	grandTotalColumnKeywords = []string{"amount", "total"}
	importantColumnKeywords  = []string{"total", "amount", "invoice", "date", "customer", "vendor", "id", "number"}

	reNumberJunk = regexp.MustCompile(`[$€£,\s]`)
	reCellDate   = regexp.MustCompile(`(?i)^(\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}|[a-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})$`)
)

type documentTypeRule struct {
	name     string
	keywords []string
}

// First matching rule wins.
var documentTypeRules = []documentTypeRule{
	{"Invoice", []string{"invoice"}},
	{"Expense Report", []string{"expense"}},
	{"Purchase Order", []string{"purchase", "po number", "po #", "order"}},
	{"Inventory", []string{"inventory", "stock", "sku"}},
}

// TabularStrategy handles CSV files and Excel workbooks.
type TabularStrategy struct {
	matcher
	logger *slog.Logger
}

// NewTabularStrategy creates a TabularStrategy.
func NewTabularStrategy(logger *slog.Logger) *TabularStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &TabularStrategy{
		matcher: newMatcher(
			[]string{
				"csv", "text/csv", "spreadsheet", "excel", "xlsx", "tabular",
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			},
			nil,
			[]string{".csv", ".xlsx", ".xlsm", ".xltx"},
		),
		logger: logger,
	}
}

func (s *TabularStrategy) Format() Format { return FormatTabular }

func (s *TabularStrategy) Supports(kind, extension string) bool {
	return s.supports(kind, extension)
}

// Extract reduces each column to one representative value and adds row
// count, document type and column sum fields.
func (s *TabularStrategy) Extract(ctx context.Context, file File) ([]Field, error) {
	rows, err := readTable(file)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("spreadsheet has no header row")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	records := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if !isEmptyRecord(r) {
			records = append(records, r)
		}
	}

	var fields []Field
	var sums []Field
	var grandTotal *Field

	for i, header := range headers {
		if header == "" {
			continue
		}
		col := column(records, i)
		if col.nonEmpty == 0 {
			continue
		}

		lower := strings.ToLower(header)
		value := col.first
		sum, numeric := col.sum()
		amountLike := containsAny(lower, sumColumnKeywords)
		if amountLike && numeric {
			value = sum.StringFixed(2)
			sums = append(sums, Field{Name: "Sum of " + header, Value: value, Confidence: columnSumConfidence})
			if grandTotal == nil && containsAny(lower, grandTotalColumnKeywords) {
				grandTotal = &Field{Name: grandTotalFieldName, Value: value, Confidence: grandTotalConfidence}
			}
		}

		fields = append(fields, Field{
			Name:       header,
			Value:      value,
			Confidence: clamp(columnConfidence(lower, col, amountLike)),
		})
	}

	fields = append(fields, Field{Name: rowCountFieldName, Value: strconv.Itoa(len(records)), Confidence: 1.0})
	if guess := guessDocumentType(headers); guess != "" {
		fields = append(fields, Field{Name: documentTypeFieldName, Value: guess, Confidence: documentTypeConfidence})
	}
	fields = append(fields, sums...)
	if grandTotal != nil {
		fields = append(fields, *grandTotal)
	}

	s.logger.Debug("tabular extraction complete",
		"path", file.Path,
		"columns", len(headers),
		"rows", len(records),
		"fields", len(fields),
	)
	return fields, nil
}

// readTable reads workbooks by their zip signature so a CSV declared only by
// kind parses whatever its extension.
func readTable(file File) ([][]string, error) {
	isZip, err := hasZipSignature(file.Path)
	if err != nil {
		return nil, err
	}
	if isZip {
		return readWorkbook(file.Path)
	}
	return readCSV(file.Path)
}

func hasZipSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	magic := make([]byte, len(zipSignature))
	n, err := io.ReadFull(f, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading spreadsheet: %w", err)
	}
	return bytes.Equal(magic[:n], zipSignature), nil
}

var zipSignature = []byte("PK\x03\x04")

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// readWorkbook reads the active sheet of an Excel workbook.
func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func isEmptyRecord(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type columnValues struct {
	values   []string
	first    string
	nonEmpty int
}

func column(records [][]string, i int) columnValues {
	col := columnValues{values: make([]string, len(records))}
	for r, rec := range records {
		if i < len(rec) {
			col.values[r] = strings.TrimSpace(rec[i])
		}
		if col.values[r] != "" {
			if col.nonEmpty == 0 {
				col.first = col.values[r]
			}
			col.nonEmpty++
		}
	}
	return col
}

// sum adds the non-empty values. numeric is false when any of them is not a
// number.
func (c columnValues) sum() (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, v := range c.values {
		if v == "" {
			continue
		}
		d, ok := parseNumber(v)
		if !ok {
			return decimal.Zero, false
		}
		total = total.Add(d)
	}
	return total, c.nonEmpty > 0
}

func (c columnValues) fraction(match func(string) bool) float64 {
	if c.nonEmpty == 0 {
		return 0
	}
	hits := 0
	for _, v := range c.values {
		if v != "" && match(v) {
			hits++
		}
	}
	return float64(hits) / float64(c.nonEmpty)
}

func parseNumber(v string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(reNumberJunk.ReplaceAllString(v, ""))
	return d, err == nil
}

// columnConfidence scales the base confidence by how consistently the column
// is filled, blended 50/50 with a type check for numeric and date columns.
func columnConfidence(lowerHeader string, col columnValues, numeric bool) float64 {
	base := columnBaseConfidence
	if containsAny(lowerHeader, importantColumnKeywords) {
		base = columnImportantConfidence
	}

	consistency := 0.0
	if len(col.values) > 0 {
		consistency = float64(col.nonEmpty) / float64(len(col.values))
	}
	switch {
	case numeric:
		consistency = 0.5*consistency + 0.5*col.fraction(func(v string) bool {
			_, ok := parseNumber(v)
			return ok
		})
	case strings.Contains(lowerHeader, "date"):
		consistency = 0.5*consistency + 0.5*col.fraction(reCellDate.MatchString)
	}
	return base * consistency
}

func guessDocumentType(headers []string) string {
	joined := strings.ToLower(strings.Join(headers, " "))
	for _, rule := range documentTypeRules {
		if containsAny(joined, rule.keywords) {
			return rule.name
		}
	}
	return ""
}
