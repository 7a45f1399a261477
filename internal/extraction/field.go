package extraction

// Format identifies the strategy family that produced a set of fields. The
// field processor keys its format-specific pass on it.
type Format string

const (
	FormatText    Format = "text"
	FormatTabular Format = "tabular"
	FormatImage   Format = "image"
)

// MetadataPrefix marks synthetic fields that describe the document rather
// than a value found in it.
const MetadataPrefix = "_metadata_"

// Field is one extracted (name, value, confidence) triple. Value is always a
// string, including numbers and dates.
type Field struct {
	Name       string  `json:"name" yaml:"name"`
	Value      string  `json:"value" yaml:"value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	IsValid    *bool   `json:"is_valid,omitempty" yaml:"is_valid,omitempty"`

	// RawValue and ExtractionConfidence keep what the strategy produced
	// before processing rewrote Value and Confidence.
	RawValue             string  `json:"raw_value,omitempty" yaml:"raw_value,omitempty"`
	ExtractionConfidence float64 `json:"extraction_confidence,omitempty" yaml:"extraction_confidence,omitempty"`
}

// Result is the outcome of a single parse. Confidence is the document level
// aggregate, not a copy of any field score. Names in Fields may repeat.
type Result struct {
	Fields     []Field `json:"fields" yaml:"fields"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Format     Format  `json:"format" yaml:"format"`
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
