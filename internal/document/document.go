package document

import (
	"errors"
	"time"

	"github.com/zombor/docextract/internal/extraction"
)

// Status is the processing state of a document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned by stores when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is an uploaded file and the latest extraction result for it
type Document struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename"`
	ContentType string             `json:"content_type"`
	Kind        string             `json:"kind"`
	Locator     string             `json:"locator"`
	Status      Status             `json:"status"`
	Error       string             `json:"error,omitempty"`
	Format      extraction.Format  `json:"format,omitempty"`
	Fields      []extraction.Field `json:"fields"`
	Confidence  float64            `json:"confidence"`
	Version     int                `json:"version"`  // bumped on every new result or correction
	Attempts    int                `json:"attempts"` // processing attempts, including retries
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// mergeFields upserts updates into existing by field name. The last write for
// a name wins and keeps the position where the name first appeared.
func mergeFields(existing, updates []extraction.Field) []extraction.Field {
	merged := make([]extraction.Field, 0, len(existing)+len(updates))
	index := make(map[string]int, len(existing)+len(updates))
	for _, f := range append(append([]extraction.Field(nil), existing...), updates...) {
		if i, ok := index[f.Name]; ok {
			merged[i] = f
			continue
		}
		index[f.Name] = len(merged)
		merged = append(merged, f)
	}
	return merged
}

// applyFieldUpdates merges fields into doc and refreshes the document
// confidence and version.
func applyFieldUpdates(doc *Document, fields []extraction.Field, at time.Time) {
	doc.Fields = mergeFields(doc.Fields, fields)
	doc.Confidence = extraction.DocumentConfidence(doc.Fields)
	doc.Version++
	doc.UpdatedAt = at
}
