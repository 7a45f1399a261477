package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/docextract/internal/extraction"
)

// Parser turns a stored document into fields
type Parser interface {
	ParseDocument(ctx context.Context, locator, kind string) (*extraction.Result, error)
}

// Scheduler queues a document for background processing and returns a job ID
type Scheduler interface {
	Enqueue(ctx context.Context, documentID string) (string, error)
}

// IDGenerator generates unique IDs for documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles document operations
type Service struct {
	db          DB
	parser      Parser
	storage     Storage
	scheduler   Scheduler
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, parser Parser, storage Storage) *Service {
	return NewServiceWithDeps(db, parser, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, parser Parser, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		parser:      parser,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// UseScheduler makes Upload and Reprocess queue documents instead of parsing
// them inline.
func (s *Service) UseScheduler(scheduler Scheduler) {
	s.scheduler = scheduler
}

var (
	reFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaces        = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = reFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(reSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "document"
	}
	return base + ext
}

// Upload stores a file and records a pending document. With a scheduler the
// document is queued, otherwise it is parsed before returning.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, contentType, kind string) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	if kind == "" {
		kind = contentType
	}
	doc := &Document{
		ID:          id,
		Filename:    savedName,
		ContentType: contentType,
		Kind:        kind,
		Locator:     s.storage.Locator(savedName),
		Status:      StatusPending,
		Fields:      []extraction.Field{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveDocument(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, savedName); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("saving document to database: %w", err)
	}

	if s.scheduler == nil {
		return s.Process(ctx, id)
	}
	if err := s.schedule(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// schedule queues a pending document. When the scheduler refuses the job the
// document is marked failed so it can be reprocessed later.
func (s *Service) schedule(ctx context.Context, doc *Document) error {
	jobID, err := s.scheduler.Enqueue(ctx, doc.ID)
	if err != nil {
		err = fmt.Errorf("queueing document: %w", err)
		doc.Status = StatusFailed
		doc.Error = err.Error()
		doc.UpdatedAt = s.timeSource.Now()
		if saveErr := s.db.SaveDocument(ctx, doc); saveErr != nil {
			slog.Error("Failed to record queueing failure", "document_id", doc.ID, "error", saveErr)
		}
		return err
	}
	slog.Info("Queued document", "document_id", doc.ID, "job_id", jobID)
	return nil
}

// Process parses a stored document and records the outcome. A parse failure
// leaves the document failed and is also returned.
func (s *Service) Process(ctx context.Context, id string) (*Document, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	doc.Status = StatusProcessing
	doc.Attempts++
	doc.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	result, parseErr := s.parser.ParseDocument(ctx, doc.Locator, doc.Kind)
	doc.UpdatedAt = s.timeSource.Now()
	if parseErr != nil {
		slog.Error("Failed to parse document",
			"document_id", doc.ID,
			"locator", doc.Locator,
			"kind", doc.Kind,
			"attempt", doc.Attempts,
			"error", parseErr,
		)
		doc.Status = StatusFailed
		doc.Error = parseErr.Error()
		if err := s.db.SaveDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("saving document: %w", err)
		}
		return doc, parseErr
	}

	doc.Status = StatusProcessed
	doc.Error = ""
	doc.Format = result.Format
	doc.Fields = mergeFields(nil, result.Fields)
	doc.Confidence = result.Confidence
	doc.Version++
	if err := s.db.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	return doc, nil
}

// HandleJob is the queue handler. Failures that another attempt cannot fix are
// marked permanent.
func (s *Service) HandleJob(ctx context.Context, job Job) error {
	_, err := s.Process(ctx, job.DocumentID)
	if err == nil {
		return nil
	}

	var extractionErr *extraction.ExtractionError
	if errors.Is(err, ErrNotFound) || errors.Is(err, extraction.ErrUnsupportedFormat) || errors.As(err, &extractionErr) {
		return Permanent(err)
	}
	return err
}

// Get retrieves a document by ID
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// List returns all documents, newest first
func (s *Service) List(ctx context.Context) ([]*Document, error) {
	docs, err := s.db.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// Delete removes a document and its file
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("getting document for deletion: %w", err)
	}

	if err := s.storage.Delete(ctx, doc.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", doc.Filename, "error", err)
	}

	if err := s.db.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("deleting document from database: %w", err)
	}
	return nil
}

// GetFile retrieves the uploaded bytes and content type for a document
func (s *Service) GetFile(ctx context.Context, id string) ([]byte, string, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}

	data, err := s.storage.Get(ctx, doc.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting document file: %w", err)
	}
	return data, doc.ContentType, nil
}

// CorrectField records a reviewer's value for a field. The corrected field is
// fully trusted and replaces any extracted field with the same name.
func (s *Service) CorrectField(ctx context.Context, id, name, value string) (*Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("field name is required")
	}
	value = strings.TrimSpace(value)

	field := extraction.Field{
		Name:                 name,
		Value:                value,
		Confidence:           1.0,
		IsValid:              extraction.Validate(name, value),
		RawValue:             value,
		ExtractionConfidence: 1.0,
	}
	doc, err := s.db.UpsertFields(ctx, id, []extraction.Field{field}, s.timeSource.Now())
	if err != nil {
		return nil, fmt.Errorf("correcting field: %w", err)
	}
	slog.Info("Corrected field", "document_id", id, "field", name, "version", doc.Version)
	return doc, nil
}

// Reprocess parses a document again, or queues it when a scheduler is set.
func (s *Service) Reprocess(ctx context.Context, id string) (*Document, error) {
	if s.scheduler == nil {
		return s.Process(ctx, id)
	}

	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	doc.Status = StatusPending
	doc.Error = ""
	doc.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	if err := s.schedule(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

const exportSheet = "Fields"

// ExportXLSX writes the fields of a document as a workbook with one row per
// field.
func (s *Service) ExportXLSX(ctx context.Context, id string, w io.Writer) error {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("getting document: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	header := []interface{}{"Name", "Value", "Confidence", "Valid", "Raw Value"}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, field := range doc.Fields {
		valid := ""
		if field.IsValid != nil {
			valid = fmt.Sprintf("%t", *field.IsValid)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing row: %w", err)
		}
		row := []interface{}{field.Name, field.Value, field.Confidence, valid, field.RawValue}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
