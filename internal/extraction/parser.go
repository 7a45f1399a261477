package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombor/docextract/internal/fetch"
)

// Fetcher materializes a source locator as a local file.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*fetch.Local, error)
}

// Parser is the single entry point for turning a document into fields. It is
// safe for concurrent use as long as its strategies are.
type Parser struct {
	fetcher    Fetcher
	strategies []Strategy
	processor  *Processor
	logger     *slog.Logger
}

// NewParser creates a Parser. Strategies are tried in order and the first one
// that supports a file is used.
func NewParser(fetcher Fetcher, strategies []Strategy, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		fetcher:    fetcher,
		strategies: strategies,
		processor:  NewProcessor(),
		logger:     logger,
	}
}

// ParseDocument fetches locator, extracts fields with the first strategy
// supporting kind or the file extension, normalizes and scores them.
//
// Fetch failures are returned unchanged. A file no strategy supports yields an
// *UnsupportedFormatError. Everything else is wrapped in an *ExtractionError.
// The local copy is released on every path.
func (p *Parser) ParseDocument(ctx context.Context, locator, kind string) (*Result, error) {
	start := time.Now()

	local, err := p.fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := local.Release(); err != nil {
			p.logger.Warn("failed to release local copy", "path", local.Path, "error", err)
		}
	}()

	file := NewFile(local.Path, kind)
	strategy, err := p.SelectStrategy(file.Kind, file.Extension)
	if err != nil {
		return nil, err
	}

	raw, err := strategy.Extract(ctx, file)
	if err != nil {
		p.logger.Error("extraction failed",
			"locator", locator,
			"strategy", strategy.Format(),
			"error", err,
		)
		return nil, &ExtractionError{Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ExtractionError{Cause: err}
	}

	fields := p.processor.Process(raw, strategy.Format())
	result := &Result{
		Fields:     fields,
		Confidence: DocumentConfidence(fields),
		Format:     strategy.Format(),
	}

	p.logger.Info("document parsed",
		"locator", locator,
		"strategy", strategy.Format(),
		"fields", len(fields),
		"confidence", result.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// SelectStrategy returns the first strategy that supports kind or extension.
func (p *Parser) SelectStrategy(kind, extension string) (Strategy, error) {
	for _, s := range p.strategies {
		if s.Supports(kind, extension) {
			return s, nil
		}
	}
	return nil, &UnsupportedFormatError{Kind: kind, Extension: extension}
}
