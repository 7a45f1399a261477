package ocr

import (
	"context"
	"strings"
)

// Line is one recognized line of text. Confidence is in [0,1].
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognition is the output of a Backend.
type Recognition struct {
	Lines []Line
	Text  string
}

// NewRecognition builds a Recognition whose Text is the lines joined by
// newlines. Blank lines are dropped.
func NewRecognition(lines []Line) Recognition {
	kept := make([]Line, 0, len(lines))
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		l.Text = strings.TrimSpace(l.Text)
		if l.Text == "" {
			continue
		}
		l.Confidence = clamp(l.Confidence)
		kept = append(kept, l)
		texts = append(texts, l.Text)
	}
	return Recognition{Lines: kept, Text: strings.Join(texts, "\n")}
}

// Confidence is the mean line confidence, or 0 when nothing was recognized.
func (r Recognition) Confidence() float64 {
	if len(r.Lines) == 0 {
		return 0
	}
	var sum float64
	for _, l := range r.Lines {
		sum += l.Confidence
	}
	return clamp(sum / float64(len(r.Lines)))
}

// Backend recognizes text in an image.
type Backend interface {
	Recognize(ctx context.Context, data []byte, contentType string) (Recognition, error)
}

// Static returns the same lines for every image.
type Static struct {
	lines []Line
}

// NewStatic creates a Static backend.
func NewStatic(lines ...Line) *Static {
	return &Static{lines: lines}
}

func (s *Static) Recognize(ctx context.Context, _ []byte, _ string) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	return NewRecognition(s.lines), nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
