package extraction

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/zombor/docextract/internal/ocr"
)

// File is an input that has already been materialized on local disk.
type File struct {
	Path      string
	Kind      string
	Extension string
}

// NewFile builds a File for path with the kind and extension normalized the
// way strategies compare them.
func NewFile(path, kind string) File {
	return File{
		Path:      path,
		Kind:      NormalizeKind(kind),
		Extension: NormalizeExt(filepath.Ext(path)),
	}
}

// Strategy turns one family of file formats into raw fields.
type Strategy interface {
	// Format identifies the strategy family for the field processor.
	Format() Format
	// Supports reports whether the declared kind or the extension is handled.
	// Either one is sufficient.
	Supports(kind, extension string) bool
	// Extract reads the file and returns raw fields with provisional
	// confidence. A failure is returned as a single error with a readable cause.
	Extract(ctx context.Context, file File) ([]Field, error)
}

// DefaultStrategies returns the closed strategy set in selection order:
// text, tabular, image. Selection is first match, so order is significant.
func DefaultStrategies(backend ocr.Backend, logger *slog.Logger) []Strategy {
	return []Strategy{
		NewTextStrategy(logger),
		NewTabularStrategy(logger),
		NewImageStrategy(backend, logger),
	}
}

// NormalizeKind lowercases and trims a declared kind.
func NormalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// NormalizeExt lowercases an extension and makes sure it has a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

type matcher struct {
	kinds        map[string]struct{}
	kindPrefixes []string
	extensions   map[string]struct{}
}

func newMatcher(kinds, kindPrefixes, extensions []string) matcher {
	m := matcher{
		kinds:        make(map[string]struct{}, len(kinds)),
		kindPrefixes: kindPrefixes,
		extensions:   make(map[string]struct{}, len(extensions)),
	}
	for _, k := range kinds {
		m.kinds[k] = struct{}{}
	}
	for _, e := range extensions {
		m.extensions[e] = struct{}{}
	}
	return m
}

func (m matcher) supports(kind, extension string) bool {
	kind = NormalizeKind(kind)
	if _, ok := m.kinds[kind]; ok && kind != "" {
		return true
	}
	for _, p := range m.kindPrefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	_, ok := m.extensions[NormalizeExt(extension)]
	return ok && extension != ""
}
