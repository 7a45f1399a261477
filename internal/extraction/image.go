package extraction

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"os"
	"strconv"

	"github.com/gen2brain/heic"

	"github.com/zombor/docextract/internal/ocr"
)

const (
	imageWidthFieldName  = MetadataPrefix + "image_width"
	imageHeightFieldName = MetadataPrefix + "image_height"
	imageFormatFieldName = MetadataPrefix + "image_format"
)

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
}

// ImageStrategy reports image metadata and runs OCR over the image.
type ImageStrategy struct {
	matcher
	backend ocr.Backend
	logger  *slog.Logger
}

// NewImageStrategy creates an ImageStrategy. A nil backend yields metadata
// fields only.
func NewImageStrategy(backend ocr.Backend, logger *slog.Logger) *ImageStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageStrategy{
		matcher: newMatcher(
			[]string{"image", "png", "jpg", "jpeg", "gif", "heic", "heif"},
			[]string{"image/"},
			[]string{".png", ".jpg", ".jpeg", ".gif", ".heic", ".heif"},
		),
		backend: backend,
		logger:  logger,
	}
}

func (s *ImageStrategy) Format() Format { return FormatImage }

func (s *ImageStrategy) Supports(kind, extension string) bool {
	return s.supports(kind, extension)
}

// Extract emits width, height and format fields, then the labeled and
// key-value fields found in the recognized text. Text field confidences are
// scaled by the recognition confidence.
func (s *ImageStrategy) Extract(ctx context.Context, file File) ([]Field, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	cfg, format, err := decodeImageConfig(data)
	if err != nil {
		return nil, err
	}
	fields := []Field{
		{Name: imageWidthFieldName, Value: strconv.Itoa(cfg.Width), Confidence: 1.0},
		{Name: imageHeightFieldName, Value: strconv.Itoa(cfg.Height), Confidence: 1.0},
		{Name: imageFormatFieldName, Value: format, Confidence: 1.0},
	}

	if s.backend == nil {
		s.logger.Debug("no ocr backend configured, returning image metadata only", "path", file.Path)
		return fields, nil
	}

	rec, err := s.backend.Recognize(ctx, data, contentTypeFor(file, format))
	if err != nil {
		return nil, fmt.Errorf("recognizing text: %w", err)
	}
	fields = append(fields, fieldsFromText(rec.Text, rec.Confidence())...)

	s.logger.Debug("image extraction complete",
		"path", file.Path,
		"format", format,
		"ocr_lines", len(rec.Lines),
		"ocr_confidence", rec.Confidence(),
		"fields", len(fields),
	)
	return fields, nil
}

func decodeImageConfig(data []byte) (image.Config, string, error) {
	if ocr.IsHEIC(data) {
		cfg, err := heic.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return image.Config{}, "", fmt.Errorf("decoding HEIC/HEIF header: %w", err)
		}
		return cfg, "heic", nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decoding image header: %w", err)
	}
	return cfg, format, nil
}

func contentTypeFor(file File, format string) string {
	if ct, ok := imageContentTypes[file.Extension]; ok {
		return ct
	}
	return "image/" + format
}
