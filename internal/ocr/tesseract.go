package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// TesseractConfig configures the tesseract CLI backend.
type TesseractConfig struct {
	Binary string // binary name or absolute path; if empty -> "tesseract"
	Lang   string // default "eng"
	PSM    int    // page segmentation mode; 0 leaves tesseract's default
}

// Tesseract recognizes text by running the tesseract CLI in TSV mode.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

// NewTesseract creates a Tesseract backend.
func NewTesseract(cfg TesseractConfig, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Tesseract{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Recognize converts the image to PNG, writes it to a temporary file and runs
// tesseract over it.
func (t *Tesseract) Recognize(ctx context.Context, data []byte, contentType string) (Recognition, error) {
	pngData, err := PreparePNG(data, contentType)
	if err != nil {
		return Recognition{}, err
	}

	tmp, err := os.CreateTemp("", "docextract-ocr-*.png")
	if err != nil {
		return Recognition{}, fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pngData); err != nil {
		tmp.Close()
		return Recognition{}, fmt.Errorf("writing temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Recognition{}, fmt.Errorf("writing temp image: %w", err)
	}

	args := []string{tmp.Name(), "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	args = append(args, "tsv")

	stdout, stderr, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return Recognition{}, fmt.Errorf("running tesseract: %w: %s", err, truncate(string(stderr), 512))
	}

	rec, err := parseTSV(string(stdout))
	if err != nil {
		return Recognition{}, err
	}
	t.logger.Debug("tesseract recognition complete", "lines", len(rec.Lines), "confidence", rec.Confidence())
	return rec, nil
}

type lineKey struct {
	page, block, par, line int
}

// parseTSV groups word rows by (page, block, paragraph, line). A line's
// confidence is the mean of its word confidences divided by 100.
func parseTSV(out string) (Recognition, error) {
	rows := strings.Split(strings.TrimSpace(out), "\n")
	if len(rows) == 0 || !strings.HasPrefix(rows[0], "level") {
		return Recognition{}, fmt.Errorf("parsing tesseract tsv: missing header")
	}

	type acc struct {
		words []string
		conf  float64
	}
	var order []lineKey
	lines := make(map[lineKey]*acc)

	for _, row := range rows[1:] {
		cols := strings.Split(strings.TrimRight(row, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if text == "" || err != nil || conf < 0 {
			continue
		}
		key := lineKey{atoi(cols[1]), atoi(cols[2]), atoi(cols[3]), atoi(cols[4])}
		a, ok := lines[key]
		if !ok {
			a = &acc{}
			lines[key] = a
			order = append(order, key)
		}
		a.words = append(a.words, text)
		a.conf += conf
	}

	result := make([]Line, 0, len(order))
	for _, key := range order {
		a := lines[key]
		result = append(result, Line{
			Text:       strings.Join(a.words, " "),
			Confidence: a.conf / float64(len(a.words)) / 100,
		})
	}
	return NewRecognition(result), nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
