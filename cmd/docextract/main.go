package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffyaml"

	"github.com/zombor/docextract/internal/extraction"
	"github.com/zombor/docextract/internal/fetch"
	"github.com/zombor/docextract/internal/ocr"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// rootConfig holds the flags shared by every subcommand
type rootConfig struct {
	logFormat *string
	logLevel  *string

	ocrBackend    *string
	tesseractBin  *string
	tesseractLang *string
	tesseractPSM  *int
	geminiKey     *string
	geminiModel   *string
	ollamaURL     *string
	ollamaModel   *string

	httpTimeout *time.Duration
	s3Endpoint  *string
	s3AccessKey *string
	s3SecretKey *string
	s3SSL       *bool
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	rootFlags := ff.NewFlagSet("docextract")
	cfg := &rootConfig{
		logFormat:     rootFlags.StringLong("log-format", "text", "Log format: 'text' or 'json'"),
		logLevel:      rootFlags.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
		ocrBackend:    rootFlags.StringLong("ocr", "none", "OCR backend for images: 'none', 'tesseract', 'gemini' or 'ollama'"),
		tesseractBin:  rootFlags.StringLong("tesseract-bin", "tesseract", "Tesseract binary"),
		tesseractLang: rootFlags.StringLong("tesseract-lang", "eng", "Tesseract language"),
		tesseractPSM:  rootFlags.IntLong("tesseract-psm", 0, "Tesseract page segmentation mode (0 keeps the default)"),
		geminiKey:     rootFlags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:   rootFlags.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		ollamaURL:     rootFlags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:   rootFlags.StringLong("ollama-model", "llava", "Ollama vision model name"),
		httpTimeout:   rootFlags.DurationLong("http-timeout", 30*time.Second, "Timeout for downloading http(s) locators"),
		s3Endpoint:    rootFlags.StringLong("s3-endpoint", "", "S3 compatible endpoint for s3:// locators (optional)"),
		s3AccessKey:   rootFlags.StringLong("s3-access-key", "", "S3 access key"),
		s3SecretKey:   rootFlags.StringLong("s3-secret-key", "", "S3 secret key"),
		s3SSL:         rootFlags.BoolLong("s3-ssl", "Use TLS for the S3 endpoint"),
	}
	rootFlags.StringLong("config", "", "YAML config file (optional)")
	rootFlags.BoolLong("version", "Show version information")

	root := &ff.Command{
		Name:        "docextract",
		Usage:       "docextract [FLAGS] <SUBCOMMAND>",
		ShortHelp:   "extract structured fields from documents",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{newServeCommand(cfg, rootFlags), newParseCommand(cfg, rootFlags)},
	}

	err := root.Parse(os.Args[1:],
		ff.WithEnvVarPrefix("DOCEXTRACT"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
	)
	if err != nil {
		selected := root.GetSelected()
		if selected == nil {
			selected = root
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(selected))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(os.Stderr, *cfg.logFormat, *cfg.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root))
			os.Exit(1)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the --log-format and --log-level flags
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q, want text or json", format)
	}
}

// newFetcher routes local paths, http(s) URLs and, when an endpoint is set,
// s3:// locators.
func newFetcher(cfg *rootConfig) (*fetch.Router, error) {
	web := fetch.NewHTTP(&http.Client{Timeout: *cfg.httpTimeout})
	router := fetch.NewRouter().
		Register("http", web).
		Register("https", web)

	if *cfg.s3Endpoint != "" {
		s3, err := fetch.NewS3(fetch.S3Config{
			Endpoint:  *cfg.s3Endpoint,
			AccessKey: *cfg.s3AccessKey,
			SecretKey: *cfg.s3SecretKey,
			UseSSL:    *cfg.s3SSL,
		})
		if err != nil {
			return nil, err
		}
		router.Register("s3", s3)
	}
	return router, nil
}

// newBackend returns the configured OCR backend and a function releasing it.
// The "none" backend is nil, which limits images to metadata fields.
func newBackend(ctx context.Context, cfg *rootConfig, logger *slog.Logger) (ocr.Backend, func(), error) {
	noop := func() {}

	switch *cfg.ocrBackend {
	case "none", "":
		return nil, noop, nil
	case "tesseract":
		logger.Info("Initializing Tesseract OCR...", "binary", *cfg.tesseractBin, "lang", *cfg.tesseractLang)
		return ocr.NewTesseract(ocr.TesseractConfig{
			Binary: *cfg.tesseractBin,
			Lang:   *cfg.tesseractLang,
			PSM:    *cfg.tesseractPSM,
		}, logger), noop, nil
	case "gemini":
		apiKey := *cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, noop, fmt.Errorf("gemini API key is required, set --gemini-key or GEMINI_API_KEY")
		}
		logger.Info("Initializing Gemini OCR...", "model", *cfg.geminiModel)
		g, err := ocr.NewGemini(ctx, apiKey, *cfg.geminiModel)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing Gemini: %w", err)
		}
		return g, func() { g.Close() }, nil
	case "ollama":
		logger.Info("Initializing Ollama OCR...", "url", *cfg.ollamaURL, "model", *cfg.ollamaModel)
		return ocr.NewOllama(*cfg.ollamaURL, *cfg.ollamaModel), noop, nil
	default:
		return nil, noop, fmt.Errorf("invalid OCR backend %q, want none, tesseract, gemini or ollama", *cfg.ocrBackend)
	}
}

// newParser wires the fetcher, OCR backend and strategies into a parser
func newParser(ctx context.Context, cfg *rootConfig, logger *slog.Logger) (*extraction.Parser, func(), error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing fetcher: %w", err)
	}
	backend, release, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return extraction.NewParser(fetcher, extraction.DefaultStrategies(backend, logger), logger), release, nil
}
