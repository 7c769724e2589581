package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-ledger/internal/receipt"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	defaults := receipt.DefaultConfig()

	fs := ff.NewFlagSet("receipt-ledger")
	var (
		mode          = fs.StringLong("mode", "batch", "Run mode: 'batch' processes --input once, 'serve' starts the HTTP API")
		input         = fs.StringLong("input", ".", "Directory of receipts to process in batch mode")
		out           = fs.StringLong("out", "receipts.xlsx", "XLSX output path for batch mode, empty to skip")
		dbPath        = fs.StringLong("db", "", "Batch database file path (serve mode defaults to receipt-ledger.db)")
		port          = fs.IntLong("port", 8080, "HTTP server port")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		strategies    = fs.StringLong("strategies", "vision,ocr", "Raster strategy preference order")
		noNative      = fs.BoolLong("no-native-text", "Skip the PDF text layer and always rasterize")
		nativePages   = fs.StringLong("native-pages", defaults.NativePages, "PDF text layer pages to read: 'all' or 'first'")
		minNative     = fs.IntLong("min-native-chars", defaults.MinNativeChars, "Characters the PDF text layer must exceed to be used")
		timeout       = fs.DurationLong("backend-timeout", defaults.BackendTimeout, "Timeout for a single OCR or vision call")
		docWorkers    = fs.IntLong("document-concurrency", defaults.DocumentConcurrency, "Documents processed at once")
		backendSlots  = fs.IntLong("backend-concurrency", defaults.BackendConcurrency, "OCR and vision calls in flight at once")
		dpi           = fs.IntLong("dpi", defaults.DPI, "PDF rasterization resolution")
		maxPages      = fs.IntLong("max-pages", 0, "Maximum pages rendered per PDF, 0 for no limit")
		scratchDir    = fs.StringLong("scratch-dir", "", "Directory for rendered pages (default: OS temp dir)")
		vision        = fs.StringLong("vision", "gemini", "Vision backend: 'gemini', 'ollama', 'openai' or 'none'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		openaiURL     = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI compatible API base URL")
		openaiKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel   = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		ocr           = fs.StringLong("ocr", "tesseract", "OCR backend: 'tesseract' or 'none'")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "chi_sim+eng", "tesseract languages")
		tesseractPSM  = fs.IntLong("tesseract-psm", 6, "tesseract page segmentation mode")
		tessdataDir   = fs.StringLong("tessdata-dir", "", "tesseract language data directory")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_LEDGER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logFormat, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	order, err := receipt.ParseStrategies(*strategies)
	if err != nil {
		slog.Error("Invalid strategies", "error", err)
		os.Exit(1)
	}
	cfg := receipt.Config{
		RasterOrder:         order,
		NativeText:          !*noNative,
		NativePages:         *nativePages,
		MinNativeChars:      *minNative,
		BackendTimeout:      *timeout,
		DocumentConcurrency: *docWorkers,
		BackendConcurrency:  *backendSlots,
		DPI:                 *dpi,
		MaxPages:            *maxPages,
		ScratchDir:          *scratchDir,
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pdfText := scanning.NewPDFText()
	backends := receipt.Backends{TextLayer: pdfText}

	// Initialize vision backend based on type
	switch *vision {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable, or use --vision none")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini vision backend...", "model", *geminiModel)
		backends.Vision, err = scanning.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama vision backend...", "url", *ollamaURL, "model", *ollamaModel)
		backends.Vision, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	case "openai":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI vision backend...", "url", *openaiURL, "model", *openaiModel)
		backends.Vision, err = scanning.NewOpenAI(*openaiURL, apiKey, *openaiModel)
	case "none":
	default:
		slog.Error("Invalid vision backend", "type", *vision, "valid", "gemini, ollama, openai or none")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize vision backend", "type", *vision, "error", err)
		os.Exit(1)
	}
	if backends.Vision != nil {
		defer backends.Vision.Close()
	}

	switch *ocr {
	case "tesseract":
		backends.OCR = scanning.NewTesseract(scanning.TesseractConfig{
			Binary:      *tesseractBin,
			Lang:        *tesseractLang,
			PSM:         *tesseractPSM,
			TessdataDir: *tessdataDir,
		}, scanning.ExecRunner{})
	case "none":
	default:
		slog.Error("Invalid OCR backend", "type", *ocr, "valid", "tesseract or none")
		os.Exit(1)
	}

	pipeline := receipt.NewPipeline(cfg, backends, receipt.NewFitzRenderer(cfg))
	if len(pipeline.Strategies()) == 0 && !cfg.NativeText {
		slog.Error("No extraction strategy is available with the configured backends")
		os.Exit(1)
	}

	if *mode == "serve" && *dbPath == "" {
		*dbPath = "receipt-ledger.db"
	}
	var db receipt.DB
	if *dbPath != "" {
		slog.Info("Initializing database...", "path", *dbPath)
		bolt, err := receipt.NewBoltDB(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer bolt.Close()
		db = bolt
	}

	service := receipt.NewService(cfg, pipeline, db, pdfText)

	switch *mode {
	case "batch":
		if err := runBatch(ctx, service, *input, *out); err != nil {
			slog.Error("Batch failed", "error", err)
			os.Exit(1)
		}
	case "serve":
		basicAuth := receipt.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		}
		if *authUser != "" || *authPass != "" {
			slog.Info("Basic auth enabled", "user", *authUser)
		}
		server := receipt.NewServer(service, basicAuth)
		if err := server.Start(ctx, fmt.Sprintf(":%d", *port)); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid mode", "mode", *mode, "valid", "batch or serve")
		os.Exit(1)
	}
}

func setupLogging(format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

// runBatch processes dir, writes the workbook and prints a summary. A
// cancelled batch still writes what it has.
func runBatch(ctx context.Context, service *receipt.Service, dir, out string) error {
	result, err := service.ProcessDirectory(ctx, dir)
	if result == nil {
		return err
	}

	if out != "" {
		if werr := writeWorkbook(out, result); werr != nil {
			return errors.Join(err, werr)
		}
		slog.Info("Wrote workbook", "path", out)
	}

	printSummary(result)
	if err != nil {
		return err
	}
	if result.Cancelled {
		return fmt.Errorf("batch %s was cancelled", result.ID)
	}
	return nil
}

func writeWorkbook(path string, result *receipt.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := receipt.WriteXLSX(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(result *receipt.BatchResult) {
	fmt.Printf("Batch %s: %d documents, %d records, %d failed documents, %d failed pages\n",
		result.ID, result.Documents, len(result.Records), len(result.Failures), len(result.PageFailures))

	if len(result.Failures) == 0 && len(result.PageFailures) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tPAGE\tKIND\tERROR")
	for _, f := range append(append([]receipt.Failure{}, result.Failures...), result.PageFailures...) {
		page := "-"
		if f.Page >= 0 {
			page = fmt.Sprintf("%d", f.Page+1)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.DocumentID, page, f.Kind, f.Message)
	}
	w.Flush()
}
