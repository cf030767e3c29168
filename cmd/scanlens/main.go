package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/scanlens/internal/catalog"
	"github.com/zombor/scanlens/internal/extract"
	"github.com/zombor/scanlens/internal/payment"
	"github.com/zombor/scanlens/internal/scan"
	"github.com/zombor/scanlens/internal/scanning"
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

	fs := ff.NewFlagSet("scanlens")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "scanlens.db", "Scan database file path")
		archiveType    = fs.StringLong("archive", "local", "Upload archive: 'local', 'azure' or 'none'")
		archiveDir     = fs.StringLong("archive-dir", "./uploads", "Upload archive directory (local archive)")
		azureAccount   = fs.StringLong("azure-account", "", "Azure storage account name")
		azureKey       = fs.StringLong("azure-key", "", "Azure storage account key")
		azureContainer = fs.StringLong("azure-container", "scans", "Azure blob container")
		azureURL       = fs.StringLong("azure-url", "", "Azure blob service URL (defaults to the public endpoint)")
		ocrType        = fs.StringLong("ocr", "gemini", "OCR engine: 'gemini', 'ollama', 'tesseract' or 'none'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		ocrLanguage    = fs.StringLong("ocr-language", scanning.DefaultLanguage, "OCR language code")
		catalogPath    = fs.StringLong("catalog-db", "catalog.db", "Product catalog database path")
		catalogRemote  = fs.StringLong("catalog-remote", catalog.DefaultOpenFoodFactsURL, "Remote product catalog URL (empty disables)")
		paymentHook    = fs.StringLong("payment-webhook", "", "URL that receives UPI payment intents (empty only logs them)")
		currencySymbol = fs.StringLong("currency-symbol", extract.DefaultCurrencySymbol, "Currency symbol used to find receipt amounts")
		historySize    = fs.IntLong("history-size", scan.DefaultHistorySize, "Number of recent results kept in memory")
		workers        = fs.IntLong("workers", 4, "Concurrent recognitions for batch uploads")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		modeFlag       = fs.StringLong("mode", "code", "Mode for command line scans: 'code' or 'receipt'")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCANLENS"),
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

	mode, err := scan.ParseMode(*modeFlag)
	if err != nil {
		slog.Error("Invalid mode", "error", err)
		os.Exit(1)
	}

	// Initialize OCR engine based on type
	engine, err := newOCREngine(ocrConfig{
		Type:        *ocrType,
		GeminiKey:   *geminiKey,
		GeminiModel: *geminiModel,
		OllamaURL:   *ollamaURL,
		OllamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "type", *ocrType, "error", err)
		os.Exit(1)
	}
	if engine == nil {
		slog.Info("OCR disabled; receipt mode will fail")
	}

	var recognizer scan.Recognizer
	if engine != nil {
		ocr := scanning.NewOCR(engine, *ocrType, *ocrLanguage)
		defer ocr.Close()
		recognizer = ocr
	}

	// Initialize product catalog
	slog.Info("Initializing product catalog...", "path", *catalogPath)
	local, err := catalog.OpenSQLite(*catalogPath)
	if err != nil {
		slog.Error("Failed to initialize product catalog", "error", err)
		os.Exit(1)
	}
	defer local.Close()

	var products catalog.Catalog = local
	if *catalogRemote != "" {
		products = catalog.NewCached(local, catalog.NewOpenFoodFacts(*catalogRemote))
	}

	var dispatcher payment.Dispatcher = payment.LogDispatcher{}
	if *paymentHook != "" {
		dispatcher = payment.NewWebhookDispatcher(*paymentHook)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := scan.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pipeline := scan.NewPipeline(scan.Deps{
		OCR:        recognizer,
		Receipts:   extract.NewReceiptParser(*currencySymbol),
		Products:   extract.NewProductExtractor(products, nil),
		Store:      db,
		Dispatcher: dispatcher,
	})

	// Positional arguments are files to scan once instead of serving
	if args := fs.GetArgs(); len(args) > 0 {
		os.Exit(scanFiles(pipeline, args, mode, *workers))
	}

	// Initialize upload archive
	var archive scan.Archive
	switch *archiveType {
	case "local":
		archive, err = scan.NewLocalArchive(*archiveDir)
	case "azure":
		archive, err = scan.NewAzureArchive(*azureAccount, *azureKey, *azureContainer, *azureURL)
	case "none":
	default:
		slog.Error("Invalid archive type", "type", *archiveType, "valid", "local, azure or none")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize upload archive", "type", *archiveType, "error", err)
		os.Exit(1)
	}

	service := scan.NewService(pipeline, db, archive, scan.NewHistory(*historySize), *workers)

	basicAuth := scan.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := scan.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("Failed to listen", "address", addr, "error", err)
		os.Exit(1)
	}

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, ln, server, pipeline); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

type fileOutcome struct {
	File   string           `json:"file"`
	Result *scan.ScanResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Kind   scan.FailureKind `json:"kind,omitempty"`
}

// scanFiles recognizes each path and prints one JSON line per file. The exit
// code is 1 if any file failed.
func scanFiles(pipeline *scan.Pipeline, paths []string, mode scan.Mode, workers int) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	images := make([]scanning.Image, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read file", "path", path, "error", err)
			return 1
		}
		images[i] = scanning.Image{Data: data, ContentType: scanning.ContentTypeFromFilename(path)}
	}

	outcomes := pipeline.RecognizeBatch(ctx, images, mode, workers)
	pipeline.WaitDispatches()

	status := 0
	enc := json.NewEncoder(os.Stdout)
	for i, o := range outcomes {
		out := fileOutcome{File: paths[i], Result: o.Result}
		if o.Err != nil {
			out.Error = o.Err.Error()
			out.Kind = scan.FailureKindOf(o.Err)
			status = 1
		}
		if err := enc.Encode(out); err != nil {
			slog.Error("Failed to write result", "path", paths[i], "error", err)
			return 1
		}
	}
	return status
}
