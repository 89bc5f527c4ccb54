package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/bill-splitter/internal/logging"
	"github.com/zombor/bill-splitter/internal/receipt"
	"github.com/zombor/bill-splitter/internal/scanning"
	"github.com/zombor/bill-splitter/internal/split"
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

	fs := ff.NewFlagSet("bill-splitter")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "bill-splitter.db", "Database file path")
		storageType  = fs.StringLong("storage", "local", "Image storage: 'local' or 's3'")
		storagePath  = fs.StringLong("storage-dir", "./receipts", "Local storage directory path")
		s3Bucket     = fs.StringLong("s3-bucket", "", "S3 bucket name")
		s3Region     = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Endpoint   = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint URL, e.g. for Backblaze B2 or MinIO")
		s3KeyID      = fs.StringLong("s3-key-id", "", "S3 access key ID (default credential chain if empty)")
		s3Secret     = fs.StringLong("s3-secret", "", "S3 secret access key")
		s3PathStyle  = fs.BoolLong("s3-path-style", "Use path-style S3 addressing")
		publicURL    = fs.StringLong("public-url", "", "Base URL image links are built on (relative if empty)")
		extractors   = fs.StringLong("extractors", "gemini:gemini-2.5-pro,gemini:gemini-2.5-flash,openai:gpt-4o,ollama:llava", "Extraction strategies in priority order, as provider:model")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		openAIKey    = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIURL    = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
		ollamaURL    = fs.StringLong("ollama-url", "", "Ollama API base URL, e.g. http://localhost:11434")
		attemptTime  = fs.DurationLong("attempt-timeout", 0, "Timeout for a single extraction attempt (default 60s)")
		breakerFails = fs.IntLong("breaker-failures", 3, "Consecutive request failures before a strategy is paused")
		breakerPause = fs.DurationLong("breaker-cooldown", 0, "How long a failing strategy is paused (default 1m)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		primary      = fs.StringLong("primary-participant", "You", "Participant added to every receipt")
		defaultTax   = fs.Float64Long("default-tax", split.DefaultTaxPct, "Default tax fraction")
		defaultTip   = fs.Float64Long("default-tip", split.DefaultTipPct, "Default tip fraction")
		defaultCurr  = fs.StringLong("default-currency", split.DefaultCurrency, "Default currency code")
		logLevel     = fs.StringLong("log-level", "", "Log level: debug, info, warn or error (or set LOG_LEVEL)")
		_            = fs.StringLong("config", "", "Config file (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_SPLITTER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
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

	logging.Setup(*logLevel)

	settings := receipt.Settings{
		PrimaryParticipant: strings.TrimSpace(*primary),
		DefaultPercentages: split.Percentages{Tax: *defaultTax, Tip: *defaultTip},
		DefaultCurrency:    strings.ToUpper(strings.TrimSpace(*defaultCurr)),
	}
	if err := settings.Validate(); err != nil {
		slog.Error("Invalid receipt defaults", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config{
		port:        *port,
		dbPath:      *dbPath,
		storageType: *storageType,
		storagePath: *storagePath,
		s3: receipt.S3Config{
			Bucket:          *s3Bucket,
			Region:          *s3Region,
			Endpoint:        *s3Endpoint,
			AccessKeyID:     *s3KeyID,
			SecretAccessKey: *s3Secret,
			UsePathStyle:    *s3PathStyle,
			PublicBaseURL:   *publicURL,
		},
		publicURL:  *publicURL,
		extractors: *extractors,
		providers: providerConfig{
			GeminiKey:     firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
			OpenAIKey:     firstNonEmpty(*openAIKey, os.Getenv("OPENAI_API_KEY")),
			OpenAIBaseURL: *openAIURL,
			OllamaURL:     *ollamaURL,
		},
		chainOpts: chainOptions(*attemptTime, *breakerFails, *breakerPause),
		auth:      receipt.BasicAuth{Username: *authUser, Password: *authPass},
		settings:  settings,
	}); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

type config struct {
	port        int
	dbPath      string
	storageType string
	storagePath string
	s3          receipt.S3Config
	publicURL   string
	extractors  string
	providers   providerConfig
	chainOpts   []scanning.ChainOption
	auth        receipt.BasicAuth
	settings    receipt.Settings
}

func run(ctx context.Context, cfg config) error {
	// Initialize database
	slog.Info("Initializing database...", "path", cfg.dbPath)
	db, err := receipt.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// Initialize storage
	var store receipt.Storage
	switch cfg.storageType {
	case "local":
		slog.Info("Initializing local storage...", "path", cfg.storagePath)
		store, err = receipt.NewLocalStorage(cfg.storagePath, cfg.publicURL)
	case "s3":
		slog.Info("Initializing S3 storage...", "bucket", cfg.s3.Bucket, "endpoint", cfg.s3.Endpoint)
		store, err = receipt.NewS3Storage(ctx, cfg.s3)
	default:
		return fmt.Errorf("invalid storage type %q: want local or s3", cfg.storageType)
	}
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	// Initialize extraction strategies
	scanners, skipped, err := buildScanners(ctx, cfg.extractors, cfg.providers)
	if err != nil {
		return err
	}
	defer closeAll(scanners)
	for _, entry := range skipped {
		slog.Warn("Skipping extractor without credentials", "extractor", entry)
	}

	metrics := receipt.NewMetrics()
	chain := scanning.NewChain(scanners, append(cfg.chainOpts, scanning.WithAttemptHook(metrics.ObserveAttempt))...)
	if len(scanners) == 0 {
		slog.Warn("No extractors configured; receipts can only be entered by hand")
	} else {
		slog.Info("Extraction strategies ready", "order", strings.Join(chain.Names(), ","))
	}

	receiptService := receipt.NewService(db, chain, store, cfg.settings)
	receiptService.SetMetrics(metrics)

	server := receipt.NewServer(receiptService, cfg.auth, metrics)
	if cfg.auth.Username != "" || cfg.auth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.auth.Username)
	}

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	return server.Start(ctx, addr)
}

func chainOptions(timeout time.Duration, failures int, cooldown time.Duration) []scanning.ChainOption {
	var opts []scanning.ChainOption
	if timeout > 0 {
		opts = append(opts, scanning.WithAttemptTimeout(timeout))
	}
	if failures > 0 {
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		opts = append(opts, scanning.WithBreaker(uint32(failures), cooldown))
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
