package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	GCP      GCPConfig
	Gemini   GeminiConfig
	OCR      OCRConfig
	Pipeline PipelineConfig
	Amount   AmountConfig
	Jobs     JobsConfig
	HTTP     HTTPConfig
	Logging  LoggingConfig
	Notion   NotionConfig
}

// GCPConfig locates the BigQuery dataset and the document bucket.
type GCPConfig struct {
	ProjectID      string
	DatasetID      string
	Bucket         string
	StorageBackend string // gcs|memory
}

// GeminiConfig configures the AI-vision OCR provider.
type GeminiConfig struct {
	APIKey    string
	Model     string
	UseVertex bool
	Project   string
	Location  string
}

// NotionConfig mirrors statement outcomes into a Notion database when both
// values are set.
type NotionConfig struct {
	Token      string
	DatabaseID string
}

// Enabled reports whether outcomes should be sent to Notion.
func (c NotionConfig) Enabled() bool {
	return c.Token != "" && c.DatabaseID != ""
}

// OCRConfig governs the provider chain and the classical OCR engine.
type OCRConfig struct {
	ProviderTimeout    time.Duration
	MinTextLength      int
	TesseractEnabled   bool
	TesseractLanguages []string
	TesseractDPI       int
	TesseractWorkers   int
}

// Empty statement policies.
const (
	EmptyStatementFail     = "fail"
	EmptyStatementComplete = "complete"
)

// Concurrent run policies.
const (
	ConcurrentRunWait   = "wait"
	ConcurrentRunReject = "reject"
)

// PipelineConfig holds orchestrator policy.
type PipelineConfig struct {
	Timeout              time.Duration
	EmptyStatementPolicy string
	ConcurrentRunPolicy  string
	DefaultCurrency      string
}

// Amount correction modes.
const (
	CorrectionFlag        = "flag"
	CorrectionAutoCorrect = "auto_correct"
)

// AmountConfig holds the scale-error thresholds, in major currency units
// except for the ratios.
type AmountConfig struct {
	Ceiling         int64
	ReviewThreshold int64
	MedianRatio     int64
	TargetRatio     int64
	CorrectionMode  string
}

// JobsConfig sizes the in-process job queue. PollInterval is how often the
// worker looks for pending statements.
type JobsConfig struct {
	Workers      int
	BufferSize   int
	PollInterval time.Duration
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	AuthToken       string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // console|json
}

const (
	defaultDataset          = "finance"
	defaultGeminiModel      = "gemini-2.5-flash"
	defaultProviderTimeout  = 90 * time.Second
	defaultPipelineTimeout  = 5 * time.Minute
	defaultMinTextLength    = 20
	defaultTesseractDPI     = 300
	defaultTesseractWorkers = 4
	defaultCeiling          = 1_000_000
	defaultReviewThreshold  = 100_000
	defaultMedianRatio      = 1000
	defaultTargetRatio      = 10
	defaultWorkers          = 5
	defaultBufferSize       = 100
	defaultPort             = "8080"
	defaultMaxUploadBytes   = 32 << 20
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		GCP: GCPConfig{
			ProjectID:      firstNonEmpty(os.Getenv("GCP_PROJECT"), os.Getenv("GOOGLE_CLOUD_PROJECT")),
			DatasetID:      valueOrDefault("BQ_DATASET", defaultDataset),
			Bucket:         os.Getenv("GCS_BUCKET"),
			StorageBackend: valueOrDefault("STORAGE_BACKEND", "gcs"),
		},
		Gemini: GeminiConfig{
			APIKey:    firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
			Model:     valueOrDefault("GEMINI_MODEL", defaultGeminiModel),
			UseVertex: parseBoolWithDefault("GOOGLE_GENAI_USE_VERTEXAI", false),
			Project:   os.Getenv("GOOGLE_CLOUD_PROJECT"),
			Location:  os.Getenv("GOOGLE_CLOUD_LOCATION"),
		},
		OCR: OCRConfig{
			MinTextLength:      parseIntWithDefault("OCR_MIN_TEXT_LENGTH", defaultMinTextLength),
			TesseractEnabled:   parseBoolWithDefault("TESSERACT_ENABLED", true),
			TesseractLanguages: splitCSV(valueOrDefault("TESSERACT_LANGUAGES", "eng")),
			TesseractDPI:       parseIntWithDefault("TESSERACT_DPI", defaultTesseractDPI),
			TesseractWorkers:   parseIntWithDefault("TESSERACT_WORKERS", defaultTesseractWorkers),
		},
		Pipeline: PipelineConfig{
			EmptyStatementPolicy: valueOrDefault("EMPTY_STATEMENT_POLICY", EmptyStatementFail),
			ConcurrentRunPolicy:  valueOrDefault("CONCURRENT_RUN_POLICY", ConcurrentRunWait),
			DefaultCurrency:      valueOrDefault("DEFAULT_CURRENCY", "GBP"),
		},
		Amount: AmountConfig{
			Ceiling:         parseInt64WithDefault("AMOUNT_CEILING", defaultCeiling),
			ReviewThreshold: parseInt64WithDefault("AMOUNT_REVIEW_THRESHOLD", defaultReviewThreshold),
			MedianRatio:     parseInt64WithDefault("AMOUNT_MEDIAN_RATIO", defaultMedianRatio),
			TargetRatio:     parseInt64WithDefault("AMOUNT_TARGET_RATIO", defaultTargetRatio),
			CorrectionMode:  valueOrDefault("AMOUNT_CORRECTION_MODE", CorrectionFlag),
		},
		Jobs: JobsConfig{
			Workers:    parseIntWithDefault("JOB_WORKERS", defaultWorkers),
			BufferSize: parseIntWithDefault("JOB_BUFFER", defaultBufferSize),
		},
		HTTP: HTTPConfig{
			Port:           valueOrDefault("PORT", defaultPort),
			MaxUploadBytes: parseInt64WithDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
			AuthToken:      os.Getenv("API_TOKEN"),
		},
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", "info"),
			Format: valueOrDefault("LOG_FORMAT", "console"),
		},
		Notion: NotionConfig{
			Token:      os.Getenv("NOTION_TOKEN"),
			DatabaseID: os.Getenv("NOTION_DATABASE_ID"),
		},
	}

	var err error
	if cfg.OCR.ProviderTimeout, err = parseDurationWithDefault("OCR_PROVIDER_TIMEOUT", defaultProviderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Pipeline.Timeout, err = parseDurationWithDefault("PIPELINE_TIMEOUT", defaultPipelineTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Jobs.PollInterval, err = parseDurationWithDefault("WORKER_POLL_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.ReadTimeout, err = parseDurationWithDefault("SERVER_READ_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.WriteTimeout, err = parseDurationWithDefault("SERVER_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.IdleTimeout, err = parseDurationWithDefault("SERVER_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.ShutdownTimeout, err = parseDurationWithDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum values and timeout ordering.
func (c Config) Validate() error {
	switch c.Pipeline.EmptyStatementPolicy {
	case EmptyStatementFail, EmptyStatementComplete:
	default:
		return fmt.Errorf("invalid EMPTY_STATEMENT_POLICY %q", c.Pipeline.EmptyStatementPolicy)
	}
	switch c.Pipeline.ConcurrentRunPolicy {
	case ConcurrentRunWait, ConcurrentRunReject:
	default:
		return fmt.Errorf("invalid CONCURRENT_RUN_POLICY %q", c.Pipeline.ConcurrentRunPolicy)
	}
	switch c.Amount.CorrectionMode {
	case CorrectionFlag, CorrectionAutoCorrect:
	default:
		return fmt.Errorf("invalid AMOUNT_CORRECTION_MODE %q", c.Amount.CorrectionMode)
	}
	switch c.GCP.StorageBackend {
	case "gcs", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q", c.GCP.StorageBackend)
	}
	if c.Amount.Ceiling <= 0 || c.Amount.MedianRatio <= 0 || c.Amount.TargetRatio <= 0 {
		return fmt.Errorf("amount ceiling and ratios must be positive")
	}
	if c.Pipeline.Timeout > 0 && c.OCR.ProviderTimeout >= c.Pipeline.Timeout {
		return fmt.Errorf("OCR_PROVIDER_TIMEOUT (%s) must be shorter than PIPELINE_TIMEOUT (%s)", c.OCR.ProviderTimeout, c.Pipeline.Timeout)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive")
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseInt64WithDefault(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseInt(v, 10, 64); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
