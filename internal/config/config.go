// Package config loads and validates formharvest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/logging"
	"github.com/JakeFAU/formharvest/internal/storage"
	"github.com/JakeFAU/formharvest/internal/storage/local"
	"github.com/JakeFAU/formharvest/internal/storage/minio"
)

// EnvPrefix prefixes every environment override, e.g. FORMHARVEST_STORAGE_ROOT_DIR.
const EnvPrefix = "FORMHARVEST"

// Upload providers.
const (
	ProviderMinIO = "minio"
	ProviderGCS   = "gcs"
)

// DefaultTopics are the form categories searched in smart mode.
var DefaultTopics = []string{
	"finance sector account opening form",
	"insurance claim form",
	"income tax return form",
	"marriage certificate application form",
	"caste certificate application form",
	"income certificate application form",
	"birth certificate application form",
	"death certificate application form",
	"PAN card application form",
	"voter ID application form",
	"driving license application form",
	"passport application form",
	"Aadhaar card application form",
	"loan application form",
	"student visa application form",
	"work visa application form",
	"residency permit application form",
	"social security application form",
	"disability certificate application form",
	"unemployment benefits application form",
	"food security application form",
	"health insurance application form",
	"child care application form",
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    logging.Config       `mapstructure:"logging"`
	Storage    local.StoreConfig    `mapstructure:"storage"`
	Ledger     storage.LedgerConfig `mapstructure:"ledger"`
	Fetch      FetchConfig          `mapstructure:"fetch"`
	Search     SearchConfig         `mapstructure:"search"`
	QueryGen   QueryGenConfig       `mapstructure:"querygen"`
	Upload     UploadConfig         `mapstructure:"upload"`
	Notify     NotifyConfig         `mapstructure:"notify"`
	Server     ServerConfig         `mapstructure:"server"`
	Validation ValidateConfig       `mapstructure:"validate"`
	Raster     RasterConfig         `mapstructure:"raster"`
	OCR        OCRConfig            `mapstructure:"ocr"`
	Harvest    HarvestConfig        `mapstructure:"harvest"`
}

// FetchConfig governs the downloader.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	MaxInFlight   int           `mapstructure:"max_in_flight"`
	PerHostRPS    float64       `mapstructure:"per_host_rps"`
	PerHostBurst  int           `mapstructure:"per_host_burst"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// SearchConfig configures the search backends.
type SearchConfig struct {
	SerpAPIKey        string        `mapstructure:"serpapi_key"`
	SerpAPIURL        string        `mapstructure:"serpapi_url"`
	DuckDuckGoEnabled bool          `mapstructure:"duckduckgo_enabled"`
	DuckDuckGoURL     string        `mapstructure:"duckduckgo_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	QueryResults      int           `mapstructure:"query_results"`
	TopicResults      int           `mapstructure:"topic_results"`
}

// QueryGenConfig configures the text-generation backend.
type QueryGenConfig struct {
	OpenAIKey string        `mapstructure:"openai_api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// UploadConfig selects the object store relay.
type UploadConfig struct {
	Provider string       `mapstructure:"provider"`
	Bucket   string       `mapstructure:"bucket"`
	MinIO    minio.Config `mapstructure:"minio"`
	GCS      GCSConfig    `mapstructure:"gcs"`
}

// GCSConfig holds GCS-specific settings.
type GCSConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// Enabled reports whether uploads are configured.
func (c UploadConfig) Enabled() bool {
	switch c.Provider {
	case ProviderMinIO:
		return c.MinIO.Enabled() && c.Bucket != ""
	case ProviderGCS:
		return c.Bucket != ""
	default:
		return false
	}
}

// NotifyConfig holds metadata for stored-document notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether notifications should be published.
func (c NotifyConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ValidateConfig locates validation inputs and outputs.
type ValidateConfig struct {
	InputDir      string `mapstructure:"input_dir"`
	QuarantineDir string `mapstructure:"quarantine_dir"`
	Report        string `mapstructure:"report"`
	QPDFBinary    string `mapstructure:"qpdf_binary"`
}

// RasterConfig controls rasterization.
type RasterConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	DPI       int    `mapstructure:"dpi"`
	Limit     int    `mapstructure:"limit"`
	Binary    string `mapstructure:"binary"`
}

// OCRConfig controls OCR and the labeling export.
type OCRConfig struct {
	InputDir  string   `mapstructure:"input_dir"`
	OutputDir string   `mapstructure:"output_dir"`
	LabelFile string   `mapstructure:"label_file"`
	Languages []string `mapstructure:"languages"`
	Limit     int      `mapstructure:"limit"`
}

// HarvestConfig sets defaults for the harvest command.
type HarvestConfig struct {
	Limit  int      `mapstructure:"limit"`
	Topics []string `mapstructure:"topics"`
}

// Load builds a Config from defaults, an optional YAML file, an optional
// .env file and the environment, in increasing precedence.
func Load(path string) (Config, error) {
	return load(path, ".env")
}

func load(path, dotEnv string) (Config, error) {
	if err := loadDotEnv(dotEnv); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindProviderEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv exports KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// bindProviderEnv maps the providers' conventional variable names onto
// config keys, after the prefixed form.
func bindProviderEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"search.serpapi_key":      {EnvPrefix + "_SEARCH_SERPAPI_KEY", "SERPAPI_API_KEY"},
		"querygen.openai_api_key": {EnvPrefix + "_QUERYGEN_OPENAI_API_KEY", "OPENAI_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")

	v.SetDefault("storage.root_dir", "downloads")
	v.SetDefault("storage.extension", ".pdf")

	v.SetDefault("ledger.connection_string", "pdf_metadata.db")
	v.SetDefault("ledger.table", "pdfs")
	v.SetDefault("ledger.on_duplicate", string(harvest.DuplicateIgnore))
	v.SetDefault("ledger.max_conns", 4)
	v.SetDefault("ledger.max_conn_lifetime", "30m")

	v.SetDefault("fetch.user_agent", "formharvest/0.1")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_body_bytes", 64<<20)
	v.SetDefault("fetch.max_in_flight", 0)
	v.SetDefault("fetch.per_host_rps", 0)
	v.SetDefault("fetch.per_host_burst", 1)
	v.SetDefault("fetch.respect_robots", false)

	v.SetDefault("search.serpapi_url", "https://serpapi.com/search.json")
	v.SetDefault("search.duckduckgo_enabled", true)
	v.SetDefault("search.duckduckgo_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.timeout", "20s")
	v.SetDefault("search.query_results", 30)
	v.SetDefault("search.topic_results", 20)

	v.SetDefault("querygen.base_url", "https://api.openai.com/v1")
	v.SetDefault("querygen.model", "gpt-4o-mini")
	v.SetDefault("querygen.max_tokens", 300)
	v.SetDefault("querygen.timeout", "60s")

	v.SetDefault("upload.provider", ProviderMinIO)
	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.minio.endpoint", "")
	v.SetDefault("upload.minio.access_key", "")
	v.SetDefault("upload.minio.secret_key", "")
	v.SetDefault("upload.minio.secure", false)
	v.SetDefault("upload.minio.region", "")
	v.SetDefault("upload.gcs.project_id", "")

	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("validate.input_dir", "downloads")
	v.SetDefault("validate.quarantine_dir", "downloads/quarantine")
	v.SetDefault("validate.report", "reports/validation_report.csv")
	v.SetDefault("validate.qpdf_binary", "qpdf")

	v.SetDefault("raster.input_dir", "downloads")
	v.SetDefault("raster.output_dir", "data/images")
	v.SetDefault("raster.dpi", 300)
	v.SetDefault("raster.limit", 0)
	v.SetDefault("raster.binary", "pdftoppm")

	v.SetDefault("ocr.input_dir", "data/images")
	v.SetDefault("ocr.output_dir", "data/ocr")
	v.SetDefault("ocr.label_file", "data/labelstudio_import.jsonl")
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.limit", 0)

	v.SetDefault("harvest.limit", 1000)
	v.SetDefault("harvest.topics", DefaultTopics)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Storage.RootDir) == "" {
		return fmt.Errorf("storage.root_dir is required")
	}
	if strings.TrimSpace(c.Ledger.ConnectionString) == "" {
		return fmt.Errorf("ledger.connection_string is required")
	}
	if !c.Ledger.OnDuplicate.Valid() {
		return fmt.Errorf("ledger.on_duplicate must be %q or %q", harvest.DuplicateIgnore, harvest.DuplicateMerge)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxInFlight < 0 {
		return fmt.Errorf("fetch.max_in_flight must be >= 0")
	}
	if c.Search.QueryResults <= 0 || c.Search.TopicResults <= 0 {
		return fmt.Errorf("search.query_results and search.topic_results must be > 0")
	}
	switch c.Upload.Provider {
	case "", ProviderMinIO:
	case ProviderGCS:
		if c.Upload.Bucket != "" && c.Upload.GCS.ProjectID == "" {
			return fmt.Errorf("upload.gcs.project_id is required for the gcs provider")
		}
	default:
		return fmt.Errorf("upload.provider must be %q or %q", ProviderMinIO, ProviderGCS)
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Raster.DPI <= 0 {
		return fmt.Errorf("raster.dpi must be > 0")
	}
	if c.Harvest.Limit < 0 {
		return fmt.Errorf("harvest.limit must be >= 0")
	}
	return nil
}
