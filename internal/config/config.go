package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"tradelens/internal/dataprocessing"
)

const (
	// EnvPrefix namespaces every environment variable, e.g. TRADELENS_SERVER_PORT.
	EnvPrefix = "TRADELENS"
	// ConfigFileEnv names the variable holding the YAML file path.
	ConfigFileEnv = "TRADELENS_CONFIG"
	// DefaultConfigFile is read when ConfigFileEnv is unset and the file exists.
	DefaultConfigFile = "tradelens.yaml"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// PipelineConfig controls ledger normalization
type PipelineConfig struct {
	Timezone       string        `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	DateLayout     string        `yaml:"date_layout" envconfig:"DATE_LAYOUT" validate:"required"`
	RowErrorPolicy string        `yaml:"row_error_policy" envconfig:"ROW_ERROR_POLICY" validate:"oneof=skip abort"`
	SourceEncoding string        `yaml:"source_encoding" envconfig:"SOURCE_ENCODING" validate:"oneof=auto utf-8 shift_jis"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" validate:"gt=0"`
	MaxFiles       int           `yaml:"max_files" envconfig:"MAX_FILES" validate:"gt=0"`
	DefaultGroups  []string      `yaml:"default_groups" envconfig:"DEFAULT_GROUPS" validate:"dive,oneof=instrument direction weekday time_bucket duration_bucket hour instrument_direction"`
	Columns        ColumnsConfig `yaml:"columns" envconfig:"COLUMNS"`
}

// ColumnsConfig names the ledger header columns
type ColumnsConfig struct {
	OpenedAt   string   `yaml:"opened_at" envconfig:"OPENED_AT" validate:"required"`
	Stake      string   `yaml:"stake" envconfig:"STAKE" validate:"required"`
	Payout     string   `yaml:"payout" envconfig:"PAYOUT" validate:"required"`
	ClosedAt   string   `yaml:"closed_at" envconfig:"CLOSED_AT" validate:"required"`
	Instrument string   `yaml:"instrument" envconfig:"INSTRUMENT" validate:"required"`
	Direction  string   `yaml:"direction" envconfig:"DIRECTION" validate:"required"`
	TradeID    string   `yaml:"trade_id" envconfig:"TRADE_ID" validate:"required"`
	Ignored    []string `yaml:"ignored" envconfig:"IGNORED"`
}

// CacheConfig controls memoization of analyses
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	TTL             time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL" validate:"gt=0"`
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file, a .env file and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
	}

	// Fields without a matching variable keep the value set above.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the keys present in a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// getConfigFilePath returns the path to the config file, or "" when none
func getConfigFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("pipeline timezone %q: %w", c.Pipeline.Timezone, err)
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q needs a file path", c.Logging.Output)
	}
	return nil
}

// NormalizerConfig converts the pipeline section into the value the
// normalizer is built from.
func (p PipelineConfig) NormalizerConfig() (dataprocessing.NormalizerConfig, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return dataprocessing.NormalizerConfig{}, fmt.Errorf("load timezone %q: %w", p.Timezone, err)
	}
	return dataprocessing.NormalizerConfig{
		Location:   loc,
		DateLayout: p.DateLayout,
		Policy:     dataprocessing.RowErrorPolicy(p.RowErrorPolicy),
		Columns: dataprocessing.Columns{
			OpenedAt:   p.Columns.OpenedAt,
			Stake:      p.Columns.Stake,
			Payout:     p.Columns.Payout,
			ClosedAt:   p.Columns.ClosedAt,
			Instrument: p.Columns.Instrument,
			Direction:  p.Columns.Direction,
			TradeID:    p.Columns.TradeID,
			Ignored:    append([]string(nil), p.Columns.Ignored...),
		},
	}, nil
}

// Encoding returns the configured CSV source encoding.
func (p PipelineConfig) Encoding() dataprocessing.SourceEncoding {
	return dataprocessing.SourceEncoding(p.SourceEncoding)
}

// Default returns default configuration
func Default() *Config {
	cols := dataprocessing.DefaultColumns()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/tradelens.log",
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableTracing:  false,
			EnableMetrics:  true,
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Pipeline: PipelineConfig{
			Timezone:       "Asia/Tokyo",
			DateLayout:     dataprocessing.DefaultDateLayout,
			RowErrorPolicy: string(dataprocessing.RowErrorSkip),
			SourceEncoding: string(dataprocessing.EncodingAuto),
			MaxUploadBytes: 32 << 20, // 32MB
			MaxFiles:       20,
			DefaultGroups: []string{
				"instrument", "direction", "weekday", "time_bucket", "duration_bucket", "instrument_direction",
			},
			Columns: ColumnsConfig{
				OpenedAt:   cols.OpenedAt,
				Stake:      cols.Stake,
				Payout:     cols.Payout,
				ClosedAt:   cols.ClosedAt,
				Instrument: cols.Instrument,
				Direction:  cols.Direction,
				TradeID:    cols.TradeID,
				Ignored:    cols.Ignored,
			},
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             15 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
	}
}
