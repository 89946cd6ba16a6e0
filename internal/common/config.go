package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Conversion ConversionConfig `yaml:"conversion"`
	OCR        OCRConfig        `yaml:"ocr"`
	Vision     VisionConfig     `yaml:"vision"`
	Speech     SpeechConfig     `yaml:"speech"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Queue      QueueConfig      `yaml:"queue"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr  string `yaml:"grpc_addr"`
	LogFormat string `yaml:"log_format"` // text | json
	LogLevel  string `yaml:"log_level"`
}

// DatabaseConfig holds database-related configuration. An empty DSN with a
// SQLitePath selects the embedded store; both empty disables job persistence.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	SQLitePath       string        `yaml:"sqlite_path"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ConversionConfig holds orchestrator configuration
type ConversionConfig struct {
	MaxSizeMB         int64  `yaml:"max_size_mb"`
	FallbackThreshold int    `yaml:"fallback_threshold"`
	Pdftotext         string `yaml:"pdftotext"`
}

// MaxBytes is the size limit in bytes, 0 when unlimited.
func (c ConversionConfig) MaxBytes() int64 {
	if c.MaxSizeMB <= 0 {
		return 0
	}
	return c.MaxSizeMB << 20
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Languages        []string `yaml:"languages"`
	PSM              int      `yaml:"psm"`
	DPI              int      `yaml:"dpi"`
	MaxPages         int      `yaml:"max_pages"`
	Pdftoppm         string   `yaml:"pdftoppm"`
	HeicConverter    string   `yaml:"heic_converter"`
	TessdataDir      string   `yaml:"tessdata_dir"`
	ArtifactCacheDir string   `yaml:"artifact_cache_dir"`
}

// VisionConfig holds the Gemini configuration shared by vision and speech
type VisionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SpeechConfig holds speech-related configuration
type SpeechConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// UpstreamConfig holds the document metadata service configuration
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url"`
	DocumentPath string        `yaml:"document_path"`
	TenantHeader string        `yaml:"tenant_header"`
	Timeout      time.Duration `yaml:"timeout"`
}

// QueueConfig holds worker pool configuration
type QueueConfig struct {
	Workers        int           `yaml:"workers"`
	Size           int           `yaml:"size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{GRPCAddr: ":8080", LogFormat: "text", LogLevel: "info"},
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Conversion: ConversionConfig{MaxSizeMB: 50, FallbackThreshold: 75, Pdftotext: "pdftotext"},
		OCR: OCRConfig{
			Languages:        []string{"eng"},
			PSM:              3,
			DPI:              300,
			MaxPages:         20,
			Pdftoppm:         "pdftoppm",
			HeicConverter:    "magick",
			ArtifactCacheDir: "./tmp",
		},
		Vision:   VisionConfig{Enabled: true, Model: "gemini-1.5-flash", Timeout: 60 * time.Second},
		Speech:   SpeechConfig{Enabled: true, Language: "en-US"},
		Upstream: UpstreamConfig{DocumentPath: "/api/v1/documents/{documentId}", TenantHeader: "X-Tenant-ID", Timeout: 15 * time.Second},
		Queue:    QueueConfig{Workers: 4, Size: 256, ProcessTimeout: 3 * time.Minute},
	}
}

// LoadConfig reads the YAML file named by CONFIG_FILE, if any, and applies
// environment overrides on top.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.LogFormat = getEnv("LOG_FORMAT", c.Server.LogFormat)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)

	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Conversion.MaxSizeMB = int64(getEnvAsInt("MAX_SIZE_MB", int(c.Conversion.MaxSizeMB)))
	c.Conversion.FallbackThreshold = getEnvAsInt("FALLBACK_THRESHOLD", c.Conversion.FallbackThreshold)
	c.Conversion.Pdftotext = getEnv("PDFTOTEXT", c.Conversion.Pdftotext)

	if langs := getEnv("OCR_LANGUAGES", ""); langs != "" {
		c.OCR.Languages = splitList(langs)
	}
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.MaxPages = getEnvAsInt("OCR_MAX_PAGES", c.OCR.MaxPages)
	c.OCR.Pdftoppm = getEnv("PDFTOPPM", c.OCR.Pdftoppm)
	c.OCR.HeicConverter = getEnv("HEIC_CONVERTER", c.OCR.HeicConverter)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.ArtifactCacheDir = getEnv("ARTIFACT_CACHE_DIR", c.OCR.ArtifactCacheDir)

	c.Vision.Enabled = getEnvAsBool("VISION_ENABLED", c.Vision.Enabled)
	c.Vision.Model = getEnv("GEMINI_MODEL", c.Vision.Model)
	c.Vision.APIKey = getEnv("GEMINI_API_KEY", c.Vision.APIKey)
	c.Vision.Timeout = getEnvAsDuration("GEMINI_TIMEOUT", c.Vision.Timeout)

	c.Speech.Enabled = getEnvAsBool("SPEECH_ENABLED", c.Speech.Enabled)
	c.Speech.Language = getEnv("SPEECH_LANGUAGE", c.Speech.Language)

	c.Upstream.BaseURL = getEnv("UPSTREAM_BASE_URL", c.Upstream.BaseURL)
	c.Upstream.DocumentPath = getEnv("UPSTREAM_DOCUMENT_PATH", c.Upstream.DocumentPath)
	c.Upstream.TenantHeader = getEnv("UPSTREAM_TENANT_HEADER", c.Upstream.TenantHeader)
	c.Upstream.Timeout = getEnvAsDuration("UPSTREAM_TIMEOUT", c.Upstream.Timeout)

	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.Size = getEnvAsInt("QUEUE_SIZE", c.Queue.Size)
	c.Queue.ProcessTimeout = getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", c.Queue.ProcessTimeout)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Conversion.MaxSizeMB < 0 {
		return NewAppError("CONFIG_ERROR", "MAX_SIZE_MB must not be negative", ErrInvalidInput)
	}
	if c.Conversion.FallbackThreshold < 0 || c.Conversion.FallbackThreshold > 100 {
		return NewAppError("CONFIG_ERROR", "FALLBACK_THRESHOLD must be between 0 and 100", ErrInvalidInput)
	}
	if len(c.OCR.Languages) == 0 {
		return NewAppError("CONFIG_ERROR", "OCR_LANGUAGES is required", ErrInvalidInput)
	}
	if (c.Vision.Enabled || c.Speech.Enabled) && c.Vision.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required when vision or speech is enabled", ErrInvalidInput)
	}
	if c.Queue.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
