package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Staging StagingConfig
	Store   StoreConfig
	Export  ExportConfig
	Log     LogConfig
	// FieldsPath optionally replaces the embedded KPI field catalog.
	FieldsPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	MaxRequestBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LLMConfig selects and configures the document extraction provider
type LLMConfig struct {
	Provider    string // gemini | anthropic | openai
	Temperature float32
	Timeout     time.Duration

	// Gemini on Vertex AI
	CredentialsFile string
	ProjectID       string
	Region          string
	GeminiModel     string
	StagingBucket   string

	AnthropicAPIKey string
	AnthropicModel  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// StagingConfig holds upload staging configuration
type StagingConfig struct {
	Dir         string
	MaxBytes    int64
	ValidatePDF bool
	SweepSpec   string
	MaxAge      time.Duration
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Backend  string // csv | sqlite | postgres
	Path     string
	DSN      string
	MaxConns int32
}

// ExportConfig holds spreadsheet artifact configuration
type ExportConfig struct {
	Path string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	StoreCSV      = "csv"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8000"),
			MaxRequestBytes: getEnvAsInt64("MAX_REQUEST_BYTES", 256<<20),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 2*time.Minute),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
			Temperature:     getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:         getEnvAsDuration("LLM_TIMEOUT", 2*time.Minute),
			CredentialsFile: getEnv("GEMINI_CREDENTIALS_FILE", ""),
			ProjectID:       getEnv("GCP_PROJECT_ID", ""),
			Region:          getEnv("VERTEX_AI_REGION", "us-central1"),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			StagingBucket:   getEnv("STAGING_BUCKET", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		Staging: StagingConfig{
			Dir:         getEnv("STAGING_DIR", os.TempDir()),
			MaxBytes:    getEnvAsInt64("MAX_UPLOAD_BYTES", 32<<20),
			ValidatePDF: getEnvAsBool("VALIDATE_PDF", true),
			SweepSpec:   getEnv("STAGING_SWEEP_SPEC", "@every 15m"),
			MaxAge:      getEnvAsDuration("STAGING_MAX_AGE", time.Hour),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("RECORD_STORE", StoreCSV)),
			Path:     getEnv("RECORD_STORE_PATH", "KPI_Entries.csv"),
			DSN:      getEnv("DB_URL", ""),
			MaxConns: getEnvAsInt32("DB_MAX_CONNS", 10),
		},
		Export: ExportConfig{
			Path: getEnv("EXPORT_PATH", "extracted_kpis.xlsx"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		FieldsPath: getEnv("FIELDS_PATH", ""),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

// Validate checks the loaded configuration. A missing credential for the
// selected provider is fatal.
func (c *Config) Validate() error {
	v := NewValidator()

	switch c.LLM.Provider {
	case ProviderGemini:
		v.Field("GEMINI_CREDENTIALS_FILE", c.LLM.CredentialsFile, Required)
		v.Field("GCP_PROJECT_ID", c.LLM.ProjectID, Required)
		v.Field("VERTEX_AI_REGION", c.LLM.Region, Required)
	case ProviderAnthropic:
		v.Field("ANTHROPIC_API_KEY", c.LLM.AnthropicAPIKey, Required)
	case ProviderOpenAI:
		v.Field("OPENAI_API_KEY", c.LLM.OpenAIAPIKey, Required)
	default:
		v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf(ProviderGemini, ProviderAnthropic, ProviderOpenAI))
	}

	switch c.Store.Backend {
	case StoreCSV, StoreSQLite:
		v.Field("RECORD_STORE_PATH", c.Store.Path, Required)
	case StorePostgres:
		v.Field("DB_URL", c.Store.DSN, Required)
	default:
		v.Field("RECORD_STORE", c.Store.Backend, OneOf(StoreCSV, StoreSQLite, StorePostgres))
	}

	v.Field("HTTP_ADDR", c.Server.Addr, Required)
	v.Field("EXPORT_PATH", c.Export.Path, Required)
	v.Field("MAX_UPLOAD_BYTES", c.Staging.MaxBytes, Positive)

	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
