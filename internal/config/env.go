package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// DefaultConfigDir returns ~/.unitforge
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".unitforge"), nil
}

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default)
// - configFilePath: Path to .env file (or empty for default)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// ENV_FILE_PATH overrides the config directory .env
	envFilePath := getEnvString("ENV_FILE_PATH", "")
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		_ = godotenv.Load() // Ignore errors if file doesn't exist
	}

	cfg.LLM = LLMConfig{
		DefaultProvider: getEnvString("UNITFORGE_LLM_DEFAULT_PROVIDER", ProviderGemini),
		RequestTimeout:  getEnvDuration("UNITFORGE_LLM_REQUEST_TIMEOUT", 5*time.Minute),
	}

	cfg.Gemini = GeminiConfig{
		APIKey:            getEnvString("UNITFORGE_GEMINI_API_KEY", getEnvString("GEMINI_API_KEY", "")),
		BaseURL:           getEnvString("UNITFORGE_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		APIVersion:        getEnvString("UNITFORGE_GEMINI_API_VERSION", "v1beta"),
		Model:             getEnvString("UNITFORGE_GEMINI_MODEL", "gemini-2.5-pro"),
		Timeout:           getEnvDuration("UNITFORGE_GEMINI_TIMEOUT", 5*time.Minute),
		MaxRetries:        getEnvInt("UNITFORGE_GEMINI_MAX_RETRIES", 3),
		MaxTokens:         getEnvInt("UNITFORGE_GEMINI_MAX_TOKENS", 8192),
		Temperature:       getEnvFloat("UNITFORGE_GEMINI_TEMPERATURE", 0.2),
		TopP:              getEnvFloat("UNITFORGE_GEMINI_TOP_P", 0.95),
		TopK:              getEnvInt("UNITFORGE_GEMINI_TOP_K", 40),
		RequestsPerMinute: getEnvInt("UNITFORGE_GEMINI_REQUESTS_PER_MINUTE", 10),
		BurstLimit:        getEnvInt("UNITFORGE_GEMINI_BURST_LIMIT", 2),
	}

	cfg.Vertex = VertexConfig{
		Project:           getEnvString("UNITFORGE_VERTEX_PROJECT", getEnvString("GOOGLE_CLOUD_PROJECT", "")),
		Location:          getEnvString("UNITFORGE_VERTEX_LOCATION", "us-central1"),
		Model:             getEnvString("UNITFORGE_VERTEX_MODEL", "gemini-2.5-pro"),
		MaxTokens:         getEnvInt("UNITFORGE_VERTEX_MAX_TOKENS", 8192),
		Temperature:       getEnvFloat("UNITFORGE_VERTEX_TEMPERATURE", 0.2),
		RequestsPerMinute: getEnvInt("UNITFORGE_VERTEX_REQUESTS_PER_MINUTE", 10),
		BurstLimit:        getEnvInt("UNITFORGE_VERTEX_BURST_LIMIT", 2),
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("UNITFORGE_DB_PATH", filepath.Join(configDir, "unitforge.db")),
		BusyTimeout:     getEnvInt("UNITFORGE_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("UNITFORGE_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("UNITFORGE_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("UNITFORGE_DB_CACHE_SIZE", -16000),
		ForeignKeys:     getEnvBool("UNITFORGE_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("UNITFORGE_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("UNITFORGE_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("UNITFORGE_LOG_LEVEL", "info"),
		Format:     getEnvString("UNITFORGE_LOG_FORMAT", "text"),
		Output:     getEnvString("UNITFORGE_LOG_OUTPUT", filepath.Join(configDir, "unitforge.log")),
		AddSource:  getEnvBool("UNITFORGE_LOG_ADD_SOURCE", true),
		TimeFormat: getTimeFormat(getEnvString("UNITFORGE_LOG_TIME_FORMAT", "RFC3339")),
	}

	cfg.Server = ServerConfig{
		Host:            getEnvString("UNITFORGE_SERVER_HOST", "0.0.0.0"),
		Port:            getEnvInt("UNITFORGE_SERVER_PORT", 5000),
		Mode:            getEnvString("UNITFORGE_SERVER_MODE", "release"),
		ReadTimeout:     getEnvDuration("UNITFORGE_SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("UNITFORGE_SERVER_WRITE_TIMEOUT", 10*time.Minute),
		ShutdownTimeout: getEnvDuration("UNITFORGE_SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigins:  getEnvList("UNITFORGE_SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxUploadBytes:  getEnvInt64("UNITFORGE_SERVER_MAX_UPLOAD_BYTES", 10<<20),
	}

	cfg.Artifacts = ArtifactsConfig{
		Root: getEnvString("UNITFORGE_ARTIFACTS_ROOT", filepath.Join(configDir, "artifacts")),
	}

	cfg.Storage = StorageConfig{
		Bucket:          getEnvString("UNITFORGE_STORAGE_BUCKET", ""),
		Prefix:          getEnvString("UNITFORGE_STORAGE_PREFIX", "unitforge"),
		CredentialsFile: getEnvString("UNITFORGE_STORAGE_CREDENTIALS_FILE", ""),
	}

	cfg.Runner = RunnerConfig{
		Timeout:        getEnvDuration("UNITFORGE_RUNNER_TIMEOUT", 300*time.Second),
		MakePath:       getEnvString("UNITFORGE_RUNNER_MAKE", "make"),
		LcovPath:       getEnvString("UNITFORGE_RUNNER_LCOV", "lcov"),
		GenhtmlPath:    getEnvString("UNITFORGE_RUNNER_GENHTML", "genhtml"),
		Coverage:       getEnvBool("UNITFORGE_RUNNER_COVERAGE", true),
		MaxOutputBytes: getEnvInt64("UNITFORGE_RUNNER_MAX_OUTPUT_BYTES", 1<<20),
	}

	cfg.Tracing = TracingConfig{
		Endpoint:    getEnvString("UNITFORGE_OTEL_ENDPOINT", getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		ServiceName: getEnvString("UNITFORGE_OTEL_SERVICE_NAME", "unitforge"),
		Insecure:    getEnvBool("UNITFORGE_OTEL_INSECURE", true),
		SampleRatio: getEnvFloat("UNITFORGE_OTEL_SAMPLE_RATIO", 1.0),
	}

	return cfg, cfg.Validate()
}
