package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by LLMConfig.DefaultProvider
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// Config represents the complete application configuration
type Config struct {
	LLM       LLMConfig
	Gemini    GeminiConfig
	Vertex    VertexConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Server    ServerConfig
	Artifacts ArtifactsConfig
	Storage   StorageConfig
	Runner    RunnerConfig
	Tracing   TracingConfig
	configDir string // Directory the configuration was loaded from
}

// LLMConfig selects the model backend
type LLMConfig struct {
	DefaultProvider string        // gemini (direct API) or vertex (cloud-managed)
	RequestTimeout  time.Duration // Upper bound for one generation call
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	APIVersion string // v1 or v1beta
	Model      string

	Timeout    time.Duration
	MaxRetries int

	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int

	RequestsPerMinute int
	BurstLimit        int
}

// VertexConfig holds Vertex AI configuration used through the genai SDK
type VertexConfig struct {
	Project  string
	Location string
	Model    string

	MaxTokens   int
	Temperature float64

	RequestsPerMinute int
	BurstLimit        int
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Output     string // stdout, stderr, or file path
	AddSource  bool   // Include source code position in logs
	TimeFormat string // Time format for logs (empty uses RFC3339)
}

// ServerConfig holds configuration for the HTTP API
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string // gin mode: debug, release or test
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxUploadBytes  int64 // Per-request upload limit
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ArtifactsConfig controls where generated files are written
type ArtifactsConfig struct {
	Root string // Each generation gets a directory below Root
}

// StorageConfig enables mirroring artifacts to a Google Cloud Storage bucket
type StorageConfig struct {
	Bucket          string // Empty disables the mirror
	Prefix          string
	CredentialsFile string // Empty uses application default credentials
}

// RunnerConfig controls the optional build-and-test toolchain
type RunnerConfig struct {
	Timeout        time.Duration
	MakePath       string
	LcovPath       string
	GenhtmlPath    string
	Coverage       bool  // Run lcov and genhtml after a successful make test
	MaxOutputBytes int64 // Cap on captured stdout and stderr each
}

// TracingConfig enables OpenTelemetry export over OTLP/gRPC
type TracingConfig struct {
	Endpoint    string // Empty disables export; spans go to the no-op provider
	ServiceName string
	Insecure    bool
	SampleRatio float64
}

// New returns a new empty Config
func New() *Config {
	return &Config{}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid, filling defaults where a
// zero value has an obvious replacement
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return fmt.Errorf("LLM config: %w", err)
	}

	if err := c.validateGemini(); err != nil {
		return fmt.Errorf("Gemini config: %w", err)
	}

	if err := c.validateVertex(); err != nil {
		return fmt.Errorf("Vertex config: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateArtifacts(); err != nil {
		return fmt.Errorf("artifacts config: %w", err)
	}

	if err := c.validateRunner(); err != nil {
		return fmt.Errorf("runner config: %w", err)
	}

	if err := c.validateTracing(); err != nil {
		return fmt.Errorf("tracing config: %w", err)
	}

	return nil
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validateLLM() error {
	switch c.LLM.DefaultProvider {
	case ProviderGemini, ProviderVertex:
	case "":
		return fmt.Errorf("default provider cannot be empty")
	default:
		return fmt.Errorf("unknown provider: %s (must be %s or %s)", c.LLM.DefaultProvider, ProviderGemini, ProviderVertex)
	}

	if c.LLM.RequestTimeout <= 0 {
		c.LLM.RequestTimeout = 5 * time.Minute
	}
	return nil
}

func (c *Config) validateGemini() error {
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}

	if c.Gemini.APIVersion == "" {
		c.Gemini.APIVersion = "v1beta"
	}
	if c.Gemini.APIVersion != "v1" && c.Gemini.APIVersion != "v1beta" {
		return fmt.Errorf("invalid API version: %s (must be v1 or v1beta)", c.Gemini.APIVersion)
	}

	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-pro"
	}

	if c.Gemini.Timeout == 0 {
		c.Gemini.Timeout = 5 * time.Minute
	}

	if c.Gemini.MaxRetries <= 0 {
		c.Gemini.MaxRetries = 3
	}

	if c.Gemini.MaxTokens <= 0 {
		c.Gemini.MaxTokens = 8192
	}

	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	return nil
}

func (c *Config) validateVertex() error {
	if c.Vertex.Location == "" {
		c.Vertex.Location = "us-central1"
	}

	if c.Vertex.Model == "" {
		c.Vertex.Model = "gemini-2.5-pro"
	}

	if c.Vertex.MaxTokens <= 0 {
		c.Vertex.MaxTokens = 8192
	}

	if c.LLM.DefaultProvider == ProviderVertex && c.Vertex.Project == "" {
		return fmt.Errorf("project is required when vertex is the default provider")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Path != ":memory:" {
		dir := filepath.Dir(c.Database.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for database: %w", err)
		}

		if err := checkDirectoryWritable(dir); err != nil {
			return fmt.Errorf("database directory: %w", err)
		}
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	case "":
		c.Server.Mode = "release"
	default:
		return fmt.Errorf("invalid mode: %s", c.Server.Mode)
	}

	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}

	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	return nil
}

func (c *Config) validateArtifacts() error {
	if c.Artifacts.Root == "" {
		return fmt.Errorf("root directory cannot be empty")
	}

	if err := os.MkdirAll(c.Artifacts.Root, 0755); err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}

	return checkDirectoryWritable(c.Artifacts.Root)
}

func (c *Config) validateRunner() error {
	if c.Runner.Timeout <= 0 {
		c.Runner.Timeout = 300 * time.Second
	}

	if c.Runner.MakePath == "" {
		c.Runner.MakePath = "make"
	}
	if c.Runner.LcovPath == "" {
		c.Runner.LcovPath = "lcov"
	}
	if c.Runner.GenhtmlPath == "" {
		c.Runner.GenhtmlPath = "genhtml"
	}

	if c.Runner.MaxOutputBytes <= 0 {
		c.Runner.MaxOutputBytes = 1 << 20
	}

	return nil
}

func (c *Config) validateTracing() error {
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "unitforge"
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be between 0 and 1")
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 from the environment variable
func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 from the environment variable
func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated list from the environment variable
func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getTimeFormat converts a named time format to its actual format string
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "Kitchen":
		return time.Kitchen
	case "DateTime":
		return time.DateTime
	case "DateTimeMS":
		return "2006-01-02 15:04:05.000"
	default:
		return name
	}
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	f.Close()
	os.Remove(testFile)

	return nil
}
