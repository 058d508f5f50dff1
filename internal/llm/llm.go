package llm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tildaslashalef/unitforge/internal/config"
	"github.com/tildaslashalef/unitforge/internal/gemini"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/vertex"
)

var (
	// ErrNotInitialized is returned when a provider was requested but not configured
	ErrNotInitialized = errors.New("LLM client not initialized")

	// ErrUpstream marks failures reported by the model service
	ErrUpstream = errors.New("LLM upstream error")
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest represents a generic chat request to any LLM
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Message represents a chat message with role and content
type Message struct {
	Role    string `json:"role"` // user, assistant, or system
	Content string `json:"content"`
}

// ChatResponse represents a response from a chat request
type ChatResponse struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	Provider     ClientType `json:"provider"`
	FinishReason string     `json:"finish_reason,omitempty"`
	InputTokens  int        `json:"input_tokens,omitempty"`
	OutputTokens int        `json:"output_tokens,omitempty"`
}

// Client defines the interface for LLM clients
type Client interface {
	// GenerateChat sends a non-streaming chat request
	GenerateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ClientType defines the type of LLM client
type ClientType string

const (
	// Gemini is the direct Generative Language API
	Gemini ClientType = config.ProviderGemini

	// Vertex is Gemini served from Vertex AI
	Vertex ClientType = config.ProviderVertex
)

// Factory creates and returns LLM clients
type Factory struct {
	config *config.Config
	gemini geminiAPI
	vertex vertexAPI
	logger *loggy.Logger

	geminiLimiter *rate.Limiter
	vertexLimiter *rate.Limiter
}

// helper function to create a rate limiter from RPM and Burst
func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		// If RPM is zero or negative, allow infinite rate (no limiting)
		return rate.NewLimiter(rate.Inf, burst)
	}
	r := rate.Limit(float64(rpm) / 60.0)
	b := burst
	if b <= 0 {
		b = 1
	}
	return rate.NewLimiter(r, b)
}

// NewFactory creates a new LLM client factory. A provider whose client cannot be
// built is logged and left out so GetDefaultClient can fall back to another.
func NewFactory(ctx context.Context, cfg *config.Config, logger *loggy.Logger) *Factory {
	f := &Factory{
		config: cfg,
		logger: logger,
	}

	if cfg.Vertex.Project != "" {
		vc, err := vertex.NewClient(ctx, vertexConfig(cfg.Vertex))
		if err != nil {
			logger.Warn("Vertex AI client unavailable", "project", cfg.Vertex.Project, "error", err)
		} else {
			f.vertex = vc
			f.vertexLimiter = newLimiter(cfg.Vertex.RequestsPerMinute, cfg.Vertex.BurstLimit)
			logger.Info("initialized Vertex AI client",
				"project", cfg.Vertex.Project,
				"location", cfg.Vertex.Location,
				"model", cfg.Vertex.Model,
				"rpm", cfg.Vertex.RequestsPerMinute,
				"burst", cfg.Vertex.BurstLimit)
		}
	}

	if cfg.Gemini.APIKey != "" {
		f.gemini = gemini.NewClient(geminiConfig(cfg.Gemini))
		f.geminiLimiter = newLimiter(cfg.Gemini.RequestsPerMinute, cfg.Gemini.BurstLimit)
		logger.Info("initialized Gemini client",
			"base_url", cfg.Gemini.BaseURL,
			"model", cfg.Gemini.Model,
			"rpm", cfg.Gemini.RequestsPerMinute,
			"burst", cfg.Gemini.BurstLimit)
	}

	return f
}

func geminiConfig(c config.GeminiConfig) gemini.Config {
	gc := gemini.Config{
		APIKey:           c.APIKey,
		BaseURL:          c.BaseURL,
		DefaultModel:     c.Model,
		APIVersion:       c.APIVersion,
		Timeout:          c.Timeout,
		MaxRetries:       c.MaxRetries,
		DefaultMaxTokens: c.MaxTokens,
		Temperature:      gemini.Float64Ptr(c.Temperature),
	}
	if c.TopP > 0 {
		gc.TopP = gemini.Float64Ptr(c.TopP)
	}
	if c.TopK > 0 {
		gc.TopK = gemini.IntPtr(c.TopK)
	}
	return gc
}

func vertexConfig(c config.VertexConfig) vertex.Config {
	t := c.Temperature
	return vertex.Config{
		Project:     c.Project,
		Location:    c.Location,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: &t,
	}
}

// GetClient returns an LLM client of the specified type
func (f *Factory) GetClient(clientType ClientType) (Client, error) {
	switch clientType {
	case Gemini:
		if f.gemini == nil {
			return nil, fmt.Errorf("%w: gemini (set UNITFORGE_GEMINI_API_KEY)", ErrNotInitialized)
		}
		return newGeminiClientAdapter(f.gemini, f.geminiLimiter), nil

	case Vertex:
		if f.vertex == nil {
			return nil, fmt.Errorf("%w: vertex (set UNITFORGE_VERTEX_PROJECT)", ErrNotInitialized)
		}
		return newVertexClientAdapter(f.vertex, f.vertexLimiter), nil

	default:
		return nil, fmt.Errorf("unknown client type: %s", clientType)
	}
}

// GetDefaultClient returns the configured provider, or the first available one.
// Vertex AI is preferred over the direct API when both are set up.
func (f *Factory) GetDefaultClient() (Client, ClientType, error) {
	defaultType := ClientType(f.config.LLM.DefaultProvider)

	client, err := f.GetClient(defaultType)
	if err == nil {
		return client, defaultType, nil
	}

	f.logger.Warn("Default LLM provider not available, falling back", "default", defaultType, "error", err)

	if f.vertex != nil {
		return newVertexClientAdapter(f.vertex, f.vertexLimiter), Vertex, nil
	}
	if f.gemini != nil {
		return newGeminiClientAdapter(f.gemini, f.geminiLimiter), Gemini, nil
	}
	return nil, "", fmt.Errorf("%w: no provider configured", ErrNotInitialized)
}

// Available lists the providers that were initialized
func (f *Factory) Available() []ClientType {
	var out []ClientType
	if f.vertex != nil {
		out = append(out, Vertex)
	}
	if f.gemini != nil {
		out = append(out, Gemini)
	}
	return out
}

// GenerateChat generates a chat response from the default LLM provider
func (f *Factory) GenerateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	client, clientType, err := f.GetDefaultClient()
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Generating chat", "provider", clientType, "model", req.Model)
	return client.GenerateChat(ctx, req)
}

// splitSystem separates system messages from the conversation turns
func splitSystem(messages []Message) (string, []Message) {
	var system string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

// wait blocks on the limiter, honoring ctx
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// upstreamError tags a provider failure with ErrUpstream unless it is a context error
func upstreamError(provider ClientType, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, provider, err)
}
