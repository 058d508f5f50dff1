// Package vertex talks to Gemini models hosted on Vertex AI through the genai SDK.
package vertex

import (
	"context"
	"errors"
	"fmt"

	"github.com/tildaslashalef/unitforge/internal/loggy"
	"google.golang.org/genai"
)

// Config configures the Vertex AI client
type Config struct {
	Project     string
	Location    string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Request is a single non-streaming generation call
type Request struct {
	Model       string
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature *float64
}

// Turn is one conversation message; Role is genai.RoleUser or genai.RoleModel
type Turn struct {
	Role string
	Text string
}

// Response carries the generated text and token usage
type Response struct {
	Text         string
	Model        string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// generator is the slice of the genai Models service this package uses
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client wraps a genai client bound to the Vertex AI backend
type Client struct {
	models       generator
	defaultModel string
	maxTokens    int
	temperature  *float64
}

// NewClient creates a Vertex AI backed client using application default credentials
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Project == "" {
		return nil, errors.New("vertex: project is required")
	}
	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.Project,
		Location: location,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	loggy.Debug("Vertex AI client created", "project", cfg.Project, "location", location)
	return newWithGenerator(gc.Models, cfg), nil
}

func newWithGenerator(g generator, cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-pro"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Client{
		models:       g,
		defaultModel: model,
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
	}
}

// DefaultModel returns the model used when a request names none
func (c *Client) DefaultModel() string {
	return c.defaultModel
}

// Generate runs one generateContent call
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Turns) == 0 {
		return nil, errors.New("vertex: request has no turns")
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		role := genai.Role(t.Role)
		if role == "" {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = c.temperature
	}
	if temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*temperature))
	}

	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("vertex generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("vertex: response has no candidates")
	}

	out := &Response{
		Text:         resp.Text(),
		Model:        model,
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
