package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tildaslashalef/unitforge/internal/gemini"
)

// geminiAPI is the part of gemini.Client the adapter calls
type geminiAPI interface {
	GenerateContent(ctx context.Context, model string, req gemini.GenerateRequest) (*gemini.GenerateResponse, error)
	DefaultModel() string
}

// geminiClientAdapter adapts the Gemini client to the LLM Client interface
type geminiClientAdapter struct {
	client  geminiAPI
	limiter *rate.Limiter
}

// newGeminiClientAdapter creates a new Gemini client adapter
func newGeminiClientAdapter(client geminiAPI, limiter *rate.Limiter) *geminiClientAdapter {
	return &geminiClientAdapter{
		client:  client,
		limiter: limiter,
	}
}

// GenerateChat implements the Client interface for Gemini
func (a *geminiClientAdapter) GenerateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := wait(ctx, a.limiter); err != nil {
		return nil, err
	}

	system, turns := splitSystem(req.Messages)

	geminiReq := gemini.GenerateRequest{
		Contents: make([]gemini.Content, len(turns)),
		GenerationConfig: &gemini.GenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	for i, msg := range turns {
		geminiReq.Contents[i] = gemini.Content{
			Role:  convertRoleToGemini(msg.Role),
			Parts: []gemini.Part{{Text: msg.Content}},
		}
	}
	if system != "" {
		geminiReq.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: system}}}
	}

	model := req.Model
	if model == "" {
		model = a.client.DefaultModel()
	}

	resp, err := a.client.GenerateContent(ctx, model, geminiReq)
	if err != nil {
		return nil, upstreamError(Gemini, err)
	}

	out := &ChatResponse{
		Content:  resp.Text(),
		Model:    model,
		Provider: Gemini,
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = resp.Candidates[0].FinishReason
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}

// convertRoleToGemini maps chat roles onto the two roles the API accepts
func convertRoleToGemini(role string) string {
	if role == RoleAssistant || role == gemini.RoleModel {
		return gemini.RoleModel
	}
	return gemini.RoleUser
}
