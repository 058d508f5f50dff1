package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tildaslashalef/unitforge/internal/vertex"
)

type vertexAPI interface {
	Generate(ctx context.Context, req vertex.Request) (*vertex.Response, error)
}

// vertexClientAdapter adapts the Vertex AI client to the LLM Client interface
type vertexClientAdapter struct {
	client  vertexAPI
	limiter *rate.Limiter
}

func newVertexClientAdapter(client vertexAPI, limiter *rate.Limiter) *vertexClientAdapter {
	return &vertexClientAdapter{client: client, limiter: limiter}
}

// GenerateChat implements the Client interface for Vertex AI
func (a *vertexClientAdapter) GenerateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := wait(ctx, a.limiter); err != nil {
		return nil, err
	}

	system, turns := splitSystem(req.Messages)
	vreq := vertex.Request{
		Model:       req.Model,
		System:      system,
		Turns:       make([]vertex.Turn, len(turns)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for i, m := range turns {
		vreq.Turns[i] = vertex.Turn{Role: convertRoleToGemini(m.Role), Text: m.Content}
	}

	resp, err := a.client.Generate(ctx, vreq)
	if err != nil {
		return nil, upstreamError(Vertex, err)
	}

	return &ChatResponse{
		Content:      resp.Text,
		Model:        resp.Model,
		Provider:     Vertex,
		FinishReason: resp.FinishReason,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
