package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tildaslashalef/unitforge/internal/config"
	"github.com/tildaslashalef/unitforge/internal/gemini"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/vertex"
)

type fakeGemini struct {
	model string
	req   gemini.GenerateRequest
	resp  *gemini.GenerateResponse
	err   error
}

func (f *fakeGemini) GenerateContent(ctx context.Context, model string, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	f.model = model
	f.req = req
	return f.resp, f.err
}

func (f *fakeGemini) DefaultModel() string { return "gemini-default" }

type fakeVertex struct {
	req  vertex.Request
	resp *vertex.Response
	err  error
}

func (f *fakeVertex) Generate(ctx context.Context, req vertex.Request) (*vertex.Response, error) {
	f.req = req
	return f.resp, f.err
}

func conversation() []Message {
	return []Message{
		{Role: RoleSystem, Content: "You are a test engineer."},
		{Role: RoleUser, Content: "write tests"},
		{Role: RoleAssistant, Content: "which functions?"},
		{Role: RoleUser, Content: "all of them"},
	}
}

func TestNewFactory(t *testing.T) {
	logger := loggy.NewNoopLogger()

	tests := []struct {
		name         string
		config       *config.Config
		expectGemini bool
	}{
		{
			name: "gemini configured",
			config: &config.Config{
				LLM:    config.LLMConfig{DefaultProvider: config.ProviderGemini},
				Gemini: config.GeminiConfig{APIKey: "test-key", Model: "gemini-2.5-pro", RequestsPerMinute: 60, BurstLimit: 2},
			},
			expectGemini: true,
		},
		{
			name: "nothing configured",
			config: &config.Config{
				LLM: config.LLMConfig{DefaultProvider: config.ProviderGemini},
			},
			expectGemini: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := NewFactory(context.Background(), tt.config, logger)

			client, err := factory.GetClient(Gemini)
			if tt.expectGemini {
				assert.NoError(t, err)
				assert.NotNil(t, client)
				assert.Equal(t, []ClientType{Gemini}, factory.Available())
			} else {
				assert.ErrorIs(t, err, ErrNotInitialized)
				assert.Nil(t, client)
				assert.Empty(t, factory.Available())
			}

			vertexClient, err := factory.GetClient(Vertex)
			assert.ErrorIs(t, err, ErrNotInitialized)
			assert.Nil(t, vertexClient)
		})
	}
}

func TestGetClientUnknownType(t *testing.T) {
	factory := &Factory{config: &config.Config{}, logger: loggy.NewNoopLogger()}
	client, err := factory.GetClient("unknown")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestGetDefaultClient(t *testing.T) {
	tests := []struct {
		name         string
		provider     string
		gemini       bool
		vertex       bool
		expectedType ClientType
		expectErr    bool
	}{
		{name: "configured gemini", provider: "gemini", gemini: true, vertex: true, expectedType: Gemini},
		{name: "configured vertex", provider: "vertex", gemini: true, vertex: true, expectedType: Vertex},
		{name: "fallback prefers vertex", provider: "other", gemini: true, vertex: true, expectedType: Vertex},
		{name: "fallback to gemini", provider: "vertex", gemini: true, expectedType: Gemini},
		{name: "nothing available", provider: "gemini", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Factory{
				config: &config.Config{LLM: config.LLMConfig{DefaultProvider: tt.provider}},
				logger: loggy.NewNoopLogger(),
			}
			if tt.gemini {
				f.gemini = &fakeGemini{}
			}
			if tt.vertex {
				f.vertex = &fakeVertex{}
			}

			client, clientType, err := f.GetDefaultClient()
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrNotInitialized)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
			assert.Equal(t, tt.expectedType, clientType)
		})
	}
}

func TestGeminiAdapter(t *testing.T) {
	fake := &fakeGemini{resp: &gemini.GenerateResponse{
		Candidates: []gemini.Candidate{{
			Content:      gemini.Content{Role: gemini.RoleModel, Parts: []gemini.Part{{Text: "```c\nint x;\n```"}}},
			FinishReason: "STOP",
		}},
		UsageMetadata: &gemini.UsageMetadata{PromptTokenCount: 100, CandidatesTokenCount: 20},
	}}
	adapter := newGeminiClientAdapter(fake, newLimiter(0, 1))

	temp := 0.3
	resp, err := adapter.GenerateChat(context.Background(), ChatRequest{
		Messages:    conversation(),
		MaxTokens:   512,
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "```c\nint x;\n```", resp.Content)
	assert.Equal(t, "gemini-default", resp.Model)
	assert.Equal(t, Gemini, resp.Provider)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 100, resp.InputTokens)
	assert.Equal(t, 20, resp.OutputTokens)

	assert.Equal(t, "gemini-default", fake.model)
	require.NotNil(t, fake.req.SystemInstruction)
	assert.Equal(t, "You are a test engineer.", fake.req.SystemInstruction.Parts[0].Text)
	require.Len(t, fake.req.Contents, 3)
	assert.Equal(t, gemini.RoleUser, fake.req.Contents[0].Role)
	assert.Equal(t, gemini.RoleModel, fake.req.Contents[1].Role)
	assert.Equal(t, gemini.RoleUser, fake.req.Contents[2].Role)
	assert.Equal(t, 512, fake.req.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 0.3, *fake.req.GenerationConfig.Temperature)
}

func TestVertexAdapter(t *testing.T) {
	fake := &fakeVertex{resp: &vertex.Response{Text: "reply", Model: "gemini-2.5-pro", FinishReason: "STOP", InputTokens: 9, OutputTokens: 3}}
	adapter := newVertexClientAdapter(fake, nil)

	resp, err := adapter.GenerateChat(context.Background(), ChatRequest{Model: "gemini-2.5-pro", Messages: conversation()})
	require.NoError(t, err)

	assert.Equal(t, "reply", resp.Content)
	assert.Equal(t, Vertex, resp.Provider)
	assert.Equal(t, 9, resp.InputTokens)
	assert.Equal(t, "You are a test engineer.", fake.req.System)
	require.Len(t, fake.req.Turns, 3)
	assert.Equal(t, "model", fake.req.Turns[1].Role)
	assert.Equal(t, "gemini-2.5-pro", fake.req.Model)
}

func TestAdapterErrorWrapping(t *testing.T) {
	t.Run("upstream failure", func(t *testing.T) {
		apiErr := &gemini.APIError{StatusCode: 500}
		adapter := newGeminiClientAdapter(&fakeGemini{err: apiErr}, nil)

		_, err := adapter.GenerateChat(context.Background(), ChatRequest{Messages: conversation()})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream)

		var target *gemini.APIError
		assert.True(t, errors.As(err, &target))
	})

	t.Run("deadline is not an upstream error", func(t *testing.T) {
		adapter := newVertexClientAdapter(&fakeVertex{err: context.DeadlineExceeded}, nil)

		_, err := adapter.GenerateChat(context.Background(), ChatRequest{Messages: conversation()})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrUpstream)
	})
}

func TestRateLimiterHonorsContext(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow(), "drain the only token")

	adapter := newGeminiClientAdapter(&fakeGemini{}, limiter)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := adapter.GenerateChat(ctx, ChatRequest{Messages: conversation()})
	assert.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	unlimited := newLimiter(0, 0)
	assert.Equal(t, rate.Inf, unlimited.Limit())

	limited := newLimiter(120, 0)
	assert.Equal(t, rate.Limit(2), limited.Limit())
	assert.Equal(t, 1, limited.Burst())
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleSystem, Content: "b"},
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "u"}}, turns)
}

func TestFactoryGenerateChat(t *testing.T) {
	fake := &fakeGemini{resp: &gemini.GenerateResponse{Candidates: []gemini.Candidate{{Content: gemini.Content{Parts: []gemini.Part{{Text: "ok"}}}}}}}
	f := &Factory{
		config: &config.Config{LLM: config.LLMConfig{DefaultProvider: "gemini"}},
		logger: loggy.NewNoopLogger(),
		gemini: fake,
	}

	resp, err := f.GenerateChat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}
