package gemini

import "fmt"

// Role values accepted by the generateContent endpoint
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// GenerateRequest is the body of a models/{model}:generateContent call
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig holds sampling parameters
type GenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
}

// Content represents one turn of the conversation
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part represents a part of content in a chat message
type Part struct {
	Text string `json:"text,omitempty"`
}

// GenerateResponse is the decoded generateContent reply
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

// Text concatenates the text parts of the first candidate
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var text string
	for _, p := range r.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text
}

// Candidate represents a candidate response from the Gemini API
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata reports token counts for a request
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// SafetyRating represents a safety rating from Gemini
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

// PromptFeedback is set when the prompt itself was blocked
type PromptFeedback struct {
	BlockReason   string         `json:"blockReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

// APIError represents an error returned by the Gemini API
type APIError struct {
	StatusCode  int           `json:"-"`
	ErrorDetail *ErrorDetails `json:"error,omitempty"`
}

// ErrorDetails contains details about an API error
type ErrorDetails struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Error implements the error interface for APIError
func (e *APIError) Error() string {
	if e.ErrorDetail != nil && e.ErrorDetail.Message != "" {
		if e.ErrorDetail.Status != "" {
			return fmt.Sprintf("gemini %s: %s", e.ErrorDetail.Status, e.ErrorDetail.Message)
		}
		return e.ErrorDetail.Message
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("gemini API error: HTTP %d", e.StatusCode)
	}
	return "unknown API error"
}

// Retryable reports whether the request may succeed if sent again
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Float64Ptr creates a float64 pointer from a value
func Float64Ptr(v float64) *float64 {
	return &v
}

// IntPtr creates an int pointer from a value
func IntPtr(v int) *int {
	return &v
}
