// Package generation orchestrates one unit test generation: prompt, model call,
// extraction, persistence and artifacts.
package generation

import (
	"errors"
	"time"

	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/parser"
)

var (
	// ErrNotFound is returned when a generation or run does not exist
	ErrNotFound = errors.New("generation not found")

	// ErrInvalidID is returned for ids that are not generation ids
	ErrInvalidID = errors.New("invalid generation id")
)

// Status represents the lifecycle state of a generation
type Status string

const (
	// StatusCompleted means the reply was parsed and artifacts were written
	StatusCompleted Status = "completed"
	// StatusFailed means the model call or artifact writing failed
	StatusFailed Status = "failed"
)

// Generation is one prompt/response round trip and its parsed result
type Generation struct {
	ID           string                     `json:"id"`
	Status       Status                     `json:"status"`
	Provider     string                     `json:"provider"`
	Model        string                     `json:"model"`
	Strategy     extractor.Strategy         `json:"strategy"`
	Files        []parser.SourceFile        `json:"files"`
	RawResponse  string                     `json:"raw_response,omitempty"`
	Result       extractor.ExtractionResult `json:"result"`
	TotalTests   int                        `json:"total_tests"`
	InputTokens  int                        `json:"input_tokens"`
	OutputTokens int                        `json:"output_tokens"`
	Duration     time.Duration              `json:"duration"`
	Error        string                     `json:"error,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// FileNames returns the names of the uploaded files in upload order
func (g *Generation) FileNames() []string {
	names := make([]string, len(g.Files))
	for i, f := range g.Files {
		names[i] = f.Name
	}
	return names
}

// TestRun is one execution of a generation's Makefile
type TestRun struct {
	ID             string        `json:"id"`
	GenerationID   string        `json:"generation_id"`
	ExitCode       int           `json:"exit_code"`
	Passed         bool          `json:"passed"`
	TimedOut       bool          `json:"timed_out"`
	Truncated      bool          `json:"truncated"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	CoverageReport string        `json:"coverage_report,omitempty"` // Relative to the generation directory
	CoverageError  string        `json:"coverage_error,omitempty"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"created_at"`
}
