package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tildaslashalef/unitforge/internal/artifacts"
	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/generation"
	"github.com/tildaslashalef/unitforge/internal/llm"
	"github.com/tildaslashalef/unitforge/internal/parser"
	"github.com/tildaslashalef/unitforge/internal/prompt"
	"github.com/tildaslashalef/unitforge/internal/runner"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, parser.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errValidation),
		errors.Is(err, parser.ErrUnsupportedFile),
		errors.Is(err, parser.ErrEmptyFile),
		errors.Is(err, parser.ErrDuplicateFile),
		errors.Is(err, parser.ErrNoFiles),
		errors.Is(err, prompt.ErrNoSourceFiles),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, generation.ErrInvalidID),
		errors.Is(err, artifacts.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrNotFound), errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrNoMakefile):
		return http.StatusConflict
	case errors.Is(err, runner.ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, llm.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the JSON error body. Internal errors are not echoed to the client.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": c.GetString(requestIDKey),
	})
}
