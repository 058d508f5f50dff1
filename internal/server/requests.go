package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// errValidation marks request bodies that fail validation
var errValidation = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// FileInput is one file sent inline to /generate
type FileInput struct {
	Filename string `json:"filename" validate:"required,max=255"`
	Content  string `json:"content" validate:"required"`
}

// GenerateRequest is the body of POST /api/v1/generate
type GenerateRequest struct {
	Files []FileInput `json:"files" validate:"required,min=1,max=50,dive"`
	Model string      `json:"model" validate:"omitempty,max=100,printascii"`
}

// RunRequest is the optional body of POST /api/v1/generations/:id/run
type RunRequest struct {
	TimeoutSeconds int   `json:"timeout_seconds" validate:"gte=0,lte=3600"`
	Coverage       *bool `json:"coverage"`
}

// UploadedFile echoes one accepted upload
type UploadedFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
	Kind     string `json:"kind"`
	Language string `json:"language"`
}

// validateRequest runs struct validation and flattens the field errors into one message
func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", errValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", errValidation, strings.Join(msgs, "; "))
}
