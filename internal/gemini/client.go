package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tildaslashalef/unitforge/internal/loggy"
)

// DefaultBaseURL is the public Generative Language endpoint
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Client represents a Google Gemini API client
type Client struct {
	apiKey           string
	baseURL          string
	defaultModel     string
	apiVersion       string
	httpClient       *http.Client
	maxRetries       int
	defaultMaxTokens int
	topP             *float64
	topK             *int
	temperature      *float64

	newBackOff func() backoff.BackOff
}

// Config configures the Gemini client
type Config struct {
	APIKey           string        // API key for authentication
	BaseURL          string        // Base URL for Gemini API
	DefaultModel     string        // Default model to use if not specified in request
	APIVersion       string        // v1 or v1beta
	Timeout          time.Duration // HTTP client timeout
	MaxRetries       int           // Maximum retries on retryable errors
	DefaultMaxTokens int           // Default max tokens for generation
	TopP             *float64      // Default top_p value
	TopK             *int          // Default top_k value
	Temperature      *float64      // Default temperature value
}

// NewClient creates a new Gemini client from config
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gemini-2.5-pro"
	}

	defaultMaxTokens := cfg.DefaultMaxTokens
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 8192
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		apiKey:           cfg.APIKey,
		baseURL:          baseURL,
		defaultModel:     defaultModel,
		apiVersion:       apiVersion,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		maxRetries:       maxRetries,
		defaultMaxTokens: defaultMaxTokens,
		topP:             cfg.TopP,
		topK:             cfg.TopK,
		temperature:      cfg.Temperature,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// DefaultModel returns the model used when a request names none
func (c *Client) DefaultModel() string {
	return c.defaultModel
}

// GenerateContent sends a non-streaming generateContent request.
// Client defaults fill any sampling parameter the request leaves unset.
func (c *Client) GenerateContent(ctx context.Context, model string, req GenerateRequest) (*GenerateResponse, error) {
	if model == "" {
		model = c.defaultModel
	}
	if len(req.Contents) == 0 {
		return nil, errors.New("gemini: request has no contents")
	}

	gc := GenerationConfig{}
	if req.GenerationConfig != nil {
		gc = *req.GenerationConfig
	}
	if gc.MaxOutputTokens <= 0 {
		gc.MaxOutputTokens = c.defaultMaxTokens
	}
	if gc.Temperature == nil && c.temperature != nil {
		gc.Temperature = c.temperature
	}
	if gc.TopP == nil && c.topP != nil {
		gc.TopP = c.topP
	}
	if gc.TopK == nil && c.topK != nil {
		gc.TopK = c.topK
	}
	req.GenerationConfig = &gc

	var resp GenerateResponse
	if err := c.makeRequest(ctx, http.MethodPost, fmt.Sprintf("models/%s:generateContent", model), req, &resp); err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}

	return &resp, nil
}

// makeRequest performs one API call with bounded exponential retry on 429 and 5xx
func (c *Client) makeRequest(ctx context.Context, method, path string, requestBody, responseBody any) error {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, strings.TrimPrefix(path, "/"))

	var requestBytes []byte
	if requestBody != nil {
		var err error
		requestBytes, err = json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
	}

	loggy.Debug("Sending Gemini request",
		"method", method,
		"url", url,
		"body_bytes", len(requestBytes))

	attempt := 0
	operation := func() error {
		attempt++

		// The body reader is consumed by each send, so rebuild the request per attempt.
		var body io.Reader
		if requestBytes != nil {
			body = bytes.NewReader(requestBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		loggy.Debug("Gemini API response",
			"status_code", resp.StatusCode,
			"attempt", attempt,
			"content_length", len(bodyBytes))

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			if err := json.Unmarshal(bodyBytes, apiErr); err != nil || apiErr.ErrorDetail == nil {
				apiErr.ErrorDetail = &ErrorDetails{
					Code:    resp.StatusCode,
					Message: fmt.Sprintf("HTTP %s: %s", resp.Status, truncate(string(bodyBytes), 512)),
				}
			}

			loggy.Warn("Gemini API error response",
				"status_code", resp.StatusCode,
				"attempt", attempt,
				"error", apiErr.Error())

			if apiErr.Retryable() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if responseBody != nil {
			if err := json.Unmarshal(bodyBytes, responseBody); err != nil {
				return backoff.Permanent(fmt.Errorf("unmarshalling response: %w", err))
			}
		}

		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return err
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
