// internal/inference/openai.go
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
)

const (
	webContextAllowed   = "You may use well-known public information about the business when the input is incomplete."
	webContextForbidden = "Use only the information given in the input. Do not rely on outside knowledge."
)

// OpenAIClient implements Client over the chat completions API with a JSON
// schema response format.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
}

func NewOpenAIClient(cfg config.InferenceConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}, nil
}

func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("inference limiter: %w", err)
	}

	parent := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	system := req.System + "\n" + webContextForbidden
	if req.AllowWebContext {
		system = req.System + "\n" + webContextAllowed
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
			},
		}
	} else {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	metrics.InferenceDuration.WithLabelValues(string(req.Operation)).Observe(time.Since(start).Seconds())
	if err != nil {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// Our own per-call timeout, not the caller's: a slow provider.
			err = fmt.Errorf("%w: no reply within %s: %v", ErrUnavailable, c.timeout, err)
		} else {
			err = classifyOpenAIError(err)
		}
		metrics.InferenceCalls.WithLabelValues(string(req.Operation), errorLabel(err)).Inc()
		logrus.WithFields(logrus.Fields{
			"operation": req.Operation,
			"model":     c.model,
		}).WithError(err).Warn("Inference call failed")
		return nil, err
	}

	if len(resp.Choices) == 0 {
		metrics.InferenceCalls.WithLabelValues(string(req.Operation), "invalid_output").Inc()
		return nil, fmt.Errorf("%w: no completion choices returned", ErrInvalidOutput)
	}

	content := ExtractJSON(resp.Choices[0].Message.Content)
	if content == "" || !json.Valid([]byte(content)) {
		metrics.InferenceCalls.WithLabelValues(string(req.Operation), "invalid_output").Inc()
		return nil, fmt.Errorf("%w: reply is not a JSON object", ErrInvalidOutput)
	}

	metrics.InferenceCalls.WithLabelValues(string(req.Operation), "ok").Inc()
	logrus.WithFields(logrus.Fields{
		"operation":         req.Operation,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("Inference call completed")

	return json.RawMessage(content), nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests || rateLimitPattern.MatchString(err.Error()):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case status >= 500 || status == 0:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
}

func errorLabel(err error) string {
	switch {
	case IsRateLimited(err):
		return "rate_limited"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
