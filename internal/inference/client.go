// internal/inference/client.go
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/javajoker/vendormatch-backend/internal/config"
)

type Operation string

const (
	OperationMatch      Operation = "match"
	OperationSimilarity Operation = "similarity"
	OperationExtract    Operation = "extract"
)

var (
	// ErrRateLimited marks throttling by the provider.
	ErrRateLimited = errors.New("inference rate limited")
	// ErrUnavailable marks transient provider or network failures.
	ErrUnavailable = errors.New("inference unavailable")
	// ErrInvalidOutput marks a reply that is not valid JSON for the schema.
	ErrInvalidOutput = errors.New("inference returned invalid output")
	// ErrRejected marks a request the provider refused; retrying will not help.
	ErrRejected = errors.New("inference request rejected")
)

var rateLimitPattern = regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b|quota`)

// Request is one structured inference call.
type Request struct {
	Operation       Operation
	System          string
	Prompt          string
	SchemaName      string
	Schema          *jsonschema.Definition
	AllowWebContext bool
}

// Client submits a prompt and schema and returns the raw JSON object.
type Client interface {
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
}

// IsRateLimited reports whether err is throttling, either classified by an
// adapter or recognizable from its message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRejected) {
		return false
	}
	return IsRateLimited(err) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidOutput)
}

// NewClient builds the configured provider.
func NewClient(cfg config.InferenceConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg)
	case "", "disabled":
		return disabledClient{}, nil
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", cfg.Provider)
	}
}

type disabledClient struct{}

func (disabledClient) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: no inference provider configured for %s", ErrUnavailable, req.Operation)
}
