// Package inference sends analysis prompts to an OpenAI-compatible
// chat-completion endpoint. Failures never escape as errors: every call
// yields text, with Status telling real analyses apart from sentinels.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-risk-analysis/backend/internal/models"
	"chat-risk-analysis/backend/pkg/logger"
	"chat-risk-analysis/backend/pkg/resilience"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// NoResponseText is returned when the endpoint answers with zero choices.
const NoResponseText = "❌ LLM returned no response"

// ErrorTextPrefix starts the text returned for a failed call.
const ErrorTextPrefix = "❌ Inference request failed: "

// FailureText renders err as the stored failure sentinel.
func FailureText(err error) string {
	return ErrorTextPrefix + err.Error()
}

// ErrInvalidParams is wrapped when generation parameters are out of range.
var ErrInvalidParams = errors.New("invalid generation parameters")

// Params are the generation settings for one call.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// DefaultParams are the settings used for transcript analysis.
func DefaultParams() Params {
	return Params{MaxTokens: 3000, Temperature: 0.3}
}

// Validate checks MaxTokens > 0 and Temperature within [0, 2].
func (p Params) Validate() error {
	if p.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidParams, p.MaxTokens)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0,2], got %g", ErrInvalidParams, p.Temperature)
	}
	return nil
}

// Completion is the outcome of one call. Text is always set.
type Completion struct {
	Text   string
	Status string
	Model  string
	Err    error
}

// Completer is implemented by Client and by test fakes.
type Completer interface {
	Complete(ctx context.Context, messages []models.StructuredMessage, params Params) Completion
	Model() string
}

// Config configures the OpenAI-compatible endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	llm     llms.Model
	model   string
	breaker *resilience.CircuitBreaker
	log     *logger.Logger
}

// New builds a Client talking to cfg.BaseURL.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	token := cfg.APIKey
	if token == "" {
		// Self-hosted OpenAI-compatible servers often run without auth.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create inference client: %w", err)
	}
	return NewWithModel(llm, cfg.Model, cfg.Timeout, log), nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(llm llms.Model, model string, timeout time.Duration, log *logger.Logger) *Client {
	log = log.WithComponent("inference")
	breakerCfg := resilience.DefaultCircuitBreakerConfig("inference")
	breakerCfg.Timeout = timeout
	return &Client{
		llm:     llm,
		model:   model,
		breaker: resilience.NewCircuitBreaker(breakerCfg, log),
		log:     log,
	}
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.model
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Complete sends messages verbatim and returns the first choice's trimmed text.
func (c *Client) Complete(ctx context.Context, messages []models.StructuredMessage, params Params) Completion {
	if err := params.Validate(); err != nil {
		return c.failed(err)
	}

	content, err := toMessageContent(messages)
	if err != nil {
		return c.failed(err)
	}

	c.log.Info("sending analysis request",
		"model", c.model,
		"message_count", len(messages),
		"max_tokens", params.MaxTokens,
		"temperature", params.Temperature,
	)

	var resp *llms.ContentResponse
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.llm.GenerateContent(ctx, content,
			llms.WithModel(c.model),
			llms.WithMaxTokens(params.MaxTokens),
			llms.WithTemperature(params.Temperature),
		)
		if isEmptyResponse(callErr) {
			// A well-formed reply without choices; not a transport failure.
			resp, callErr = &llms.ContentResponse{}, nil
		}
		return callErr
	})
	if err != nil {
		return c.failed(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		c.log.Warn("inference returned no choices", "model", c.model)
		return Completion{Text: NoResponseText, Status: models.StatusNoResponse, Model: c.model}
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	c.log.Info("analysis response received", "model", c.model, "length", len(text))
	return Completion{Text: text, Status: models.StatusCompleted, Model: c.model}
}

// emptyResponseText is the message of the unexported error the langchaingo
// HTTP client returns for a reply without choices.
const emptyResponseText = "empty response"

// isEmptyResponse reports whether err means the endpoint answered with zero choices.
func isEmptyResponse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, openai.ErrEmptyResponse) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if e.Error() == emptyResponseText {
			return true
		}
	}
	return false
}

func (c *Client) failed(err error) Completion {
	c.log.LogError(err, "inference request failed", "model", c.model)
	return Completion{
		Text:   FailureText(err),
		Status: models.StatusInferenceFailed,
		Model:  c.model,
		Err:    err,
	}
}

func toMessageContent(messages []models.StructuredMessage) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleUser:
			role = llms.ChatMessageTypeHuman
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out, nil
}
