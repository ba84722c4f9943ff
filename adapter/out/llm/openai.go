// Package llm provides the OpenAI-backed completion adapter.
package llm

import (
	"context"
	"time"

	"digest_server/core/port/out"
	"digest_server/pkg/apperr"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	// DefaultModel balances classification quality against per-digest cost.
	DefaultModel = "gpt-4o-mini"

	defaultMaxTokens   = 2048
	defaultTemperature = 0.3
)

// Config holds the OpenAI client settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements out.LLMClient on the OpenAI chat completion API, with a
// circuit breaker so a degraded upstream fails fast instead of queueing the
// whole pipeline behind timeouts.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	cb          *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

// NewClient creates the adapter. Zero-valued Config fields fall back to
// defaults.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	log = log.With().Str("component", "openai_client").Logger()

	cbSettings := gobreaker.Settings{
		Name:        "openai-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Client{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		log:         log,
	}
}

// CompleteJSON sends the prompt in JSON response mode and returns the raw
// reply body. Callers own parsing and validation.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "{}", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", apperr.Upstream("openai circuit open", err)
		}
		return "", apperr.Upstream("openai completion", err)
	}

	return result.(string), nil
}

var _ out.LLMClient = (*Client)(nil)
