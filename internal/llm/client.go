// Package llm provides the reasoning client used by councils.
//
// The client wraps a langchaingo model with a rate limiter and bounded
// retries. Any OpenAI-compatible endpoint can serve it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pisanocami/usercontextrecord-sub002/internal/config"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 2048
	defaultTemperature = 0.3
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second

	// 50 requests per minute.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// Reasoner completes a prompt. Councils depend on this interface only.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      config.Secret
	Temperature float64
	MaxTokens   int
	RateLimit   float64
	Burst       int
	MaxRetries  int
	BaseBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
}

// Client implements Reasoner on top of a langchaingo model.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	logger      *zap.Logger
}

// New creates a Client backed by an OpenAI-compatible chat endpoint.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.applyDefaults()

	token := cfg.APIKey.Value()
	if token == "" {
		// langchaingo requires a token even for local endpoints.
		token = "placeholder"
	}

	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel creates a Client around an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger,
	}
}

// Complete sends prompt to the model and returns its text answer. Transient
// failures are retried with exponential backoff; ctx bounds the whole call.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
			llms.WithTemperature(c.temperature),
			llms.WithMaxTokens(c.maxTokens),
		)
		if err == nil {
			if strings.TrimSpace(out) == "" {
				return "", ErrEmptyResponse
			}
			return out, nil
		}

		lastErr = err
		if !isRetryable(ctx, err) {
			return "", fmt.Errorf("completion failed: %w", err)
		}
		c.logger.Debug("retrying completion",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable treats rate limiting, server errors and transport failures as
// transient. Client errors and cancellation are final.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "429") {
		return true
	}
	for _, code := range []string{"400", "401", "403", "404", "422"} {
		if strings.Contains(msg, "status code: "+code) {
			return false
		}
	}
	return true
}

var _ Reasoner = (*Client)(nil)
