package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	apperrors "github.com/leadscan/leadscan/internal/core/errors"
	"github.com/leadscan/leadscan/internal/platform/config"
	"github.com/leadscan/leadscan/internal/platform/observability"
)

type openaiCaller struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

func newOpenAICaller(cfg *config.Config, apiKey string, logger *zerolog.Logger) Caller {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	return &openaiCaller{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.LLMRateLimitRPS)), rateLimitBurst),
	}
}

func (c *openaiCaller) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", apperrors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiCaller) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

func (c *openaiCaller) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures++

	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

// Complete runs one deterministic chat completion: temperature 0, fixed
// seed. The per-call timeout bounds every request. Run cancellation stops
// new calls at the rate limiter; a call already past it runs to completion
// on a detached context so its cost gets accounted.
func (c *openaiCaller) Complete(ctx context.Context, model, stage, prompt string, format ResponseFormat) (Completion, error) {
	if err := c.checkCircuit(); err != nil {
		return Completion{}, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("rate limiter error: %w", err)
	}

	callCtx := context.WithoutCancel(ctx)

	if c.cfg.PerCallTimeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(callCtx, c.cfg.PerCallTimeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	}

	seed := c.cfg.LLMSeed
	req.Seed = &seed

	if format == FormatJSONObject {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(callCtx, req)

	observability.LLMRequestDuration.WithLabelValues(model, stage).
		Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordFailure()
		observability.LLMRequests.WithLabelValues(model, stage, "error").Inc()

		return Completion{}, fmt.Errorf("chat completion: %w", classifyAPIError(err))
	}

	c.recordSuccess()
	observability.LLMRequests.WithLabelValues(model, stage, "ok").Inc()
	observability.LLMTokensPrompt.WithLabelValues(model, stage).Add(float64(resp.Usage.PromptTokens))
	observability.LLMTokensCompletion.WithLabelValues(model, stage).Add(float64(resp.Usage.CompletionTokens))

	completion := Completion{
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	// An empty body was still a billed call: return the usage alongside the
	// error so the ledger records it, and mark it retryable.
	if len(resp.Choices) == 0 {
		return completion, fmt.Errorf("chat completion: %w", errEmptyTransient())
	}

	completion.Content = strings.TrimSpace(resp.Choices[0].Message.Content)
	if completion.Content == "" {
		return completion, fmt.Errorf("chat completion: %w", errEmptyTransient())
	}

	return completion, nil
}

func errEmptyTransient() error {
	return fmt.Errorf("%w: %w", apperrors.ErrTransient, apperrors.ErrEmptyResponse)
}

// classifyAPIError wraps provider errors so callers can tell transient
// failures (retry) from terminal ones (give up).
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
		}

		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}

	return err
}
