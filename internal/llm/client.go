package llm

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/observe"
)

// ModelType selects an ordered model list from a provider's table.
type ModelType string

const (
	ModelFast       ModelType = "fast"
	ModelSmart      ModelType = "smart"
	ModelStructured ModelType = "structured"
)

// Message is one chat message. Both providers speak the OpenAI
// chat-completions dialect.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// provider is one OpenAI-compatible endpoint with its model table.
type provider struct {
	name   string
	client *openai.Client
	models map[string][]string
}

func (p *provider) modelsFor(mt ModelType) []string {
	if list, ok := p.models[string(mt)]; ok && len(list) > 0 {
		return list
	}
	return p.models[string(ModelFast)]
}

// Client mediates all generation calls: multi-model primary attempts,
// cross-provider fallback, pre-flight token budget enforcement and call
// accounting. Safe for concurrent use.
type Client struct {
	primary  *provider
	fallback *provider // nil when no fallback key is configured

	limiter          *rate.Limiter
	timeout          time.Duration
	retryDelay       time.Duration
	maxRetries       int
	affordableTokens int64

	callCount atomic.Int64
	logger    *logging.Logger
}

// NewClient builds the client from configuration. The fallback provider is
// only wired when both the flag and its API key are set.
func NewClient(cfg config.LLMConfig) *Client {
	logger := logging.With("component", "llm")

	c := &Client{
		primary:          newProvider("primary", cfg.BaseURL, cfg.APIKey, cfg.Models),
		timeout:          cfg.Timeout,
		retryDelay:       cfg.RetryDelay,
		maxRetries:       cfg.MaxRetries,
		affordableTokens: int64(cfg.AffordableTokens),
		logger:           logger,
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	if cfg.EnableFallback && cfg.FallbackAPIKey != "" {
		c.fallback = newProvider("fallback", cfg.FallbackBaseURL, cfg.FallbackAPIKey, cfg.FallbackModels)
		logger.Info("fallback provider initialized", "base_url", cfg.FallbackBaseURL)
	}

	return c
}

func newProvider(name, baseURL, apiKey string, models map[string][]string) *provider {
	conf := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		conf.BaseURL = baseURL
	}
	return &provider{
		name:   name,
		client: openai.NewClientWithConfig(conf),
		models: models,
	}
}

// Complete sends the messages through the configured model sequence and
// returns the first successful completion. Error handling is classified:
// budget errors abort immediately, rate limits pause for the retry delay,
// anything else skips to the next model and finally to the fallback
// provider.
func (c *Client) Complete(ctx context.Context, messages []Message, modelType ModelType, temperature float32, maxTokens int) (string, error) {
	ctx, span := observe.Start(ctx, "LLM Call")
	var err error
	defer func() { span.End(err) }()

	if err = c.checkBudget(messages, maxTokens); err != nil {
		return "", err
	}

	var lastErr error
	for _, p := range c.providers() {
		for _, model := range p.modelsFor(modelType) {
			c.logger.Debug("trying model", "provider", p.name, "model", model)

			var out string
			out, err = c.execute(ctx, p, model, messages, temperature, maxTokens)
			if err == nil {
				span.SetAttr("model", model)
				span.SetAttr("provider", p.name)
				return out, nil
			}

			if errors.IsInsufficientCredits(err) {
				return "", err
			}
			if isRateLimited(err) {
				c.logger.Warn("rate limited, pausing", "provider", p.name, "model", model)
				select {
				case <-time.After(c.retryDelay):
				case <-ctx.Done():
					err = ctx.Err()
					return "", err
				}
			}

			c.logger.Warn("model failed", "provider", p.name, "model", model, "error", truncateErr(err))
			lastErr = err
		}
		if c.fallback != nil && p == c.primary {
			c.logger.Warn("primary provider exhausted, switching to fallback")
		}
	}

	err = errors.TransientModel(lastErr, "all models (primary and fallback) failed")
	return "", err
}

func (c *Client) providers() []*provider {
	if c.fallback != nil {
		return []*provider{c.primary, c.fallback}
	}
	return []*provider{c.primary}
}

// checkBudget enforces the pre-flight token estimate before any network
// call: roughly one token per three prompt characters plus the requested
// completion budget.
func (c *Client) checkBudget(messages []Message, maxTokens int) error {
	var promptChars int64
	for _, m := range messages {
		promptChars += int64(len(m.Content))
	}
	estimated := promptChars / 3

	if estimated+int64(maxTokens) > c.affordableTokens {
		return errors.InsufficientCredits("request exceeds token safety limit").
			WithContext("estimated_prompt_tokens", estimated).
			WithContext("max_tokens", maxTokens).
			WithContext("affordable_tokens", c.affordableTokens)
	}
	return nil
}

// execute performs one API call against one model.
func (c *Client) execute(ctx context.Context, p *provider, model string, messages []Message, temperature float32, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAI(messages),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	resp, err := p.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", classify(err)
	}

	c.callCount.Add(1)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.TransientModel(nil, "empty response from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps provider errors into the error taxonomy. HTTP 402 and
// credit-exhaustion phrasings are unrecoverable; everything else is left
// for the fallback walk.
func classify(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 402 {
			return errors.InsufficientCredits("provider rejected request: payment required")
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "payment required") || strings.Contains(msg, "insufficient") {
		return errors.InsufficientCredits("provider rejected request: " + truncateErr(err))
	}
	return err
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func truncateErr(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 100 {
		return s[:100]
	}
	return s
}

// Stats reports usage counters for the health endpoint and pipeline logs.
func (c *Client) Stats() map[string]any {
	return map[string]any{
		"total_calls": c.callCount.Load(),
	}
}
