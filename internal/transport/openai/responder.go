package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/domain"
	"github.com/botgate-io/botgate/internal/metrics"
)

// Responder is a chat provider using the OpenAI-compatible API. Anthropic
// and Google both expose such endpoints, so one transport covers every
// configured provider; only the BaseURL and key differ.
type Responder struct {
	client   *openai.Client
	provider string
	logger   *zap.Logger
}

// Config holds the chat provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Provider string
	Logger   *zap.Logger
}

// NewResponder creates an OpenAI-compatible chat provider.
func NewResponder(cfg *Config) *Responder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Responder{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Respond implements domain.Responder. Returns the reply text and token
// usage with transport-level metrics.
func (r *Responder) Respond(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.Instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	start := time.Now()

	resp, err := r.client.CreateChatCompletion(ctx, chatReq)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(r.provider, req.Model, "error").Inc()
		return domain.Reply{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(r.provider, req.Model, "error").Inc()
		return domain.Reply{}, fmt.Errorf("empty completion response: %w", domain.ErrProviderFailure)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(r.provider, req.Model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(r.provider, req.Model).Observe(duration.Seconds())

	usage := resp.Usage
	if usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(r.provider, req.Model, "prompt").Add(float64(usage.PromptTokens))
		metrics.ProviderTokensTotal.WithLabelValues(r.provider, req.Model, "completion").Add(float64(usage.CompletionTokens))
		metrics.ProviderTokensTotal.WithLabelValues(r.provider, req.Model, "total").Add(float64(usage.TotalTokens))
	}

	return domain.Reply{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (r *Responder) HealthCheck(ctx context.Context) error {
	if _, err := r.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrProviderFailure for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrProviderFailure

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("chat API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("chat API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("chat request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
