package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/teemow/inboxsorter/internal/instrumentation"
)

const (
	systemPrompt = "You are an email classifier. Classify the email into ONE of these categories exactly: " +
		"Important, Promotions, Social, Marketing, Spam, General. " +
		"Return ONLY valid JSON with keys: category (string), confidence (integer 70-99)."

	userPromptPrefix = "Classify this email: "

	temperature = 0.2
	maxTokens   = 50
)

// completer sends one classification prompt and returns the raw reply.
type completer interface {
	complete(ctx context.Context, apiKey, content string) (string, error)
}

// openAICompleter talks to the chat completions endpoint.
type openAICompleter struct {
	baseURL    string
	model      string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
}

func (o *openAICompleter) complete(ctx context.Context, apiKey, content string) (string, error) {
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	client := openai.NewClientWithConfig(cfg)

	ctx, span := instrumentation.StartLLMSpan(ctx, o.model)
	defer span.End()

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPromptPrefix + content},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		o.metrics.RecordLLMRequest(ctx, instrumentation.StatusError, time.Since(start))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	o.metrics.RecordLLMRequest(ctx, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// isClientError reports whether err is the caller's fault (bad key, bad
// request) rather than an availability problem of the endpoint.
func isClientError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 &&
			reqErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}
