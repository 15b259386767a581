package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"

	"imposter-server/internal/config"
	"imposter-server/internal/schemas"
)

// usageInfo - использование токенов одного запроса.
type usageInfo struct {
	PromptTokens     int
	CompletionTokens int
}

// transport - низкоуровневый чат-вызов одного провайдера. model - уже
// полный идентификатор, не псевдоним.
type transport interface {
	chat(ctx context.Context, model string, msgs []schemas.Message, temperature float32, maxTokens int) (string, usageInfo, error)
}

// --- OpenAI-совместимый транспорт (OpenRouter) ---

type openAITransport struct {
	client *openaigo.Client
}

func newOpenAITransport(cfg *config.Config) *openAITransport {
	apiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	apiConfig.BaseURL = cfg.AIBaseURL
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}
	return &openAITransport{client: openaigo.NewClientWithConfig(apiConfig)}
}

func (t *openAITransport) chat(ctx context.Context, model string, msgs []schemas.Message, temperature float32, maxTokens int) (string, usageInfo, error) {
	messages := make([]openaigo.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := t.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", usageInfo{}, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", usageInfo{}, fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}

	usage := usageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	// Некоторые провайдеры не отдают usage - оцениваем через tiktoken.
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		if tke, encErr := tiktoken.GetEncoding("cl100k_base"); encErr == nil {
			for _, m := range msgs {
				usage.PromptTokens += len(tke.Encode(m.Content, nil, nil))
			}
			usage.CompletionTokens = len(tke.Encode(resp.Choices[0].Message.Content, nil, nil))
		}
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// --- Ollama транспорт для локальных моделей ---

type ollamaTransport struct {
	client  *api.Client
	timeout time.Duration
}

func newOllamaTransport(cfg *config.Config) (*ollamaTransport, error) {
	// api.NewClient требует URL без суффикса /v1.
	base := strings.TrimSuffix(cfg.AIBaseURL, "/v1")
	base = strings.TrimSuffix(base, "/")
	parsedURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL %q: %w", base, err)
	}
	return &ollamaTransport{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout}),
		timeout: cfg.AITimeout,
	}, nil
}

func (t *ollamaTransport) chat(ctx context.Context, model string, msgs []schemas.Message, temperature float32, maxTokens int) (string, usageInfo, error) {
	messages := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Format:   []byte(`"json"`),
		Options: map[string]interface{}{
			"temperature": float64(temperature),
			"num_predict": maxTokens,
		},
	}

	requestCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var resp api.ChatResponse
	err := t.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return "", usageInfo{}, err
	}
	if resp.Message.Content == "" {
		return "", usageInfo{}, fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}
	return resp.Message.Content, usageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}

// isNonRetryable отделяет ошибки авторизации и несуществующих моделей
// от транзиентных: первые ретраить бессмысленно, сразу идём к фолбэку.
func isNonRetryable(err error) bool {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
