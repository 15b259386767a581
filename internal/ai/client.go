// Package ai - транспортный слой модельных вызовов: OpenAI-совместимый клиент
// поверх OpenRouter (или локальная Ollama), ограниченные ретраи с экспоненциальной
// задержкой и джиттером, фолбэк на запасные модели и разбор типизированных
// JSON-ответов. Движок партии видит только типизированные методы.
package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"imposter-server/internal/config"
	"imposter-server/internal/schemas"
)

var (
	// ErrGenerationFailed - все ретраи и фолбэки исчерпаны.
	ErrGenerationFailed = errors.New("ошибка генерации ответа AI")
	// ErrBadResponse - ответ модели не разобрался в ожидаемую структуру.
	ErrBadResponse = errors.New("некорректный ответ модели")
)

const maxRetryDelay = 30 * time.Second

// Caller - клиент модельных вызовов с ретраями и фолбэками. Реализует
// контракт движка партии.
type Caller struct {
	transport transport
	registry  Registry
	log       *zap.Logger

	fallbacks   []string
	maxAttempts int
	baseDelay   time.Duration
}

// New создаёт клиент по конфигурации. Тип транспорта выбирается по
// cfg.AIClientType: openai-совместимый (OpenRouter) или локальная Ollama.
func New(cfg *config.Config, registry Registry, log *zap.Logger) (*Caller, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	var tr transport
	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		log.Info("используется AI транспорт OpenAI",
			zap.String("base_url", cfg.AIBaseURL),
			zap.Duration("timeout", cfg.AITimeout))
		tr = newOpenAITransport(cfg)
	case "ollama":
		log.Info("используется AI транспорт Ollama",
			zap.String("base_url", cfg.AIBaseURL))
		var err error
		tr, err = newOllamaTransport(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: %q", cfg.AIClientType)
	}

	return &Caller{
		transport:   tr,
		registry:    registry,
		log:         log,
		fallbacks:   cfg.AIFallbackModels,
		maxAttempts: cfg.AIMaxAttempts,
		baseDelay:   cfg.AIBaseRetryDelay,
	}, nil
}

// Clue запрашивает ход подсказки.
func (c *Caller) Clue(ctx context.Context, req schemas.Request) (schemas.ClueResponse, error) {
	var out schemas.ClueResponse
	err := c.invoke(ctx, "clue", req, &out, func() error {
		if strings.TrimSpace(out.Clue) == "" {
			return errors.New("пустая подсказка")
		}
		out.Confidence = clampConfidence(out.Confidence)
		return nil
	})
	return out, err
}

// Vote запрашивает один голос в под-раунде голосования.
func (c *Caller) Vote(ctx context.Context, req schemas.Request) (schemas.SingleVoteResponse, error) {
	var out schemas.SingleVoteResponse
	err := c.invoke(ctx, "vote", req, &out, func() error {
		if strings.TrimSpace(out.Target) == "" {
			return errors.New("пустая цель голоса")
		}
		out.Confidence = clampConfidence(out.Confidence)
		return nil
	})
	return out, err
}

// Remark запрашивает реплику фазы обсуждения.
func (c *Caller) Remark(ctx context.Context, req schemas.Request) (schemas.DiscussionResponse, error) {
	var out schemas.DiscussionResponse
	err := c.invoke(ctx, "remark", req, &out, func() error {
		if strings.TrimSpace(out.Statement) == "" {
			return errors.New("пустая реплика")
		}
		out.Confidence = clampConfidence(out.Confidence)
		return nil
	})
	return out, err
}

// invoke прогоняет запрос через основную модель и фолбэки с ограниченными
// ретраями. Порядок моделей: модель запроса, затем запасные из конфигурации.
// Неразобравшийся ответ считается транзиентной ошибкой и ретраится так же,
// как сетевой сбой. Ошибки авторизации и несуществующей модели сразу
// переключают на следующую модель.
func (c *Caller) invoke(ctx context.Context, kind string, req schemas.Request, out any, validate func() error) error {
	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	models := c.modelChain(req.Model)
	var lastErr error

	for mi, model := range models {
		if mi > 0 {
			aiFallbacksTotal.WithLabelValues(models[mi-1], model).Inc()
			c.log.Warn("переключение на запасную модель",
				zap.String("from", models[mi-1]), zap.String("to", model))
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			raw, usage, err := c.transport.chat(ctx, model, req.Messages, req.Temperature, req.MaxTokens)
			duration := time.Since(start)

			if err == nil {
				err = decodeInto(raw, out, validate)
			}
			if err == nil {
				aiRequestsTotal.WithLabelValues(model, kind, "success").Inc()
				aiRequestDuration.WithLabelValues(model, kind).Observe(duration.Seconds())
				aiPromptTokens.WithLabelValues(model).Observe(float64(usage.PromptTokens))
				aiCompletionTokens.WithLabelValues(model).Observe(float64(usage.CompletionTokens))
				if cost := calculateCost(usage.PromptTokens, usage.CompletionTokens); cost > 0 {
					aiEstimatedCostUSD.WithLabelValues(model).Add(cost)
				}
				return nil
			}

			lastErr = err
			aiRequestsTotal.WithLabelValues(model, kind, "error").Inc()

			if isNonRetryable(err) {
				c.log.Warn("неретраибельная ошибка модели",
					zap.String("model", model), zap.Error(err))
				break
			}
			if attempt < attempts {
				delay := c.backoff(attempt)
				c.log.Warn("ошибка вызова модели, повтор",
					zap.String("model", model),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err))
				aiRetriesTotal.WithLabelValues(model).Inc()
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	return fmt.Errorf("%w: модели %v исчерпаны: %v", ErrGenerationFailed, models, lastErr)
}

// modelChain разрешает псевдонимы и строит очередь моделей без повторов.
func (c *Caller) modelChain(primary string) []string {
	seen := make(map[string]bool)
	var chain []string
	for _, alias := range append([]string{primary}, c.fallbacks...) {
		id := c.registry.Resolve(alias)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		chain = append(chain, id)
	}
	return chain
}

// backoff - экспоненциальная задержка с джиттером и потолком.
func (c *Caller) backoff(attempt int) time.Duration {
	base := c.baseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base << uint(attempt-1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}
