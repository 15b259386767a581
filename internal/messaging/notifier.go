// Package messaging публикует уведомления о завершении партий в RabbitMQ.
// Потребители (ботовые фермы, агрегация статистики) вычитывают очередь
// самостоятельно, сервис только публикует.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"imposter-server/internal/game"
)

// GameCompletedPayload - сообщение о завершённой (или сорванной) партии.
type GameCompletedPayload struct {
	GameID            string  `json:"game_id"`
	Winner            string  `json:"winner"`
	Reason            string  `json:"reason"`
	Category          string  `json:"category"`
	TotalRounds       int     `json:"total_rounds"`
	DetectionAccuracy float64 `json:"detection_accuracy"`
	CompletedAt       string  `json:"completed_at"`
}

// Notifier отправляет уведомление о завершении партии.
type Notifier interface {
	NotifyGameCompleted(ctx context.Context, result *game.GameResult) error
}

// rabbitMQNotifier реализует Notifier поверх RabbitMQ.
type rabbitMQNotifier struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQNotifier объявляет durable-очередь и возвращает Notifier.
// Канал открывается и закрывается вызывающей стороной.
func NewRabbitMQNotifier(ch *amqp.Channel, queueName string, logger *zap.Logger) (Notifier, error) {
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось объявить очередь уведомлений %q: %w", queueName, err)
	}
	logger.Info("очередь уведомлений объявлена", zap.String("queue", queueName))

	return &rabbitMQNotifier{channel: ch, queueName: queueName, logger: logger.Named("Notifier")}, nil
}

// NotifyGameCompleted публикует результат партии в очередь.
func (n *rabbitMQNotifier) NotifyGameCompleted(ctx context.Context, result *game.GameResult) error {
	payload := GameCompletedPayload{
		GameID:            result.GameID,
		Winner:            string(result.Winner),
		Reason:            result.Reason,
		Category:          result.Category,
		TotalRounds:       result.TotalRounds,
		DetectionAccuracy: result.DetectionAccuracy,
		CompletedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации уведомления партии %s: %w", result.GameID, err)
	}

	err = n.channel.PublishWithContext(ctx,
		"",
		n.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "imposter-server",
			MessageId:    result.GameID + "-completed",
		},
	)
	if err != nil {
		n.logger.Error("ошибка публикации уведомления",
			zap.String("gameID", result.GameID), zap.Error(err))
		return fmt.Errorf("ошибка публикации уведомления партии %s: %w", result.GameID, err)
	}

	n.logger.Info("уведомление о завершении партии отправлено",
		zap.String("gameID", result.GameID),
		zap.String("winner", string(result.Winner)))
	return nil
}

// NopNotifier используется, когда RabbitMQ не сконфигурирован.
type NopNotifier struct{}

func (NopNotifier) NotifyGameCompleted(context.Context, *game.GameResult) error { return nil }
