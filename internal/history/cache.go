package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"imposter-server/internal/game"
)

// Compile-time check
var _ Store = (*CachedStore)(nil)

// CachedStore кэширует чтение завершённых партий в Redis. Запись всегда идёт
// во вложенное хранилище; кэш заполняется лениво при чтении и инвалидируется
// при смене статуса. Ошибки Redis не роняют запрос - идём в базу.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("HistoryCache"),
	}
}

func gameKey(id string) string { return fmt.Sprintf("imposter:game:%s", id) }

func (s *CachedStore) CreateGame(ctx context.Context, rec *GameRecord) error {
	return s.inner.CreateGame(ctx, rec)
}

func (s *CachedStore) UpdateStatus(ctx context.Context, id string, status GameStatus, result *game.GameResult) error {
	if err := s.inner.UpdateStatus(ctx, id, status, result); err != nil {
		return err
	}
	if err := s.client.Del(ctx, gameKey(id)).Err(); err != nil {
		s.logger.Warn("не удалось инвалидировать кэш партии",
			zap.String("gameID", id), zap.Error(err))
	}
	return nil
}

func (s *CachedStore) GetGame(ctx context.Context, id string) (*GameRecord, error) {
	raw, err := s.client.Get(ctx, gameKey(id)).Bytes()
	if err == nil {
		var rec GameRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			return &rec, nil
		}
		// Битая запись в кэше - пересоберём из базы.
		s.client.Del(ctx, gameKey(id))
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("ошибка чтения кэша партии", zap.String("gameID", id), zap.Error(err))
	}

	rec, err := s.inner.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}

	// Идущие партии не кэшируем: их результат ещё меняется.
	if rec.Status != StatusRunning {
		if raw, err := json.Marshal(rec); err == nil {
			if err := s.client.Set(ctx, gameKey(id), raw, s.ttl).Err(); err != nil {
				s.logger.Warn("не удалось записать партию в кэш",
					zap.String("gameID", id), zap.Error(err))
			}
		}
	}
	return rec, nil
}

func (s *CachedStore) ListGames(ctx context.Context, limit int) ([]GameSummary, error) {
	return s.inner.ListGames(ctx, limit)
}

func (s *CachedStore) AppendEvent(ctx context.Context, id string, seq int, ev game.Event) error {
	return s.inner.AppendEvent(ctx, id, seq, ev)
}

func (s *CachedStore) Events(ctx context.Context, id string) ([]game.Event, error) {
	return s.inner.Events(ctx, id)
}

func (s *CachedStore) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("ошибка закрытия Redis клиента", zap.Error(err))
	}
	s.inner.Close()
}
