package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"imposter-server/internal/game"
)

// Compile-time check
var _ Store = (*PostgresStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS games (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    word       TEXT NOT NULL,
    category   TEXT NOT NULL,
    config     JSONB NOT NULL,
    result     JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS game_events (
    game_id    TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
    seq        INT NOT NULL,
    type       TEXT NOT NULL,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (game_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_games_created_at ON games (created_at DESC);
`

// PostgresStore хранит партии и их событийный лог в PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore подключается к базе и создаёт схему, если её ещё нет.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула соединений: %w", err)
	}
	// База может подниматься параллельно с сервисом.
	if err := WaitReady(ctx, pool, 5, 2*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка инициализации схемы: %w", err)
	}
	logger.Info("PostgreSQL хранилище партий готово")
	return &PostgresStore{pool: pool, logger: logger.Named("PgHistoryStore")}, nil
}

func (s *PostgresStore) CreateGame(ctx context.Context, rec *GameRecord) error {
	cfgJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("ошибка сериализации конфига партии: %w", err)
	}

	query := `
        INSERT INTO games (id, status, word, category, config)
        VALUES ($1, $2, $3, $4, $5)
    `
	s.logger.Debug("Creating game record", zap.String("gameID", rec.ID))
	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.Status, rec.Word, rec.Category, cfgJSON); err != nil {
		s.logger.Error("Failed to create game record", zap.String("gameID", rec.ID), zap.Error(err))
		return fmt.Errorf("ошибка создания записи партии: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status GameStatus, result *game.GameResult) error {
	var resultJSON []byte
	if result != nil {
		var err error
		if resultJSON, err = json.Marshal(result); err != nil {
			return fmt.Errorf("ошибка сериализации результата партии: %w", err)
		}
	}

	query := `UPDATE games SET status = $2, result = $3, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, status, resultJSON)
	if err != nil {
		s.logger.Error("Failed to update game status", zap.String("gameID", id), zap.Error(err))
		return fmt.Errorf("ошибка обновления статуса партии %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*GameRecord, error) {
	query := `
        SELECT id, status, word, category, config, result, created_at, updated_at
        FROM games
        WHERE id = $1
    `
	var (
		rec        GameRecord
		cfgJSON    []byte
		resultJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Status, &rec.Word, &rec.Category,
		&cfgJSON, &resultJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.logger.Error("Failed to get game", zap.String("gameID", id), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения партии %s: %w", id, err)
	}

	if err := json.Unmarshal(cfgJSON, &rec.Config); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфига партии %s: %w", id, err)
	}
	if len(resultJSON) > 0 {
		rec.Result = &game.GameResult{}
		if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
			return nil, fmt.Errorf("ошибка разбора результата партии %s: %w", id, err)
		}
	}
	return &rec, nil
}

func (s *PostgresStore) ListGames(ctx context.Context, limit int) ([]GameSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT id, status, category,
               COALESCE(result->>'winner', '') AS winner,
               created_at
        FROM games
        ORDER BY created_at DESC
        LIMIT $1
    `
	var out []GameSummary
	if err := pgxscan.Select(ctx, s.pool, &out, query, limit); err != nil {
		s.logger.Error("Failed to list games", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка партий: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, id string, seq int, ev game.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	query := `INSERT INTO game_events (game_id, seq, type, payload) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, id, seq, ev.Type, payload); err != nil {
		s.logger.Error("Failed to append game event",
			zap.String("gameID", id), zap.Int("seq", seq), zap.Error(err))
		return fmt.Errorf("ошибка записи события партии %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, id string) ([]game.Event, error) {
	query := `SELECT payload FROM game_events WHERE game_id = $1 ORDER BY seq`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения событий партии %s: %w", id, err)
	}
	defer rows.Close()

	var out []game.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ошибка чтения события партии %s: %w", id, err)
		}
		var ev game.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("ошибка разбора события партии %s: %w", id, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения событий партии %s: %w", id, err)
	}
	if out == nil {
		// Отличаем несуществующую партию от партии без событий.
		if _, err := s.GetGame(ctx, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close закрывает пул соединений.
func (s *PostgresStore) Close() { s.pool.Close() }

// WaitReady ждёт доступности базы с ограниченным числом попыток.
func WaitReady(ctx context.Context, pool interface{ Ping(context.Context) error }, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = pool.Ping(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("база недоступна после %d попыток: %w", attempts, lastErr)
}
