// Package history отвечает за хранение партий: запись события за событием по
// ходу игры и восстановление полной хронологии "что произошло в партии X"
// после её завершения. Хранилище выбирается конфигурацией: встроенное в память
// для локальных запусков и PostgreSQL для постоянного хранения, с опциональным
// Redis-кэшем поверх.
package history

import (
	"context"
	"errors"
	"time"

	"imposter-server/internal/game"
)

// ErrNotFound - партия с таким id не найдена.
var ErrNotFound = errors.New("партия не найдена")

// GameStatus - статус партии в хранилище.
type GameStatus string

const (
	StatusRunning   GameStatus = "running"
	StatusCompleted GameStatus = "completed"
	StatusFailed    GameStatus = "failed"
)

// GameRecord - запись партии: конфигурация на входе, результат на выходе.
type GameRecord struct {
	ID        string           `json:"id"`
	Status    GameStatus       `json:"status"`
	Word      string           `json:"word"`
	Category  string           `json:"category"`
	Config    game.Config      `json:"config"`
	Result    *game.GameResult `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// GameSummary - строка списка партий без тяжёлых полей.
type GameSummary struct {
	ID        string     `json:"id"`
	Status    GameStatus `json:"status"`
	Category  string     `json:"category"`
	Winner    string     `json:"winner,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Store - контракт хранилища партий. События пишутся последовательно
// с монотонным seq внутри партии, чтение возвращает их в том же порядке.
type Store interface {
	CreateGame(ctx context.Context, rec *GameRecord) error
	UpdateStatus(ctx context.Context, id string, status GameStatus, result *game.GameResult) error
	GetGame(ctx context.Context, id string) (*GameRecord, error)
	ListGames(ctx context.Context, limit int) ([]GameSummary, error)
	AppendEvent(ctx context.Context, id string, seq int, ev game.Event) error
	Events(ctx context.Context, id string) ([]game.Event, error)
	Close()
}
