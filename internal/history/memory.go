package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"imposter-server/internal/game"
)

// Compile-time check
var _ Store = (*MemoryStore)(nil)

// MemoryStore - встроенное хранилище для локальных запусков и тестов.
type MemoryStore struct {
	mu     sync.RWMutex
	games  map[string]*GameRecord
	events map[string][]game.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:  make(map[string]*GameRecord),
		events: make(map[string][]game.Event),
	}
}

func (s *MemoryStore) CreateGame(_ context.Context, rec *GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.games[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status GameStatus, result *game.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.Result = result
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*GameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListGames(_ context.Context, limit int) ([]GameSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GameSummary, 0, len(s.games))
	for _, rec := range s.games {
		sum := GameSummary{
			ID:        rec.ID,
			Status:    rec.Status,
			Category:  rec.Category,
			CreatedAt: rec.CreatedAt,
		}
		if rec.Result != nil {
			sum.Winner = string(rec.Result.Winner)
		}
		out = append(out, sum)
	}
	// Свежие первыми, как и в SQL-варианте.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, id string, _ int, ev game.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = append(s.events[id], ev)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, id string) ([]game.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs, ok := s.events[id]
	if !ok {
		if _, gameExists := s.games[id]; !gameExists {
			return nil, ErrNotFound
		}
		return nil, nil
	}
	out := make([]game.Event, len(evs))
	copy(out, evs)
	return out, nil
}

func (s *MemoryStore) Close() {}
