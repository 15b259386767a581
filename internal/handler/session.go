package handler

import (
	"sync"

	"imposter-server/internal/game"
)

// Compile-time check
var _ game.Sink = (*Session)(nil)

// Session транслирует события одной идущей партии подписчикам SSE.
// Поздний подписчик получает весь накопленный лог и дальше живой поток,
// поэтому повествование всегда целое, с какого бы момента зритель ни пришёл.
type Session struct {
	GameID string

	mu      sync.Mutex
	backlog []game.Event
	subs    map[chan game.Event]struct{}
	closed  bool
}

func NewSession(gameID string) *Session {
	return &Session{
		GameID: gameID,
		subs:   make(map[chan game.Event]struct{}),
	}
}

// Emit добавляет событие в лог и рассылает подписчикам. Медленный подписчик
// событие теряет из живого потока, но полный лог остаётся в хранилище.
func (s *Session) Emit(ev game.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.backlog = append(s.backlog, ev)
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe возвращает снимок накопленного лога и канал живых событий.
// Отписка обязательна, иначе канал протечёт.
func (s *Session) Subscribe() ([]game.Event, <-chan game.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay := make([]game.Event, len(s.backlog))
	copy(replay, s.backlog)

	ch := make(chan game.Event, 64)
	if s.closed {
		close(ch)
		return replay, ch, func() {}
	}
	s.subs[ch] = struct{}{}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return replay, ch, cancel
}

// Close завершает сессию: все каналы подписчиков закрываются.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan game.Event]struct{})
}

// SessionRegistry хранит сессии идущих партий.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

func (r *SessionRegistry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.GameID] = s
}

func (r *SessionRegistry) Get(gameID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[gameID]
	return s, ok
}

func (r *SessionRegistry) Remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, gameID)
}
