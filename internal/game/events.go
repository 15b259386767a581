package game

import "time"

// EventType перечисляет типы событий, которые движок публикует по ходу партии.
type EventType string

const (
	EventGameStart        EventType = "game_start"
	EventRoundStart       EventType = "round_start"
	EventPlayerThinking   EventType = "player_thinking"
	EventClue             EventType = "clue"
	EventValidationError  EventType = "validation_error"
	EventInstantReveal    EventType = "instant_reveal"
	EventRoundEnd         EventType = "round_end"
	EventDiscussion       EventType = "discussion"
	EventVotingStart      EventType = "voting_start"
	EventVotingRoundStart EventType = "voting_round_start"
	EventVote             EventType = "vote"
	EventElimination      EventType = "elimination"
	EventGameComplete     EventType = "game_complete"
	EventError            EventType = "error"
)

// Event - одно наблюдаемое событие партии. Поля заполняются по типу события,
// неиспользуемые остаются пустыми и не сериализуются.
type Event struct {
	Type      EventType `json:"type"`
	GameID    string    `json:"game_id"`
	Timestamp time.Time `json:"timestamp"`

	Round       int    `json:"round,omitempty"`
	VotingRound int    `json:"voting_round,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	Role        string `json:"role,omitempty"`
	Model       string `json:"model,omitempty"`

	Clue       string `json:"clue,omitempty"`
	Target     string `json:"target,omitempty"`
	Thinking   string `json:"thinking,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
	Statement  string `json:"statement,omitempty"`
	Confidence int    `json:"confidence,omitempty"`

	Violation string `json:"violation,omitempty"`
	Message   string `json:"message,omitempty"`
	Forced    bool   `json:"forced,omitempty"`

	Word     string      `json:"word,omitempty"`
	Category string      `json:"category,omitempty"`
	Winner   string      `json:"winner,omitempty"`
	Result   *GameResult `json:"result,omitempty"`
}

// Sink принимает события движка. Реализации не должны блокироваться надолго:
// движок вызывает их синхронно между ходами.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc адаптирует функцию к интерфейсу Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// MultiSink рассылает событие всем вложенным приёмникам по порядку.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}
