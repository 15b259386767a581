package game

import "imposter-server/internal/schemas"

// ClueRecord - полная запись одной подсказки для аудита партии.
// Публичная проекция (PublicClue в prompts) содержит только Round/PlayerID/Clue.
type ClueRecord struct {
	Round      int                `json:"round"`
	PlayerID   string             `json:"player_id"`
	Role       schemas.PlayerRole `json:"role"`
	Model      string             `json:"model"`
	Clue       string             `json:"clue"`
	Thinking   string             `json:"thinking"`
	Confidence int                `json:"confidence"`

	WordHypothesis string `json:"word_hypothesis,omitempty"`
	Violation      string `json:"violation,omitempty"`
}

// VoteRecord - один голос в последовательном под-раунде голосования.
type VoteRecord struct {
	VotingRound int    `json:"voting_round"`
	PlayerID    string `json:"player_id"`
	Target      string `json:"target"`
	Thinking    string `json:"thinking"`
	Reasoning   string `json:"reasoning"`
	Confidence  int    `json:"confidence"`
	Corrected   bool   `json:"corrected,omitempty"`
	// Forced - голос подставлен движком в мягком режиме после двух
	// нелегальных попыток игрока.
	Forced bool `json:"forced,omitempty"`
}

// Elimination - результат одного под-раунда голосования.
type Elimination struct {
	VotingRound int                `json:"voting_round"`
	PlayerID    string             `json:"player_id"`
	Role        schemas.PlayerRole `json:"role"`
	VoteCounts  map[string]int     `json:"vote_counts"`
	TieBroken   bool               `json:"tie_broken,omitempty"`
}

// Winner - победившая сторона партии.
type Winner string

const (
	WinnerImposters    Winner = "imposters"
	WinnerNonImposters Winner = "non_imposters"
	// WinnerNone - партия прервана до определения победителя
	// (спойлер слова или внешний сбой).
	WinnerNone Winner = "none"
)

// GameResult - итог партии и её полный аудиторский след.
type GameResult struct {
	GameID       string `json:"game_id"`
	Word         string `json:"word"`
	Category     string `json:"category"`
	Winner       Winner `json:"winner"`
	Reason       string `json:"reason"`
	TotalRounds  int    `json:"total_rounds"`
	VotingRounds int    `json:"voting_rounds"`
	// DetectionAccuracy - доля настоящих импостеров, попавших в выбывшие.
	DetectionAccuracy float64 `json:"detection_accuracy"`

	Imposters     []string `json:"imposters"`
	Survivors     []string `json:"survivors"`
	EliminatedIDs []string `json:"eliminated,omitempty"`

	Clues        []ClueRecord  `json:"clues"`
	Votes        []VoteRecord  `json:"votes"`
	Eliminations []Elimination `json:"eliminations"`
}
