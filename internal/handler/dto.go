package handler

import (
	"imposter-server/internal/game"
	"imposter-server/internal/history"
)

// CreateGameRequest - тело запроса на создание партии. Модельные поля
// опциональны: пустая стратегия означает single с моделью по умолчанию.
type CreateGameRequest struct {
	Word         string `json:"word" binding:"required"`
	Category     string `json:"category" binding:"required"`
	NumPlayers   int    `json:"num_players" binding:"required,min=3"`
	NumImposters int    `json:"num_imposters" binding:"required,min=1"`
	ClueRounds   int    `json:"clue_rounds" binding:"required,min=1"`
	VotingRounds int    `json:"voting_rounds,omitempty"`

	ModelStrategy     string         `json:"model_strategy,omitempty"`
	Model             string         `json:"model,omitempty"`
	ModelDistribution map[string]int `json:"model_distribution,omitempty"`
	ImposterModel     string         `json:"imposter_model,omitempty"`

	TiePolicy        string  `json:"tie_policy,omitempty"`
	LenientVotes     bool    `json:"lenient_votes,omitempty"`
	EnableDiscussion bool    `json:"enable_discussion,omitempty"`
	Temperature      float32 `json:"temperature,omitempty"`
}

// toConfig собирает конфигурацию партии, подставляя значения по умолчанию
// сервера там, где клиент промолчал.
func (r *CreateGameRequest) toConfig(gameID, defaultModel string, defaultMaxTokens int) game.Config {
	model := r.Model
	if model == "" {
		model = defaultModel
	}
	temperature := r.Temperature
	if temperature == 0 {
		temperature = 0.8
	}
	return game.Config{
		GameID:            gameID,
		Word:              r.Word,
		Category:          r.Category,
		NumPlayers:        r.NumPlayers,
		NumImposters:      r.NumImposters,
		ClueRounds:        r.ClueRounds,
		VotingRounds:      r.VotingRounds,
		Strategy:          game.ModelStrategy(r.ModelStrategy),
		Model:             model,
		ModelDistribution: r.ModelDistribution,
		ImposterModel:     r.ImposterModel,
		TiePolicy:         game.TiePolicy(r.TiePolicy),
		LenientVotes:      r.LenientVotes,
		EnableDiscussion:  r.EnableDiscussion,
		Temperature:       temperature,
		MaxTokens:         defaultMaxTokens,
	}
}

// CreateGameResponse - ответ на создание партии.
type CreateGameResponse struct {
	GameID    string `json:"game_id"`
	StreamURL string `json:"stream_url"`
	Status    string `json:"status"`
}

// GameHistoryResponse - полная хронология партии.
type GameHistoryResponse struct {
	Game   *history.GameRecord `json:"game"`
	Events []game.Event        `json:"events"`
}

// ErrorResponse - единый формат ошибок API.
type ErrorResponse struct {
	Error string `json:"error"`
}
