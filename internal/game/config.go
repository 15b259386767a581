package game

import (
	"fmt"
	"math/rand"
	"sort"

	"imposter-server/internal/schemas"
)

// ModelStrategy определяет, как конфиг назначает модели игрокам.
type ModelStrategy string

const (
	// StrategySingle - одна модель для всех игроков.
	StrategySingle ModelStrategy = "single"
	// StrategyMixed - пул моделей строится из распределения модель->число,
	// добивается моделью по умолчанию, усекается до числа игроков,
	// перемешивается и раздаётся один к одному.
	StrategyMixed ModelStrategy = "mixed"
	// StrategyRoleBased - импостеры получают ImposterModel, остальные Model.
	StrategyRoleBased ModelStrategy = "role_based"
)

// TiePolicy определяет разрешение ничьей при подсчёте голосов.
type TiePolicy string

const (
	// TieRandom - случайный выбор среди лидеров (поведение по умолчанию).
	TieRandom TiePolicy = "random"
	// TieFirst - детерминированный выбор первого лидера в порядке игроков.
	TieFirst TiePolicy = "first"
)

// Config - полная конфигурация одной партии. Валидируется один раз перед
// стартом движка, дальше считается неизменной.
type Config struct {
	GameID       string `json:"game_id"`
	Word         string `json:"word"`
	Category     string `json:"category"`
	NumPlayers   int    `json:"num_players"`
	NumImposters int    `json:"num_imposters"`
	ClueRounds   int    `json:"clue_rounds"`
	VotingRounds int    `json:"voting_rounds"`

	Strategy          ModelStrategy  `json:"model_strategy"`
	Model             string         `json:"model"`
	ModelDistribution map[string]int `json:"model_distribution,omitempty"`
	ImposterModel     string         `json:"imposter_model,omitempty"`

	TiePolicy        TiePolicy `json:"tie_policy"`
	LenientVotes     bool      `json:"lenient_votes"`
	EnableDiscussion bool      `json:"enable_discussion"`

	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Validate проверяет согласованность конфигурации партии.
func (c *Config) Validate() error {
	if c.Word == "" {
		return fmt.Errorf("%w: empty secret word", ErrInvalidConfig)
	}
	if c.Category == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidConfig)
	}
	if c.NumPlayers < 3 {
		return fmt.Errorf("%w: need at least 3 players, got %d", ErrInvalidConfig, c.NumPlayers)
	}
	if c.NumImposters < 1 || c.NumImposters >= c.NumPlayers-1 {
		return fmt.Errorf("%w: %d imposters with %d players", ErrInvalidConfig, c.NumImposters, c.NumPlayers)
	}
	if c.ClueRounds < 1 {
		return fmt.Errorf("%w: clue_rounds must be positive, got %d", ErrInvalidConfig, c.ClueRounds)
	}
	if c.VotingRounds < 1 || c.VotingRounds >= c.NumPlayers {
		return fmt.Errorf("%w: voting_rounds must be in [1,%d), got %d",
			ErrInvalidConfig, c.NumPlayers, c.VotingRounds)
	}

	switch c.Strategy {
	case "", StrategySingle:
		if c.Model == "" {
			return fmt.Errorf("%w: single strategy requires a model", ErrInvalidConfig)
		}
	case StrategyMixed:
		if c.Model == "" {
			return fmt.Errorf("%w: mixed strategy requires a default model", ErrInvalidConfig)
		}
		for m, n := range c.ModelDistribution {
			if m == "" || n < 0 {
				return fmt.Errorf("%w: bad model distribution entry %q=%d", ErrInvalidConfig, m, n)
			}
		}
	case StrategyRoleBased:
		if c.Model == "" || c.ImposterModel == "" {
			return fmt.Errorf("%w: role_based strategy requires model and imposter_model", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown model strategy %q", ErrInvalidConfig, c.Strategy)
	}

	switch c.TiePolicy {
	case "", TieRandom, TieFirst:
	default:
		return fmt.Errorf("%w: unknown tie policy %q", ErrInvalidConfig, c.TiePolicy)
	}
	return nil
}

// assignModels раздаёт модели игрокам согласно стратегии. Для mixed пул
// строится из распределения в отсортированном порядке ключей, добивается
// моделью по умолчанию и перемешивается переданным rng, поэтому раздача
// воспроизводима при фиксированном источнике случайности.
func (c *Config) assignModels(roles []schemas.PlayerRole, rng *rand.Rand) []string {
	models := make([]string, len(roles))
	switch c.Strategy {
	case StrategyMixed:
		pool := make([]string, 0, len(roles))
		keys := make([]string, 0, len(c.ModelDistribution))
		for m := range c.ModelDistribution {
			keys = append(keys, m)
		}
		sort.Strings(keys)
		for _, m := range keys {
			for i := 0; i < c.ModelDistribution[m] && len(pool) < len(roles); i++ {
				pool = append(pool, m)
			}
		}
		for len(pool) < len(roles) {
			pool = append(pool, c.Model)
		}
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		copy(models, pool)
	case StrategyRoleBased:
		for i, role := range roles {
			if role.IsImposter() {
				models[i] = c.ImposterModel
			} else {
				models[i] = c.Model
			}
		}
	default:
		for i := range models {
			models[i] = c.Model
		}
	}
	return models
}

func (c *Config) tiePolicy() TiePolicy {
	if c.TiePolicy == "" {
		return TieRandom
	}
	return c.TiePolicy
}
