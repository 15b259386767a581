package game_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imposter-server/internal/game"
	"imposter-server/internal/schemas"
)

// stubCaller - скриптуемая заглушка модельного транспорта. Поведение задаётся
// после создания движка, когда тест уже знает раздачу ролей.
type stubCaller struct {
	clueFn   func(req schemas.Request) (schemas.ClueResponse, error)
	voteFn   func(req schemas.Request) (schemas.SingleVoteResponse, error)
	remarkFn func(req schemas.Request) (schemas.DiscussionResponse, error)
}

func (s *stubCaller) Clue(_ context.Context, req schemas.Request) (schemas.ClueResponse, error) {
	return s.clueFn(req)
}

func (s *stubCaller) Vote(_ context.Context, req schemas.Request) (schemas.SingleVoteResponse, error) {
	return s.voteFn(req)
}

func (s *stubCaller) Remark(_ context.Context, req schemas.Request) (schemas.DiscussionResponse, error) {
	return s.remarkFn(req)
}

// playerOf извлекает id игрока из его системного промпта.
func playerOf(req schemas.Request) string {
	rest := strings.TrimPrefix(req.Messages[0].Content, "You are ")
	return strings.SplitN(rest, " ", 2)[0]
}

func lastMessage(req schemas.Request) string {
	return req.Messages[len(req.Messages)-1].Content
}

// collectSink копит события в срез в порядке публикации.
type collectSink struct{ events []game.Event }

func (c *collectSink) Emit(ev game.Event) { c.events = append(c.events, ev) }

func (c *collectSink) typesSeen() map[game.EventType]int {
	out := make(map[game.EventType]int)
	for _, ev := range c.events {
		out[ev.Type]++
	}
	return out
}

func baseConfig() game.Config {
	return game.Config{
		GameID:       "test-game",
		Word:         "beach",
		Category:     "nature",
		NumPlayers:   6,
		NumImposters: 2,
		ClueRounds:   3,
		VotingRounds: 2,
		Strategy:     game.StrategySingle,
		Model:        "test-model",
		TiePolicy:    game.TieFirst,
	}
}

func splitRoles(eng *game.Engine) (imposters, civilians []string) {
	for _, p := range eng.Players() {
		if p.Role.IsImposter() {
			imposters = append(imposters, p.ID)
		} else {
			civilians = append(civilians, p.ID)
		}
	}
	return imposters, civilians
}

// uniqueClues выдаёт бесконечную последовательность безобидных подсказок -
// без дубликатов и пересечений со словом "beach".
func uniqueClues() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("hint%02d", n)
	}
}

// TestEngineInstantRevealScenario - сквозной сценарий: 6 игроков, 2 импостера,
// один импостер случайно говорит "beach" во втором раунде. Он мгновенно
// выбывает, партия продолжается и доходит до голосования с пятью активными.
func TestEngineInstantRevealScenario(t *testing.T) {
	stub := &stubCaller{}
	sink := &collectSink{}
	eng, err := game.NewEngine(baseConfig(), stub, sink, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	imposters, civilians := splitRoles(eng)
	require.Len(t, imposters, 2)
	require.Len(t, civilians, 4)
	revealed, hidden := imposters[0], imposters[1]

	next := uniqueClues()
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		if playerOf(req) == revealed && strings.Contains(lastMessage(req), "=== ROUND 2 ===") {
			return schemas.ClueResponse{Thinking: "oops", Clue: "beach", Confidence: 90}, nil
		}
		return schemas.ClueResponse{Thinking: "ok", Clue: next(), Confidence: 50}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		// Все голосуют против оставшегося импостера, он сам - против мирного.
		target := hidden
		if playerOf(req) == hidden {
			target = civilians[0]
		}
		return schemas.SingleVoteResponse{Target: target, Reasoning: "sus", Confidence: 70}, nil
	}

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, game.WinnerNonImposters, result.Winner)
	assert.Equal(t, game.ReasonAllImpostersOut, result.Reason)
	assert.Equal(t, 3, result.TotalRounds)
	assert.Equal(t, 1.0, result.DetectionAccuracy)
	assert.ElementsMatch(t, []string{revealed, hidden}, result.EliminatedIDs)

	// Голосование шло с пятью активными: пять голосов в первом под-раунде.
	require.Len(t, result.Votes, 5)
	require.Len(t, result.Eliminations, 1)
	assert.Equal(t, hidden, result.Eliminations[0].PlayerID)

	// Проваленная подсказка не попадает в публичный лог: секретное слово
	// остаётся только в событиях валидации и разоблачения.
	for _, c := range result.Clues {
		assert.NotEqual(t, "beach", strings.ToLower(c.Clue))
		assert.NotEqual(t, game.ViolationInstantReveal, c.Violation)
	}

	seen := sink.typesSeen()
	assert.Equal(t, 1, seen[game.EventInstantReveal])
	assert.GreaterOrEqual(t, seen[game.EventValidationError], 1)
	assert.Equal(t, 1, seen[game.EventVotingStart])
	assert.Equal(t, 5, seen[game.EventVote])
	assert.Equal(t, 1, seen[game.EventGameComplete])
}

// TestInstantRevealKeepsWordOutOfContexts: импостер, случайно сказавший слово,
// выбывает, но само слово не утекает в публичный лог - выживший импостер
// не должен увидеть его ни в одном своём запросе.
func TestInstantRevealKeepsWordOutOfContexts(t *testing.T) {
	cfg := baseConfig()
	cfg.ClueRounds = 2
	cfg.VotingRounds = 1

	stub := &stubCaller{}
	eng, err := game.NewEngine(cfg, stub, nil, nil, rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	imposters, civilians := splitRoles(eng)
	revealed, hidden := imposters[0], imposters[1]

	next := uniqueClues()
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		if playerOf(req) == revealed && strings.Contains(lastMessage(req), "=== ROUND 1 ===") {
			return schemas.ClueResponse{Clue: "beach", Confidence: 95}, nil
		}
		return schemas.ClueResponse{Clue: next(), Confidence: 50}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		target := hidden
		if playerOf(req) == hidden {
			target = civilians[0]
		}
		return schemas.SingleVoteResponse{Target: target, Confidence: 60}, nil
	}

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, game.WinnerNonImposters, result.Winner)

	for _, p := range eng.Players() {
		if p.ID != hidden {
			continue
		}
		for _, msg := range p.History() {
			assert.NotContains(t, strings.ToLower(msg.Content), "beach",
				"surviving imposter %s must not learn the word from the reveal", p.ID)
		}
	}
}

// TestInstantRevealCanHandImpostersParity: выбывание импостера пересчитывает
// победителя честно - при 5 игроках с 3 импостерами разоблачение одного
// оставляет паритет 2>=2, и побеждают импостеры, а не "все импостеры выбыли".
func TestInstantRevealCanHandImpostersParity(t *testing.T) {
	cfg := baseConfig()
	cfg.NumPlayers = 5
	cfg.NumImposters = 3
	cfg.ClueRounds = 1
	cfg.VotingRounds = 1

	stub := &stubCaller{}
	sink := &collectSink{}
	eng, err := game.NewEngine(cfg, stub, sink, nil, rand.New(rand.NewSource(12)))
	require.NoError(t, err)

	imposters, _ := splitRoles(eng)
	require.Len(t, imposters, 3)
	revealed := imposters[0]

	next := uniqueClues()
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		if playerOf(req) == revealed {
			return schemas.ClueResponse{Clue: "beach", Confidence: 80}, nil
		}
		return schemas.ClueResponse{Clue: next(), Confidence: 50}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		t.Fatal("voting must never run after the clue phase decides the game")
		return schemas.SingleVoteResponse{}, nil
	}

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, game.WinnerImposters, result.Winner)
	assert.Equal(t, game.ReasonImpostersMajority, result.Reason)
	assert.Equal(t, []string{revealed}, result.EliminatedIDs)
	assert.Zero(t, sink.typesSeen()[game.EventVotingStart])
}

// TestEngineWordSpoiled: знающий слово игрок произносит его во втором раунде.
// Партия останавливается на этом раунде, голосование не запускается,
// total_rounds равен раунду срыва, а не настроенному максимуму.
func TestEngineWordSpoiled(t *testing.T) {
	stub := &stubCaller{}
	sink := &collectSink{}
	eng, err := game.NewEngine(baseConfig(), stub, sink, nil, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	_, civilians := splitRoles(eng)
	spoiler := civilians[0]

	next := uniqueClues()
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		if playerOf(req) == spoiler && strings.Contains(lastMessage(req), "=== ROUND 2 ===") {
			return schemas.ClueResponse{Clue: "Beach", Confidence: 99}, nil
		}
		return schemas.ClueResponse{Clue: next(), Confidence: 50}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		t.Fatal("voting must never run after a spoiled word")
		return schemas.SingleVoteResponse{}, nil
	}

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, game.WinnerNone, result.Winner)
	assert.Equal(t, game.ReasonWordSpoiled, result.Reason)
	assert.Equal(t, 2, result.TotalRounds)
	assert.Empty(t, result.Votes)
	assert.Empty(t, result.Eliminations)
	assert.Zero(t, sink.typesSeen()[game.EventVotingStart])

	// Сорвавшая партию подсказка тоже не записывается: в аудите от неё
	// остаётся только событие валидации.
	for _, c := range result.Clues {
		assert.NotEqual(t, "beach", strings.ToLower(c.Clue))
	}
	assert.GreaterOrEqual(t, sink.typesSeen()[game.EventValidationError], 1)
}

// TestEngineSequentialTurns: второй ходящий обязан видеть подсказку первого
// в своём запросе - ходы строго последовательные, не параллельные.
func TestEngineSequentialTurns(t *testing.T) {
	cfg := baseConfig()
	cfg.NumPlayers = 3
	cfg.NumImposters = 1
	cfg.ClueRounds = 1
	cfg.VotingRounds = 1

	stub := &stubCaller{}
	eng, err := game.NewEngine(cfg, stub, nil, nil, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	var secondTurnPayload string
	calls := 0
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		calls++
		if calls == 1 {
			return schemas.ClueResponse{Clue: "ocean", Confidence: 60}, nil
		}
		if calls == 2 {
			secondTurnPayload = lastMessage(req)
		}
		return schemas.ClueResponse{Clue: fmt.Sprintf("hint%d", calls), Confidence: 60}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		target := "Player_1"
		if playerOf(req) == "Player_1" {
			target = "Player_2"
		}
		return schemas.SingleVoteResponse{Target: target, Confidence: 50}, nil
	}

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, secondTurnPayload, `Player_1: "ocean"`)
}

// TestEngineVoteCorrection: нелегальный голос получает ровно один
// корректирующий репромпт.
func TestEngineVoteCorrection(t *testing.T) {
	newGame := func(lenient bool, badVoteAlways bool) (*game.Engine, *stubCaller, error) {
		cfg := baseConfig()
		cfg.NumPlayers = 4
		cfg.NumImposters = 1
		cfg.ClueRounds = 1
		cfg.VotingRounds = 1
		cfg.LenientVotes = lenient

		stub := &stubCaller{}
		eng, err := game.NewEngine(cfg, stub, nil, nil, rand.New(rand.NewSource(4)))
		if err != nil {
			return nil, nil, err
		}

		imposters, _ := splitRoles(eng)
		imposter := imposters[0]
		next := uniqueClues()
		stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
			return schemas.ClueResponse{Clue: next(), Confidence: 50}, nil
		}
		firstVoter := true
		stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
			corrective := strings.Contains(lastMessage(req), "is not valid")
			if firstVoter && playerOf(req) != imposter {
				if !corrective {
					return schemas.SingleVoteResponse{Target: "Ghost", Confidence: 10}, nil
				}
				firstVoter = false
				if badVoteAlways {
					return schemas.SingleVoteResponse{Target: "Ghost again", Confidence: 10}, nil
				}
				return schemas.SingleVoteResponse{Target: imposter, Reasoning: "fixed", Confidence: 80}, nil
			}
			target := imposter
			if playerOf(req) == imposter {
				target = "Player_1"
				if imposter == "Player_1" {
					target = "Player_2"
				}
			}
			return schemas.SingleVoteResponse{Target: target, Confidence: 80}, nil
		}
		return eng, stub, nil
	}

	t.Run("corrected vote is accepted and marked", func(t *testing.T) {
		eng, _, err := newGame(false, false)
		require.NoError(t, err)

		result, err := eng.Run(context.Background())
		require.NoError(t, err)

		require.NotEmpty(t, result.Votes)
		var corrected int
		for _, v := range result.Votes {
			if v.Corrected {
				corrected++
			}
		}
		assert.Equal(t, 1, corrected)
		assert.Equal(t, game.WinnerNonImposters, result.Winner)
	})

	t.Run("repeat invalid vote is fatal in strict mode", func(t *testing.T) {
		eng, _, err := newGame(false, true)
		require.NoError(t, err)

		result, err := eng.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, game.ErrInvalidVote))

		var engineErr *game.EngineError
		require.True(t, errors.As(err, &engineErr))
		assert.Equal(t, game.PhaseVoting, engineErr.Phase)
		assert.NotEmpty(t, engineErr.PlayerID)

		require.NotNil(t, result)
		assert.Equal(t, game.WinnerNone, result.Winner)
		assert.Equal(t, game.ReasonInvalidVote, result.Reason)
	})

	t.Run("repeat invalid vote is substituted in lenient mode", func(t *testing.T) {
		eng, _, err := newGame(true, true)
		require.NoError(t, err)

		result, err := eng.Run(context.Background())
		require.NoError(t, err)
		// Все четверо проголосовали, подставленный голос помечен.
		require.Len(t, result.Votes, 4)
		var forced []game.VoteRecord
		for _, v := range result.Votes {
			if v.Forced {
				forced = append(forced, v)
			}
		}
		require.Len(t, forced, 1)
		assert.True(t, forced[0].Corrected)
		assert.NotEmpty(t, forced[0].Target)
	})
}

// TestEngineModelFailureIsFatal: исчерпанный транспорт останавливает партию
// со структурной ошибкой, указывающей фазу и игрока.
func TestEngineModelFailureIsFatal(t *testing.T) {
	stub := &stubCaller{}
	sink := &collectSink{}
	eng, err := game.NewEngine(baseConfig(), stub, sink, nil, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		return schemas.ClueResponse{}, errors.New("all fallbacks exhausted")
	}

	result, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, game.ErrModelFailure))

	var engineErr *game.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, game.PhaseClues, engineErr.Phase)
	assert.Equal(t, 1, engineErr.Round)
	assert.Equal(t, "Player_1", engineErr.PlayerID)

	assert.Equal(t, game.WinnerNone, result.Winner)
	assert.Equal(t, game.ReasonModelFailure, result.Reason)
	assert.Equal(t, 1, sink.typesSeen()[game.EventError])
}

func TestEngineContextCancellation(t *testing.T) {
	stub := &stubCaller{}
	eng, err := game.NewEngine(baseConfig(), stub, nil, nil, rand.New(rand.NewSource(6)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := eng.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, game.ErrGameCancelled))
	assert.Equal(t, game.ReasonCancelled, result.Reason)
}

// TestEngineRejectsBadConfig: конфигурация отклоняется до единого внешнего
// вызова - заглушка без поведения не должна быть тронута.
func TestEngineRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*game.Config)
	}{
		{"too many imposters", func(c *game.Config) { c.NumImposters = c.NumPlayers - 1 }},
		{"zero imposters", func(c *game.Config) { c.NumImposters = 0 }},
		{"too few players", func(c *game.Config) { c.NumPlayers = 2; c.NumImposters = 1 }},
		{"empty word", func(c *game.Config) { c.Word = "" }},
		{"voting rounds exceed players", func(c *game.Config) { c.VotingRounds = c.NumPlayers }},
		{"unknown strategy", func(c *game.Config) { c.Strategy = "alchemy" }},
		{"unknown tie policy", func(c *game.Config) { c.TiePolicy = "coin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			_, err := game.NewEngine(cfg, &stubCaller{}, nil, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, game.ErrInvalidConfig))
		})
	}
}

// TestImposterContextNeverSeesWord: секретное слово не попадает в приватную
// историю импостера иначе как через публичный лог подсказок. В этой партии
// слово никто не произносит - значит, в истории импостера его нет вовсе.
func TestImposterContextNeverSeesWord(t *testing.T) {
	cfg := baseConfig()
	cfg.NumPlayers = 4
	cfg.NumImposters = 1
	cfg.ClueRounds = 2
	cfg.VotingRounds = 1

	stub := &stubCaller{}
	eng, err := game.NewEngine(cfg, stub, nil, nil, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	imposters, civilians := splitRoles(eng)
	imposter := imposters[0]

	next := uniqueClues()
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		return schemas.ClueResponse{Clue: next(), Confidence: 50}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		target := imposter
		if playerOf(req) == imposter {
			target = civilians[0]
		}
		return schemas.SingleVoteResponse{Target: target, Confidence: 60}, nil
	}

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	for _, p := range eng.Players() {
		var all strings.Builder
		for _, msg := range p.History() {
			all.WriteString(strings.ToLower(msg.Content))
			all.WriteString("\n")
		}
		if p.Role.IsImposter() {
			assert.NotContains(t, all.String(), "beach",
				"imposter %s must never see the secret word", p.ID)
		} else {
			assert.Contains(t, all.String(), "beach")
		}
	}
}

// TestEngineMixedModelAssignment: пул mixed-стратегии строится из
// распределения, добивается моделью по умолчанию и раздаётся всем игрокам.
func TestEngineMixedModelAssignment(t *testing.T) {
	cfg := baseConfig()
	cfg.NumPlayers = 4
	cfg.NumImposters = 1
	cfg.Strategy = game.StrategyMixed
	cfg.Model = "fallback-model"
	cfg.ModelDistribution = map[string]int{"fancy-model": 2}
	cfg.VotingRounds = 1

	eng, err := game.NewEngine(cfg, &stubCaller{}, nil, nil, rand.New(rand.NewSource(8)))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, p := range eng.Players() {
		counts[p.Model]++
	}
	assert.Equal(t, map[string]int{"fancy-model": 2, "fallback-model": 2}, counts)
}

// TestEngineDiscussionPhase: при включённом обсуждении каждый активный игрок
// делает по одной реплике после каждого раунда подсказок.
func TestEngineDiscussionPhase(t *testing.T) {
	cfg := baseConfig()
	cfg.NumPlayers = 4
	cfg.NumImposters = 1
	cfg.ClueRounds = 2
	cfg.VotingRounds = 1
	cfg.EnableDiscussion = true

	stub := &stubCaller{}
	sink := &collectSink{}
	eng, err := game.NewEngine(cfg, stub, sink, nil, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	imposters, civilians := splitRoles(eng)
	next := uniqueClues()
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		return schemas.ClueResponse{Clue: next(), Confidence: 50}, nil
	}
	stub.remarkFn = func(req schemas.Request) (schemas.DiscussionResponse, error) {
		return schemas.DiscussionResponse{Statement: "someone is off", Confidence: 40}, nil
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		target := imposters[0]
		if playerOf(req) == imposters[0] {
			target = civilians[0]
		}
		return schemas.SingleVoteResponse{Target: target, Confidence: 60}, nil
	}

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	// 2 раунда по 4 активных игрока.
	assert.Equal(t, 8, sink.typesSeen()[game.EventDiscussion])
}

// TestEngineRejectedClueSkipsTurn: дубликат отбрасывается без записи,
// в аудите остаётся только событие валидации.
func TestEngineRejectedClueSkipsTurn(t *testing.T) {
	cfg := baseConfig()
	cfg.NumPlayers = 4
	cfg.NumImposters = 1
	cfg.ClueRounds = 1
	cfg.VotingRounds = 1

	stub := &stubCaller{}
	sink := &collectSink{}
	eng, err := game.NewEngine(cfg, stub, sink, nil, rand.New(rand.NewSource(10)))
	require.NoError(t, err)

	imposters, civilians := splitRoles(eng)
	calls := 0
	stub.clueFn = func(req schemas.Request) (schemas.ClueResponse, error) {
		calls++
		switch calls {
		case 1:
			return schemas.ClueResponse{Clue: "sandy", Confidence: 50}, nil
		case 2:
			// Повтор подсказки первого игрока с другим регистром.
			return schemas.ClueResponse{Clue: "Sandy", Confidence: 30}, nil
		default:
			return schemas.ClueResponse{Clue: fmt.Sprintf("hint%d", calls), Confidence: 50}, nil
		}
	}
	stub.voteFn = func(req schemas.Request) (schemas.SingleVoteResponse, error) {
		target := imposters[0]
		if playerOf(req) == imposters[0] {
			target = civilians[0]
		}
		return schemas.SingleVoteResponse{Target: target, Confidence: 60}, nil
	}

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	// Три записи подсказок вместо четырёх: ход с дубликатом пропал.
	assert.Len(t, result.Clues, 3)
	for _, c := range result.Clues {
		assert.NotEqual(t, game.ViolationDuplicate, c.Violation)
	}
	assert.GreaterOrEqual(t, sink.typesSeen()[game.EventValidationError], 1)
}
