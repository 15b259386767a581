// Консольный наблюдатель: запускает одну партию локально и рисует её ход
// в терминал событие за событием. Удобен для отладки промптов и моделей
// без поднятия HTTP сервера.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"imposter-server/internal/ai"
	"imposter-server/internal/config"
	"imposter-server/internal/game"
	"imposter-server/internal/logger"
)

func main() {
	var (
		word       = flag.String("word", "beach", "секретное слово")
		category   = flag.String("category", "nature", "категория слова")
		players    = flag.Int("players", 6, "число игроков")
		imposters  = flag.Int("imposters", 2, "число импостеров")
		rounds     = flag.Int("rounds", 3, "число раундов подсказок")
		votes      = flag.Int("voting-rounds", 0, "число под-раундов голосования (0 - по числу импостеров)")
		model      = flag.String("model", "", "модель (псевдоним или полный id, пусто - из конфигурации)")
		imposterM  = flag.String("imposter-model", "", "модель импостеров (включает стратегию role_based)")
		discussion = flag.Bool("discussion", false, "включить фазу обсуждения")
		lenient    = flag.Bool("lenient", false, "отбрасывать упрямо нелегальные голоса вместо остановки")
		tie        = flag.String("tie", "random", "политика ничьей: random | first")
		seed       = flag.Int64("seed", 0, "seed раздачи ролей (0 - случайный)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("файл .env не найден")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("ошибка загрузки конфигурации")
	}

	zapLog, err := logger.New(logger.Config{Level: "warn", Encoding: "console"})
	if err != nil {
		log.Fatal().Err(err).Msg("ошибка инициализации логгера")
	}

	caller, err := ai.New(cfg, ai.DefaultRegistry(), zapLog)
	if err != nil {
		log.Fatal().Err(err).Msg("ошибка создания AI клиента")
	}

	gameCfg := game.Config{
		GameID:           uuid.NewString(),
		Word:             *word,
		Category:         *category,
		NumPlayers:       *players,
		NumImposters:     *imposters,
		ClueRounds:       *rounds,
		VotingRounds:     *votes,
		Strategy:         game.StrategySingle,
		Model:            cfg.AIDefaultModel,
		TiePolicy:        game.TiePolicy(*tie),
		LenientVotes:     *lenient,
		EnableDiscussion: *discussion,
		Temperature:      0.8,
		MaxTokens:        cfg.AIMaxTokens,
	}
	if *model != "" {
		gameCfg.Model = *model
	}
	if *imposterM != "" {
		gameCfg.Strategy = game.StrategyRoleBased
		gameCfg.ImposterModel = *imposterM
	}

	var rng *rand.Rand
	if *seed != 0 {
		rng = rand.New(rand.NewSource(*seed))
	}

	engine, err := game.NewEngine(gameCfg, caller, game.SinkFunc(render), zapLog, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("ошибка создания партии")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := engine.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("партия сорвалась")
	}
	printResult(result)
}

// render печатает одно событие партии в терминал.
func render(ev game.Event) {
	switch ev.Type {
	case game.EventGameStart:
		log.Info().Str("category", ev.Category).Msg("партия начата")
	case game.EventRoundStart:
		fmt.Printf("\n===== РАУНД %d =====\n", ev.Round)
	case game.EventClue:
		fmt.Printf("  %s: %q (уверенность %d)\n", ev.PlayerID, ev.Clue, ev.Confidence)
	case game.EventValidationError:
		log.Warn().Str("player", ev.PlayerID).Str("violation", ev.Violation).Msg("нарушение правил")
	case game.EventInstantReveal:
		fmt.Printf("  !!! %s сказал слово вслух и выбывает (роль: %s)\n", ev.PlayerID, ev.Role)
	case game.EventDiscussion:
		fmt.Printf("  %s (обсуждение): %s\n", ev.PlayerID, ev.Statement)
	case game.EventVotingStart:
		fmt.Printf("\n===== ГОЛОСОВАНИЕ =====\n")
	case game.EventVotingRoundStart:
		fmt.Printf("\n--- под-раунд %d ---\n", ev.VotingRound)
	case game.EventVote:
		fmt.Printf("  %s -> %s: %s\n", ev.PlayerID, ev.Target, ev.Reasoning)
	case game.EventElimination:
		fmt.Printf("  ВЫБЫВАЕТ %s (роль: %s)\n", ev.PlayerID, ev.Role)
	case game.EventError:
		log.Error().Str("game_id", ev.GameID).Msg(ev.Message)
	}
}

func printResult(result *game.GameResult) {
	fmt.Printf("\n===== ИТОГ =====\n")
	fmt.Printf("Слово: %q (категория %q)\n", result.Word, result.Category)
	fmt.Printf("Победитель: %s (%s)\n", result.Winner, result.Reason)
	fmt.Printf("Импостеры: %s\n", strings.Join(result.Imposters, ", "))
	fmt.Printf("Выжили: %s\n", strings.Join(result.Survivors, ", "))
	fmt.Printf("Точность разоблачения: %.0f%%\n", result.DetectionAccuracy*100)
	fmt.Printf("Раундов сыграно: %d, выбываний голосованием: %d\n",
		result.TotalRounds, len(result.Eliminations))
}
