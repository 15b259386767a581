// Package game реализует движок партии "Импостер": конечный автомат фаз,
// последовательные ходы подсказок с трёхуровневой проверкой, K под-раундов
// голосования с корректирующим репромптом и детерминированный аудиторский
// след. Движок однопоточный по дизайну: один Run на партию, все вызовы
// моделей последовательны, потому что каждый игрок видит ходы предыдущих.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"imposter-server/internal/prompts"
	"imposter-server/internal/schemas"
)

// Причины завершения партии в GameResult.Reason.
const (
	ReasonAllImpostersOut   = "all_imposters_eliminated"
	ReasonImpostersMajority = "imposters_reached_parity"
	ReasonImpostersSurvived = "imposters_survived_voting"
	ReasonWordSpoiled       = "word_spoiled"
	ReasonModelFailure      = "model_failure"
	ReasonInvalidVote       = "invalid_vote"
	ReasonCancelled         = "cancelled"
)

// ModelCaller выполняет типизированные вызовы моделей-игроков. Реализация
// отвечает за транспорт, ретраи и разбор JSON; движок получает уже
// валидированные структуры.
type ModelCaller interface {
	Clue(ctx context.Context, req schemas.Request) (schemas.ClueResponse, error)
	Vote(ctx context.Context, req schemas.Request) (schemas.SingleVoteResponse, error)
	Remark(ctx context.Context, req schemas.Request) (schemas.DiscussionResponse, error)
}

// Engine проводит одну партию от раздачи ролей до результата.
// Не потокобезопасен: Run вызывается ровно один раз.
type Engine struct {
	cfg    Config
	caller ModelCaller
	sink   Sink
	log    *zap.Logger
	rng    *rand.Rand

	phase   Phase
	round   int
	players []*Player

	clues []ClueRecord
	votes []VoteRecord
	elims []Elimination
}

// NewEngine валидирует конфигурацию и раздаёт роли. sink, log и rng могут
// быть nil: события тогда отбрасываются, логи глушатся, а источник
// случайности засевается от часов. Передача фиксированного rng делает
// партию полностью воспроизводимой.
func NewEngine(cfg Config, caller ModelCaller, sink Sink, log *zap.Logger, rng *rand.Rand) (*Engine, error) {
	if cfg.VotingRounds == 0 {
		// Под-раундов голосования по умолчанию столько же, сколько импостеров.
		cfg.VotingRounds = cfg.NumImposters
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, fmt.Errorf("%w: nil model caller", ErrInvalidConfig)
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	e := &Engine{cfg: cfg, caller: caller, sink: sink, log: log, rng: rng, phase: PhaseSetup}

	roles := make([]schemas.PlayerRole, cfg.NumPlayers)
	for _, idx := range rng.Perm(cfg.NumPlayers)[:cfg.NumImposters] {
		roles[idx] = schemas.RoleImposter
	}
	for i := range roles {
		if roles[i] == "" {
			roles[i] = schemas.RoleNonImposter
		}
	}
	models := cfg.assignModels(roles, rng)
	for i, role := range roles {
		e.players = append(e.players, NewPlayer(i, role, models[i], &e.cfg))
	}
	return e, nil
}

// Players возвращает игроков партии в порядке ходов.
func (e *Engine) Players() []*Player { return e.players }

// Run проводит партию целиком. При фатальной ошибке (сбой модели после всех
// ретраев, отмена контекста, упрямо нелегальный голос в строгом режиме)
// возвращается частичный результат с Winner=none вместе с *EngineError.
func (e *Engine) Run(ctx context.Context) (*GameResult, error) {
	e.log.Info("партия начата",
		zap.String("game_id", e.cfg.GameID),
		zap.String("category", e.cfg.Category),
		zap.Int("players", e.cfg.NumPlayers),
		zap.Int("imposters", e.cfg.NumImposters))

	e.emit(Event{Type: EventGameStart, Category: e.cfg.Category})

	winner, reason := WinnerNone, ""

cluePhase:
	for e.round = 1; e.round <= e.cfg.ClueRounds; e.round++ {
		e.phase = PhaseClues
		e.emit(Event{Type: EventRoundStart, Round: e.round})

		for _, p := range e.players {
			if p.Eliminated {
				continue
			}
			verdict, err := e.clueTurn(ctx, p)
			if err != nil {
				return e.abort(err)
			}
			switch verdict.Severity {
			case SeverityFatal:
				winner, reason = WinnerNone, ReasonWordSpoiled
				break cluePhase
			case SeverityEliminate:
				// Выбывание импостера может решить партию в обе стороны:
				// последний импостер или, наоборот, паритет оставшихся.
				if w := e.winCheck(); w != WinnerNone {
					winner, reason = w, ReasonAllImpostersOut
					if w == WinnerImposters {
						reason = ReasonImpostersMajority
					}
					break cluePhase
				}
			}
		}
		e.emit(Event{Type: EventRoundEnd, Round: e.round})

		if e.cfg.EnableDiscussion {
			if err := e.discussionPhase(ctx); err != nil {
				return e.abort(err)
			}
		}
	}
	if e.round > e.cfg.ClueRounds {
		e.round = e.cfg.ClueRounds
	}

	if winner == WinnerNone && reason == "" {
		var err error
		winner, reason, err = e.votingPhase(ctx)
		if err != nil {
			return e.abort(err)
		}
	}

	e.phase = PhaseReveal
	result := e.buildResult(winner, reason)
	e.phase = PhaseComplete
	e.emit(Event{
		Type:   EventGameComplete,
		Word:   e.cfg.Word,
		Winner: string(winner),
		Result: result,
	})
	e.log.Info("партия завершена",
		zap.String("game_id", e.cfg.GameID),
		zap.String("winner", string(winner)),
		zap.String("reason", reason),
		zap.Int("rounds", result.TotalRounds))
	return result, nil
}

// clueTurn выполняет один ход подсказки: запрос к модели, проверка,
// публикация событий и запись в аудит.
func (e *Engine) clueTurn(ctx context.Context, p *Player) (ClueVerdict, error) {
	if err := ctx.Err(); err != nil {
		return ClueVerdict{}, e.fail(p.ID, fmt.Errorf("%w: %v", ErrGameCancelled, err))
	}

	e.emit(Event{Type: EventPlayerThinking, Round: e.round, PlayerID: p.ID, Model: p.Model})

	resp, err := e.caller.Clue(ctx, p.BuildClueRequest(e.round, e.publicClues()))
	if err != nil {
		e.log.Error("ход подсказки сорвался",
			zap.String("player", p.ID), zap.String("model", p.Model), zap.Error(err))
		return ClueVerdict{}, e.fail(p.ID, fmt.Errorf("%w: %v", ErrModelFailure, err))
	}
	p.RecordResponse(resp)

	verdict := ValidateClue(resp.Clue, e.cfg.Word, p.Role, e.priorClueTexts())

	// Не прошедшая проверку подсказка не публикуется и не записывается:
	// публичный лог и контексты остальных игроков видят только валидные
	// подсказки, в аудите остаются события валидации.
	switch verdict.Severity {
	case SeverityReject:
		e.log.Info("подсказка отброшена",
			zap.String("player", p.ID),
			zap.String("violation", verdict.Violation))
		e.emit(Event{
			Type: EventValidationError, Round: e.round, PlayerID: p.ID,
			Violation: verdict.Violation, Clue: resp.Clue,
		})
		return verdict, nil

	case SeverityFatal:
		e.log.Warn("слово раскрыто знающим игроком, партия испорчена",
			zap.String("player", p.ID), zap.String("clue", resp.Clue))
		e.emit(Event{
			Type: EventValidationError, Round: e.round, PlayerID: p.ID,
			Violation: verdict.Violation, Clue: resp.Clue,
			Message: "a word-knowing player said the secret word",
		})
		return verdict, nil

	case SeverityEliminate:
		p.Eliminated = true
		e.log.Info("импостер угадал слово вслух и мгновенно выбыл",
			zap.String("player", p.ID), zap.String("clue", resp.Clue))
		e.emit(Event{
			Type: EventValidationError, Round: e.round, PlayerID: p.ID,
			Violation: verdict.Violation, Clue: resp.Clue,
		})
		e.emit(Event{
			Type: EventInstantReveal, Round: e.round, PlayerID: p.ID,
			Role: string(p.Role), Violation: verdict.Violation, Clue: resp.Clue,
		})
		return verdict, nil
	}

	e.clues = append(e.clues, ClueRecord{
		Round:          e.round,
		PlayerID:       p.ID,
		Role:           p.Role,
		Model:          p.Model,
		Clue:           resp.Clue,
		Thinking:       resp.Thinking,
		Confidence:     resp.Confidence,
		WordHypothesis: resp.WordHypothesis,
		Violation:      verdict.Violation,
	})
	if verdict.Violation != "" {
		e.emit(Event{
			Type: EventValidationError, Round: e.round, PlayerID: p.ID,
			Violation: verdict.Violation, Clue: resp.Clue,
		})
	}
	e.emit(Event{Type: EventClue, Round: e.round, PlayerID: p.ID,
		Clue: resp.Clue, Thinking: resp.Thinking, Confidence: resp.Confidence})
	return verdict, nil
}

// discussionPhase - опциональный круг коротких публичных реплик после раунда.
func (e *Engine) discussionPhase(ctx context.Context) error {
	e.phase = PhaseDiscussion
	var remarks []prompts.PublicVote
	for _, p := range e.players {
		if p.Eliminated {
			continue
		}
		if err := ctx.Err(); err != nil {
			return e.fail(p.ID, fmt.Errorf("%w: %v", ErrGameCancelled, err))
		}
		resp, err := e.caller.Remark(ctx, p.BuildDiscussionRequest(e.round, e.publicClues(), remarks))
		if err != nil {
			return e.fail(p.ID, fmt.Errorf("%w: %v", ErrModelFailure, err))
		}
		p.RecordResponse(resp)
		remarks = append(remarks, prompts.PublicVote{PlayerID: p.ID, Reasoning: resp.Statement})
		e.emit(Event{Type: EventDiscussion, Round: e.round, PlayerID: p.ID,
			Statement: resp.Statement, Thinking: resp.Thinking, Confidence: resp.Confidence})
	}
	return nil
}

// votingPhase проводит до K последовательных под-раундов голосования.
func (e *Engine) votingPhase(ctx context.Context) (Winner, string, error) {
	e.phase = PhaseVoting
	e.emit(Event{Type: EventVotingStart})

	for vr := 1; vr <= e.cfg.VotingRounds; vr++ {
		e.emit(Event{Type: EventVotingRoundStart, VotingRound: vr})
		e.log.Info("под-раунд голосования начат",
			zap.Int("voting_round", vr), zap.Int("active", len(e.activeIDs())))

		roundVotes, err := e.collectVotes(ctx, vr)
		if err != nil {
			return WinnerNone, "", err
		}

		counts := TallyVotes(roundVotes)
		target, tie := ResolveVote(counts, e.activeIDs(), e.cfg.tiePolicy(), e.rng)
		if target == "" {
			// Каждый активный игрок отдаёт ровно один легальный голос,
			// пустой итог возможен только при пустом составе.
			e.log.Warn("под-раунд без единого голоса", zap.Int("voting_round", vr))
			continue
		}

		victim := e.playerByID(target)
		victim.Eliminated = true
		e.elims = append(e.elims, Elimination{
			VotingRound: vr,
			PlayerID:    victim.ID,
			Role:        victim.Role,
			VoteCounts:  counts,
			TieBroken:   tie,
		})
		e.emit(Event{
			Type: EventElimination, VotingRound: vr,
			PlayerID: victim.ID, Role: string(victim.Role),
		})
		e.log.Info("игрок исключён голосованием",
			zap.Int("voting_round", vr),
			zap.String("player", victim.ID),
			zap.String("role", string(victim.Role)),
			zap.Bool("tie_broken", tie))

		if w := e.winCheck(); w != WinnerNone {
			reason := ReasonAllImpostersOut
			if w == WinnerImposters {
				reason = ReasonImpostersMajority
			}
			return w, reason, nil
		}
	}
	// Все под-раунды пройдены, хотя бы один импостер жив.
	return WinnerImposters, ReasonImpostersSurvived, nil
}

// collectVotes собирает по одному голосу с каждого активного игрока.
// Нелегальный голос получает ровно один корректирующий репромпт; повторно
// нелегальный голос фатален в строгом режиме, а в мягком (LenientVotes)
// заменяется первой легальной целью с пометкой forced.
func (e *Engine) collectVotes(ctx context.Context, vr int) ([]VoteRecord, error) {
	var roundVotes []VoteRecord
	var public []prompts.PublicVote
	eliminated := e.eliminatedIDs()

	for _, p := range e.players {
		if p.Eliminated {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, e.fail(p.ID, fmt.Errorf("%w: %v", ErrGameCancelled, err))
		}

		targets := e.validTargets(p.ID)
		e.emit(Event{Type: EventPlayerThinking, VotingRound: vr, PlayerID: p.ID, Model: p.Model})

		resp, err := e.caller.Vote(ctx, p.BuildVoteRequest(vr, e.publicClues(), eliminated, public, targets))
		if err != nil {
			return nil, e.fail(p.ID, fmt.Errorf("%w: %v", ErrModelFailure, err))
		}
		p.RecordResponse(resp)

		corrected, forced := false, false
		target := canonicalTarget(resp.Target, targets)
		if target == "" {
			e.log.Warn("нелегальный голос, отправляем корректирующий репромпт",
				zap.String("player", p.ID), zap.String("target", resp.Target))
			e.emit(Event{
				Type: EventValidationError, VotingRound: vr, PlayerID: p.ID,
				Target: resp.Target, Message: "vote target is not an active opponent",
			})

			retry, err := e.caller.Vote(ctx, p.BuildVoteCorrection(resp.Target, targets))
			if err != nil {
				return nil, e.fail(p.ID, fmt.Errorf("%w: %v", ErrModelFailure, err))
			}
			p.RecordResponse(retry)
			corrected = true
			if target = canonicalTarget(retry.Target, targets); target == "" {
				if !e.cfg.LenientVotes {
					return nil, e.fail(p.ID, fmt.Errorf("%w: %q after correction", ErrInvalidVote, retry.Target))
				}
				target, forced = targets[0], true
				e.log.Warn("голос нелегален после коррекции, подставлена первая легальная цель",
					zap.String("player", p.ID),
					zap.String("rejected", retry.Target),
					zap.String("forced", target))
			}
			resp = retry
		}

		rec := VoteRecord{
			VotingRound: vr,
			PlayerID:    p.ID,
			Target:      target,
			Thinking:    resp.Thinking,
			Reasoning:   resp.Reasoning,
			Confidence:  resp.Confidence,
			Corrected:   corrected,
			Forced:      forced,
		}
		roundVotes = append(roundVotes, rec)
		e.votes = append(e.votes, rec)
		public = append(public, prompts.PublicVote{PlayerID: p.ID, Target: target, Reasoning: resp.Reasoning})

		e.emit(Event{
			Type: EventVote, VotingRound: vr, PlayerID: p.ID,
			Target: target, Reasoning: resp.Reasoning,
			Thinking: resp.Thinking, Confidence: resp.Confidence,
			Forced: forced,
		})
	}
	return roundVotes, nil
}

func (e *Engine) abort(err error) (*GameResult, error) {
	reason := ReasonModelFailure
	switch {
	case errors.Is(err, ErrGameCancelled):
		reason = ReasonCancelled
	case errors.Is(err, ErrInvalidVote):
		reason = ReasonInvalidVote
	}
	e.emit(Event{Type: EventError, Message: err.Error()})
	result := e.buildResult(WinnerNone, reason)
	e.emit(Event{Type: EventGameComplete, Word: e.cfg.Word, Winner: string(WinnerNone), Result: result})
	return result, err
}

func (e *Engine) buildResult(winner Winner, reason string) *GameResult {
	var imposters, survivors []string
	caught := 0
	for _, p := range e.players {
		if p.Role.IsImposter() {
			imposters = append(imposters, p.ID)
			if p.Eliminated {
				caught++
			}
		}
		if !p.Eliminated {
			survivors = append(survivors, p.ID)
		}
	}
	accuracy := 0.0
	if len(imposters) > 0 {
		accuracy = float64(caught) / float64(len(imposters))
	}
	return &GameResult{
		GameID:            e.cfg.GameID,
		Word:              e.cfg.Word,
		Category:          e.cfg.Category,
		Winner:            winner,
		Reason:            reason,
		TotalRounds:       e.round,
		VotingRounds:      len(e.elims),
		DetectionAccuracy: accuracy,
		Imposters:         imposters,
		Survivors:         survivors,
		EliminatedIDs:     e.eliminatedIDs(),
		Clues:             e.clues,
		Votes:             e.votes,
		Eliminations:      e.elims,
	}
}

func (e *Engine) winCheck() Winner {
	var imp, non int
	for _, p := range e.players {
		if p.Eliminated {
			continue
		}
		if p.Role.IsImposter() {
			imp++
		} else {
			non++
		}
	}
	return CheckWinCondition(imp, non)
}

func (e *Engine) publicClues() []prompts.PublicClue {
	out := make([]prompts.PublicClue, 0, len(e.clues))
	for _, c := range e.clues {
		out = append(out, prompts.PublicClue{Round: c.Round, PlayerID: c.PlayerID, Clue: c.Clue})
	}
	return out
}

func (e *Engine) priorClueTexts() []string {
	out := make([]string, 0, len(e.clues))
	for _, c := range e.clues {
		out = append(out, c.Clue)
	}
	return out
}

func (e *Engine) activeIDs() []string {
	var out []string
	for _, p := range e.players {
		if !p.Eliminated {
			out = append(out, p.ID)
		}
	}
	return out
}

func (e *Engine) eliminatedIDs() []string {
	var out []string
	for _, p := range e.players {
		if p.Eliminated {
			out = append(out, p.ID)
		}
	}
	return out
}

func (e *Engine) validTargets(voterID string) []string {
	var out []string
	for _, p := range e.players {
		if !p.Eliminated && p.ID != voterID {
			out = append(out, p.ID)
		}
	}
	return out
}

func (e *Engine) playerByID(id string) *Player {
	for _, p := range e.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	ev.GameID = e.cfg.GameID
	ev.Timestamp = time.Now().UTC()
	e.sink.Emit(ev)
}

// canonicalTarget сопоставляет ответ модели с легальной целью без учёта
// регистра и крайних пробелов. Пустая строка - цель нелегальна.
func canonicalTarget(target string, valid []string) string {
	t := strings.ToLower(strings.TrimSpace(target))
	for _, v := range valid {
		if strings.ToLower(v) == t {
			return v
		}
	}
	return ""
}
