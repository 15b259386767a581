package game

import (
	"errors"
	"fmt"
)

// Сентинельные ошибки движка. Проверяются через errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid game config")
	ErrGameSpoiled   = errors.New("game spoiled: secret word revealed")
	ErrModelFailure  = errors.New("model call failed")
	ErrInvalidVote   = errors.New("invalid vote target")
	ErrGameCancelled = errors.New("game cancelled")
)

// Phase - фаза конечного автомата партии.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseClues      Phase = "clues"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseReveal     Phase = "reveal"
	PhaseComplete   Phase = "complete"
)

// EngineError привязывает фатальную ошибку к фазе и игроку, на которых
// остановилась партия.
type EngineError struct {
	Phase    Phase
	Round    int
	PlayerID string
	Cause    error
}

func (e *EngineError) Error() string {
	if e.PlayerID == "" {
		return fmt.Sprintf("game failed in phase %s (round %d): %v", e.Phase, e.Round, e.Cause)
	}
	return fmt.Sprintf("game failed in phase %s (round %d) on %s: %v", e.Phase, e.Round, e.PlayerID, e.Cause)
}

func (e *EngineError) Unwrap() error { return e.Cause }

func (e *Engine) fail(playerID string, cause error) *EngineError {
	return &EngineError{Phase: e.phase, Round: e.round, PlayerID: playerID, Cause: cause}
}
