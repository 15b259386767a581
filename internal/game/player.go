package game

import (
	"encoding/json"
	"fmt"

	"imposter-server/internal/prompts"
	"imposter-server/internal/schemas"
)

// Player - один участник партии с приватной историей диалога. История каждого
// игрока изолирована: туда попадают только его системный промпт, публичные
// данные стола и его собственные ответы. Секретное слово никогда не
// оказывается в истории импостера.
type Player struct {
	ID         string
	Role       schemas.PlayerRole
	Model      string
	Eliminated bool

	history []schemas.Message
	cfg     *Config
}

// NewPlayer создаёт игрока с порядковым номером idx (нумерация с нуля)
// и засевает его системный промпт.
func NewPlayer(idx int, role schemas.PlayerRole, model string, cfg *Config) *Player {
	p := &Player{
		ID:    fmt.Sprintf("Player_%d", idx+1),
		Role:  role,
		Model: model,
		cfg:   cfg,
	}
	word := cfg.Word
	if role.IsImposter() {
		word = ""
	}
	p.history = append(p.history, schemas.Message{
		Role:    schemas.MessageRoleSystem,
		Content: prompts.System(p.ID, role, word, cfg.Category, cfg.NumPlayers, cfg.NumImposters),
	})
	return p
}

// History возвращает копию приватной истории игрока для аудита.
func (p *Player) History() []schemas.Message {
	out := make([]schemas.Message, len(p.history))
	copy(out, p.history)
	return out
}

// BuildClueRequest добавляет ход подсказки в историю игрока и возвращает
// готовый запрос к модели.
func (p *Player) BuildClueRequest(round int, publicClues []prompts.PublicClue) schemas.Request {
	word := p.cfg.Word
	if p.Role.IsImposter() {
		word = ""
	}
	return p.push(prompts.ClueTurn(p.Role, round, publicClues, word, p.cfg.Category))
}

// BuildVoteRequest добавляет ход голосования в историю игрока.
func (p *Player) BuildVoteRequest(votingRound int, clues []prompts.PublicClue,
	eliminated []string, votesSoFar []prompts.PublicVote, validTargets []string) schemas.Request {

	word := p.cfg.Word
	if p.Role.IsImposter() {
		word = ""
	}
	return p.push(prompts.VoteTurn(p.Role, votingRound, p.cfg.VotingRounds,
		clues, eliminated, votesSoFar, validTargets, word, p.cfg.Category))
}

// BuildVoteCorrection добавляет корректирующий ход после недопустимого голоса.
func (p *Player) BuildVoteCorrection(invalidTarget string, validTargets []string) schemas.Request {
	return p.push(prompts.VoteCorrection(invalidTarget, validTargets))
}

// BuildDiscussionRequest добавляет ход фазы обсуждения.
func (p *Player) BuildDiscussionRequest(round int, clues []prompts.PublicClue, remarks []prompts.PublicVote) schemas.Request {
	return p.push(prompts.DiscussionTurn(round, clues, remarks, p.cfg.Category))
}

// RecordResponse дописывает ответ модели в историю игрока как assistant-ход.
// Ответ сериализуется обратно в JSON, чтобы история совпадала с тем,
// что модель реально вернула.
func (p *Player) RecordResponse(resp any) {
	raw, err := json.Marshal(resp)
	if err != nil {
		// Типы ответов - плоские структуры, сюда попасть нельзя.
		raw = []byte("{}")
	}
	p.history = append(p.history, schemas.Message{
		Role:    schemas.MessageRoleAssistant,
		Content: string(raw),
	})
}

func (p *Player) push(content string) schemas.Request {
	p.history = append(p.history, schemas.Message{Role: schemas.MessageRoleUser, Content: content})
	msgs := make([]schemas.Message, len(p.history))
	copy(msgs, p.history)
	return schemas.Request{
		Messages:    msgs,
		Model:       p.Model,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
}
