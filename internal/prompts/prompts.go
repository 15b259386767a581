// Package prompts собирает тексты запросов к моделям-игрокам. Формулировки
// ролей асимметричны (импостер не знает слово), но входные данные одинаковы:
// id игрока, размер стола, категория и публичная история подсказок.
// Движок игры этим пакетом не владеет - он только получает готовые сообщения
// через билдеры игрока.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"imposter-server/internal/schemas"
)

// PublicClue - публично видимая часть подсказки: раунд, автор и само слово.
// Чужие thinking и confidence сюда не попадают никогда.
type PublicClue struct {
	Round    int
	PlayerID string
	Clue     string
}

// PublicVote - публично видимая часть голоса внутри текущего под-раунда.
type PublicVote struct {
	PlayerID  string
	Target    string
	Reasoning string
}

const nonImposterSystemTemplate = `You are %s in "The Imposter Mystery", a game of keep-away and detection.

YOUR ROLE: Non-Imposter (you KNOW the secret word)
SECRET WORD: %s
CATEGORY: %s

GAME SETUP: %d players, %d of them are imposters (you don't know who).
Imposters only know the category, not the word. They are listening to your
clues and trying to deduce it.

YOUR DUAL MISSION:
1. KEEP-AWAY: give clues that prove you know the word to other word-knowers
   while hiding it from imposters. Prefer experiential, peripheral or
   counterintuitive associations over direct descriptions.
2. DETECT: study every clue. Imposters reveal themselves through generic
   clues that fit anything in the category, through copying patterns, and
   through associations that don't quite click with the real word.

CRITICAL RULE: NEVER say "%s" or any word containing it. Doing so spoils the
game for everyone.

You always respond in JSON matching the requested schema, with your strategic
thinking visible in the "thinking" field.`

const imposterSystemTemplate = `You are %s in "The Imposter Mystery", and you are FAKING IT.

YOUR ROLE: Imposter (you DON'T know the secret word)
CATEGORY: %s

GAME SETUP: %d players, %d imposters including you (you don't know the others).
Everyone else knows a secret word in this category and gives oblique one-word
clues about it. Your goals:
1. DECODE: find the word that makes ALL observed clues make sense. Beware of
   deliberate misdirection.
2. BLEND IN: give specific-but-oblique clues that show confidence. Generic
   category words scream "I'm guessing".
3. SURVIVE: vote convincingly and act suspicious of others - real players
   are paranoid.

WARNING: if your clue is exactly the secret word, you are instantly
eliminated. Keep two or three candidate words in mind and never say any of
them directly.

You always respond in JSON matching the requested schema, with your deduction
process and current word hypothesis visible.`

// System возвращает системный промпт для игрока. Слово подставляется только
// для роли не-импостера.
func System(playerID string, role schemas.PlayerRole, word, category string, totalPlayers, numImposters int) string {
	if role.IsImposter() {
		return fmt.Sprintf(imposterSystemTemplate, playerID, category, totalPlayers, numImposters)
	}
	return fmt.Sprintf(nonImposterSystemTemplate, playerID, word, category, totalPlayers, numImposters, word)
}

// ClueTurn возвращает пользовательское сообщение для хода в раунде подсказок.
func ClueTurn(role schemas.PlayerRole, round int, previous []PublicClue, word, category string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== ROUND %d ===\n\nPrevious clues:\n%s\n\n", round, formatClueHistory(previous, nil))

	if role.IsImposter() {
		fmt.Fprintf(&b, "CATEGORY: %q\nTHE WORD: ??? (you must deduce it)\n\n", category)
		b.WriteString(`Step 1 - decode: what word in this category connects all observed clues?
Step 2 - blend in: give a one-word clue that fits your best hypothesis,
specific but oblique. Do not say your guessed word itself.

Respond with JSON:
{"thinking": "...", "clue": "one-word", "word_hypothesis": "your-best-guess", "confidence": 0-100}`)
		return b.String()
	}

	fmt.Fprintf(&b, "SECRET WORD: %q\n\n", word)
	b.WriteString(`Step 1 - suspicion: which of the clues above feel like faking?
Step 2 - keep-away: give a one-word clue that fellow word-knowers will
recognize but an imposter could not use to guess the word. Never say the
word itself or any part of it.

Respond with JSON:
{"thinking": "...", "clue": "one-word", "confidence": 0-100}`)
	return b.String()
}

// VoteTurn возвращает сообщение для последовательного голосования: полный
// публичный лог подсказок, выбывшие игроки и голоса, уже отданные в этом
// под-раунде. Слово раскрывается только не-импостеру (оно и так ему известно).
func VoteTurn(role schemas.PlayerRole, votingRound, totalVotingRounds int,
	clues []PublicClue, eliminated []string, votesSoFar []PublicVote,
	validTargets []string, word, category string) string {

	var b strings.Builder
	fmt.Fprintf(&b, "=== VOTING ROUND %d/%d - UNMASK AN IMPOSTER ===\n\nComplete clue evidence:\n%s\n",
		votingRound, totalVotingRounds, formatClueHistory(clues, eliminated))

	if len(eliminated) > 0 {
		fmt.Fprintf(&b, "\nAlready eliminated: %s\n", strings.Join(eliminated, ", "))
	}

	if len(votesSoFar) == 0 {
		b.WriteString("\nYou are among the first to vote this round.\n")
	} else {
		b.WriteString("\nVotes cast so far this round:\n")
		for _, v := range votesSoFar {
			fmt.Fprintf(&b, "  %s voted for %s: %q\n", v.PlayerID, v.Target, v.Reasoning)
		}
	}

	if role.IsImposter() {
		fmt.Fprintf(&b, "\nYou still don't know the word (category: %q). Vote convincingly anyway:\n"+
			"generic clue-givers are safe targets, and deflecting suspicion is survival.\n", category)
	} else {
		fmt.Fprintf(&b, "\nThe word was %q. Forensic analysis: whose clues could have been produced\n"+
			"without knowing it? Generic fits, pattern-following and misaligned associations\n"+
			"are imposter tells.\n", word)
	}

	fmt.Fprintf(&b, "\nVote for exactly ONE of: %s\n", strings.Join(validTargets, ", "))
	b.WriteString(`You cannot vote for yourself or for an eliminated player.

Respond with JSON:
{"thinking": "...", "target": "Player_X", "reasoning": "which clue exposed them and why", "confidence": 0-100}`)
	return b.String()
}

// VoteCorrection возвращает корректирующее сообщение после недопустимого
// голоса. Отправляется ровно один раз.
func VoteCorrection(invalidTarget string, validTargets []string) string {
	return fmt.Sprintf(`Your vote for %q is not valid: the target must be an active player other
than yourself. Valid targets are: %s.

Vote again. Respond with JSON:
{"thinking": "...", "target": "Player_X", "reasoning": "...", "confidence": 0-100}`,
		invalidTarget, strings.Join(validTargets, ", "))
}

// DiscussionTurn возвращает сообщение для опциональной фазы обсуждения.
func DiscussionTurn(round int, clues []PublicClue, remarks []PublicVote, category string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== ROUND %d DISCUSSION ===\n\nClues so far:\n%s\n", round, formatClueHistory(clues, nil))
	if len(remarks) > 0 {
		b.WriteString("\nStatements so far:\n")
		for _, r := range remarks {
			fmt.Fprintf(&b, "  %s: %q\n", r.PlayerID, r.Reasoning)
		}
	}
	fmt.Fprintf(&b, "\nShare one short public statement (max 200 characters) about your\n"+
		"suspicions. Do not reveal the secret word if you know it.\n\n"+
		"Respond with JSON:\n"+
		`{"thinking": "...", "statement": "...", "confidence": 0-100}`)
	return b.String()
}

// formatClueHistory форматирует публичный лог подсказок по раундам.
// eliminated, если задан, помечает выбывших игроков.
func formatClueHistory(clues []PublicClue, eliminated []string) string {
	if len(clues) == 0 {
		return "No clues given yet - you're going first!"
	}

	out := make(map[string]bool, len(eliminated))
	for _, id := range eliminated {
		out[id] = true
	}

	byRound := make(map[int][]PublicClue)
	var rounds []int
	for _, c := range clues {
		if _, ok := byRound[c.Round]; !ok {
			rounds = append(rounds, c.Round)
		}
		byRound[c.Round] = append(byRound[c.Round], c)
	}
	sort.Ints(rounds)

	var b strings.Builder
	for _, r := range rounds {
		fmt.Fprintf(&b, "--- Round %d ---\n", r)
		for _, c := range byRound[r] {
			marker := ""
			if out[c.PlayerID] {
				marker = " [ELIMINATED]"
			}
			fmt.Fprintf(&b, "%s: %q%s\n", c.PlayerID, c.Clue, marker)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
