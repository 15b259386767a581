package game

import (
	"math/rand"
	"sort"
	"strings"

	"imposter-server/internal/schemas"
)

// Типы нарушений при проверке подсказки.
const (
	// ViolationInstantReveal - импостер случайно угадал слово вслух.
	// Немедленное выбывание, партия продолжается.
	ViolationInstantReveal = "instant_reveal"
	// ViolationWordSpoiled - знающий слово игрок произнёс его. Фатально.
	ViolationWordSpoiled = "word_spoiled"
	// ViolationPartialMatch - подсказка пересекается со словом как подстрока.
	// Ход пропадает: подсказка отбрасывается и в публичный лог не попадает.
	ViolationPartialMatch = "partial_word_match"
	// ViolationDuplicate - подсказка дословно повторяет более раннюю.
	// Тоже отбрасывается без записи.
	ViolationDuplicate = "duplicate_clue"
	// ViolationMultiWord - подсказка длиннее трёх слов. Только предупреждение.
	ViolationMultiWord = "multi_word_clue"
)

// Severity - тяжесть нарушения подсказки.
type Severity int

const (
	// SeverityNone - нарушений нет.
	SeverityNone Severity = iota
	// SeverityAdvisory - подсказка принимается, нарушение пишется в аудит.
	SeverityAdvisory
	// SeverityReject - подсказка отбрасывается, ход потрачен впустую.
	// В аудит попадает только событие валидации, записи подсказки нет.
	SeverityReject
	// SeverityEliminate - автор подсказки немедленно выбывает.
	SeverityEliminate
	// SeverityFatal - партия испорчена и завершается без победителя.
	SeverityFatal
)

// ClueVerdict - результат трёхуровневой проверки подсказки.
type ClueVerdict struct {
	Violation string
	Severity  Severity
}

// ValidateClue проверяет подсказку против секретного слова и истории.
// Сравнение регистронезависимое, пробелы по краям игнорируются.
// Порядок проверок фиксирован: точное совпадение со словом, частичное
// совпадение, дубликат, многословность.
func ValidateClue(clue, word string, role schemas.PlayerRole, priorClues []string) ClueVerdict {
	c := strings.ToLower(strings.TrimSpace(clue))
	w := strings.ToLower(strings.TrimSpace(word))

	if c == w {
		if role.IsImposter() {
			return ClueVerdict{Violation: ViolationInstantReveal, Severity: SeverityEliminate}
		}
		return ClueVerdict{Violation: ViolationWordSpoiled, Severity: SeverityFatal}
	}

	if len(w) > 3 && c != "" && (strings.Contains(c, w) || strings.Contains(w, c)) {
		return ClueVerdict{Violation: ViolationPartialMatch, Severity: SeverityReject}
	}

	for _, prior := range priorClues {
		if strings.ToLower(strings.TrimSpace(prior)) == c {
			return ClueVerdict{Violation: ViolationDuplicate, Severity: SeverityReject}
		}
	}

	if len(strings.Fields(c)) > 3 {
		return ClueVerdict{Violation: ViolationMultiWord, Severity: SeverityAdvisory}
	}

	return ClueVerdict{Severity: SeverityNone}
}

// CheckWinCondition возвращает победителя по текущему составу активных
// игроков, либо WinnerNone, если партия должна продолжаться.
// Импостеры побеждают, когда их не меньше, чем знающих слово.
func CheckWinCondition(activeImposters, activeNonImposters int) Winner {
	if activeImposters == 0 {
		return WinnerNonImposters
	}
	if activeImposters >= activeNonImposters {
		return WinnerImposters
	}
	return WinnerNone
}

// TallyVotes агрегирует записи голосов в счётчик по целям.
func TallyVotes(votes []VoteRecord) map[string]int {
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v.Target]++
	}
	return counts
}

// TallyBatchVotes агрегирует позиционные батч-голоса (устаревший формат,
// где i-й элемент - голос i-го активного игрока) в тот же счётчик.
func TallyBatchVotes(votes []string) map[string]int {
	counts := make(map[string]int, len(votes))
	for _, target := range votes {
		if target == "" {
			continue
		}
		counts[target]++
	}
	return counts
}

// ResolveVote выбирает выбывающего по счётчику голосов. order задаёт
// детерминированный порядок игроков, policy - правило разрешения ничьей.
// Возвращает цель и признак того, что ничья действительно была.
// Функция идемпотентна для TieFirst и детерминирована при фиксированном rng.
func ResolveVote(counts map[string]int, order []string, policy TiePolicy, rng *rand.Rand) (string, bool) {
	if len(counts) == 0 {
		return "", false
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}

	var leaders []string
	for _, id := range order {
		if counts[id] == max {
			leaders = append(leaders, id)
		}
	}
	// Голоса за цели вне order (не должно случаться после проверки
	// легальности, но счётчик может прийти из устаревшего батч-формата).
	if len(leaders) == 0 {
		for id, n := range counts {
			if n == max {
				leaders = append(leaders, id)
			}
		}
		sort.Strings(leaders)
	}

	if len(leaders) == 1 {
		return leaders[0], false
	}
	if policy == TieFirst || rng == nil {
		return leaders[0], true
	}
	return leaders[rng.Intn(len(leaders))], true
}
