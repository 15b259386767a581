// Package schemas содержит типизированные контракты для структурированных
// ответов AI-игроков и для запросов к модели. Чистые данные, без поведения:
// валидация полей происходит на границе декодирования (internal/ai),
// движок игры видит только уже проверенные значения.
package schemas

// PlayerRole - роль игрока в партии.
type PlayerRole string

const (
	RoleImposter    PlayerRole = "imposter"
	RoleNonImposter PlayerRole = "non_imposter"
)

// IsImposter сообщает, является ли роль ролью импостера.
func (r PlayerRole) IsImposter() bool {
	return r == RoleImposter
}

// MessageRole - роль сообщения в диалоге с моделью.
const (
	MessageRoleSystem    = "system"
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message - одно сообщение диалога (role-tagged).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request - структурированный запрос к модели. Model содержит алиас модели
// (например "haiku"), который транспортный слой разрешает в полный
// идентификатор через свой реестр.
type Request struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ClueResponse - ответ игрока в раунде подсказок.
type ClueResponse struct {
	// Thinking - внутренний монолог игрока, не виден другим игрокам.
	Thinking string `json:"thinking"`
	// Clue - подсказка одним словом (допускаются дефисы).
	Clue string `json:"clue"`
	// Confidence - уверенность в подсказке, 0-100.
	Confidence int `json:"confidence"`
	// WordHypothesis - только для импостеров: текущая гипотеза о секретном слове.
	WordHypothesis string `json:"word_hypothesis,omitempty"`
}

// SingleVoteResponse - голос за одного подозреваемого (последовательное
// голосование, канонический режим).
type SingleVoteResponse struct {
	Thinking string `json:"thinking"`
	// Target - id игрока, за исключение которого отдан голос.
	Target string `json:"target"`
	// Reasoning - краткое обоснование выбора цели.
	Reasoning  string `json:"reasoning"`
	Confidence int    `json:"confidence"`
}

// BatchVoteResponse - legacy-вариант голосования: несколько целей за один
// запрос. Используется только для агрегации истории прерванных партий,
// движок этот режим не запускает.
type BatchVoteResponse struct {
	Thinking           string            `json:"thinking"`
	Votes              []string          `json:"votes"`
	Confidence         int               `json:"confidence"`
	ReasoningPerPlayer map[string]string `json:"reasoning_per_player,omitempty"`
}

// DiscussionResponse - реплика игрока в опциональной фазе обсуждения.
type DiscussionResponse struct {
	Thinking string `json:"thinking"`
	// Statement - публичное высказывание, видимое всем игрокам.
	Statement  string `json:"statement"`
	Confidence int    `json:"confidence"`
}
