package ai

// ModelInfo - запись реестра моделей: полный OpenRouter id и человекочитаемое
// имя под коротким псевдонимом.
type ModelInfo struct {
	ID   string
	Name string
}

// Registry сопоставляет короткие псевдонимы моделей из конфигурации партии
// с полными идентификаторами провайдера. Незнакомый псевдоним считается уже
// полным идентификатором и проходит как есть.
type Registry map[string]ModelInfo

// DefaultRegistry возвращает встроенный набор проверенных моделей OpenRouter.
func DefaultRegistry() Registry {
	return Registry{
		"llama":      {ID: "meta-llama/llama-3.1-8b-instruct", Name: "Llama 3.1 8B"},
		"haiku":      {ID: "anthropic/claude-3.5-haiku", Name: "Claude 3.5 Haiku"},
		"gemini":     {ID: "google/gemini-flash-1.5", Name: "Gemini Flash 1.5"},
		"gemini-2":   {ID: "google/gemini-2.0-flash-exp:free", Name: "Gemini 2.0 Flash (Free)"},
		"qwen":       {ID: "qwen/qwq-32b:free", Name: "Qwen QwQ 32B"},
		"gpt4o-mini": {ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini"},
		"mistral":    {ID: "mistralai/mistral-7b-instruct", Name: "Mistral 7B"},
	}
}

// Resolve возвращает полный идентификатор модели по псевдониму.
func (r Registry) Resolve(alias string) string {
	if info, ok := r[alias]; ok {
		return info.ID
	}
	return alias
}
