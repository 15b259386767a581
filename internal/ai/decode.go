package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON вырезает JSON-объект из сырого ответа модели. Модели любят
// заворачивать JSON в markdown-ограждения или дописывать текст вокруг,
// поэтому берём диапазон от первой '{' до последней '}'.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: JSON-объект не найден", ErrBadResponse)
	}
	return s[start : end+1], nil
}

// decodeInto разбирает сырой ответ модели в типизированную структуру
// и прогоняет доменную проверку.
func decodeInto(raw string, out any, validate func() error) error {
	payload, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if validate != nil {
		if err := validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
	}
	return nil
}

// clampConfidence приводит самооценку модели к диапазону 0-100.
func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
