package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/compleo/internal/models"
)

// rawEntry mirrors the JSON shape the model is instructed to return.
type rawEntry struct {
	Selector     string  `json:"selector"`
	ProfileField string  `json:"profile_field"`
	FieldKind    string  `json:"field_kind"`
	Confidence   float64 `json:"confidence"`
}

// parseFieldEntries validates a model response into plan entries. Only a JSON
// array is accepted (markdown fences are stripped first). Entries with unknown
// profile keys or invalid selectors are dropped silently; entries below the
// confidence threshold are returned separately so the caller can log them.
func parseFieldEntries(raw string, availableKeys []string, minConfidence float64) (entries, discarded []models.FieldEntry, err error) {
	cleaned := stripFences(raw)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end <= start {
		return nil, nil, fmt.Errorf("response is not a JSON array")
	}
	cleaned = cleaned[start : end+1]

	var rawEntries []rawEntry
	if err := json.Unmarshal([]byte(cleaned), &rawEntries); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response array: %w", err)
	}

	allowed := make(map[string]bool, len(availableKeys))
	for _, key := range availableKeys {
		allowed[key] = true
	}

	seen := make(map[string]bool, len(rawEntries))
	for _, r := range rawEntries {
		if !validSelector(r.Selector) {
			continue
		}
		if !models.IsCanonicalKey(r.ProfileField) || !allowed[r.ProfileField] {
			continue
		}
		if seen[r.Selector] {
			continue
		}

		confidence := r.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		kind := models.FieldKind(r.FieldKind)
		if !models.ValidFieldKind(kind) {
			kind = models.FieldKindText
		}

		entry := models.FieldEntry{
			Selector:   r.Selector,
			ProfileKey: r.ProfileField,
			Kind:       kind,
			Confidence: confidence,
		}

		if confidence < minConfidence {
			discarded = append(discarded, entry)
			continue
		}

		seen[r.Selector] = true
		entries = append(entries, entry)
	}

	return entries, discarded, nil
}

// stripFences removes markdown code fences the model sometimes wraps
// responses in despite instructions.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// validSelector applies a conservative sanity check to CSS selectors.
func validSelector(selector string) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" || len(selector) > 512 {
		return false
	}
	// Selectors never span lines or contain braces
	if strings.ContainsAny(selector, "{}\n\r") {
		return false
	}
	first := selector[0]
	switch {
	case first == '#' || first == '.' || first == '[' || first == '*':
		return len(selector) > 1 || first == '*'
	case (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z'):
		return true
	default:
		return false
	}
}
