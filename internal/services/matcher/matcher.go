package matcher

import (
	"strings"

	"github.com/ternarybob/compleo/internal/models"
)

// Confidence assigned to pattern matches by text source. Label text is the
// strongest signal, attribute soup the weakest.
const (
	labelConfidence       = 0.9
	placeholderConfidence = 0.8
	attributeConfidence   = 0.7
)

// Result is the outcome of matching one field descriptor.
type Result struct {
	Key             string
	Source          models.MatchSource
	Kind            models.FieldKind
	Confidence      float64
	ConfirmPassword bool
	RequiredCheck   bool
	SkipCheck       bool
}

// Matcher performs deterministic label/placeholder/attribute matching of form
// fields to canonical profile keys. It is stateless and side-effect free.
type Matcher struct {
	synonyms []synonymEntry
}

// New creates a matcher with the built-in synonym dictionary.
func New() *Matcher {
	return &Matcher{synonyms: defaultSynonyms}
}

// Match resolves a field descriptor to a canonical profile key. The three
// text sources are tried in strict priority: label, placeholder, then the
// concatenation of name/id/aria-label/autocomplete.
func (m *Matcher) Match(field *models.FieldDescriptor) Result {
	result := Result{Source: models.MatchSourceNone}

	sources := []struct {
		text       string
		source     models.MatchSource
		confidence float64
	}{
		{field.Label, models.MatchSourceLabel, labelConfidence},
		{field.Placeholder, models.MatchSourcePlaceholder, placeholderConfidence},
		{field.Name + " " + field.ID + " " + field.AriaLabel + " " + field.Autocomplete, models.MatchSourceAttribute, attributeConfidence},
	}

	for _, src := range sources {
		folded := fold(src.text)
		if folded == "" {
			continue
		}
		for _, entry := range m.synonyms {
			if containsAnyToken(folded, entry.tokens) {
				result.Key = entry.key
				result.Source = src.source
				result.Confidence = src.confidence
				break
			}
		}
		if result.Key != "" {
			break
		}
	}

	allText := fold(strings.Join([]string{
		field.Label, field.Placeholder, field.Name, field.ID,
		field.AriaLabel, field.Autocomplete,
	}, " "))

	m.applySpecialHandlers(field, allText, &result)

	if result.Key != "" {
		result.Kind = classifyKind(field, result.Key)
	}

	return result
}

// applySpecialHandlers runs the post-match handlers: confirm-password,
// country selects, split date-of-birth fields, and checkbox classification.
func (m *Matcher) applySpecialHandlers(field *models.FieldDescriptor, allText string, result *Result) {
	tag := strings.ToLower(field.Tag)
	fieldType := strings.ToLower(field.Type)

	if result.Key == models.KeyPassword && containsAnyToken(allText, confirmPasswordTokens) {
		result.ConfirmPassword = true
	}

	if tag == "select" && strings.Contains(allText, "country") {
		result.Key = models.KeyCountry
		if result.Source == models.MatchSourceNone {
			result.Source = models.MatchSourceAttribute
			result.Confidence = attributeConfidence
		}
	}

	if tag == "select" || tag == "input" {
		if key := dobKeyFromAttributes(field); key != "" {
			result.Key = key
			if result.Source == models.MatchSourceNone {
				result.Source = models.MatchSourceAttribute
				result.Confidence = attributeConfidence
			}
		}
	}

	if fieldType == "checkbox" {
		if containsAnyToken(allText, requiredCheckTokens) {
			result.RequiredCheck = true
		} else if containsAnyToken(allText, skipCheckTokens) {
			result.SkipCheck = true
		}
	}
}

// dobKeyFromAttributes detects split date-of-birth fields by the _day/_month/
// _year suffix convention in id or name, with optional birth/dob context.
func dobKeyFromAttributes(field *models.FieldDescriptor) string {
	attrs := strings.ToLower(field.ID + " " + field.Name)
	if attrs == "" {
		return ""
	}

	hasContext := strings.Contains(attrs, "birth") || strings.Contains(attrs, "dob")
	isSelect := strings.EqualFold(field.Tag, "select")

	suffixes := []struct {
		suffix string
		key    string
	}{
		{"_day", models.KeyDOBDay},
		{"_month", models.KeyDOBMonth},
		{"_year", models.KeyDOBYear},
	}
	for _, s := range suffixes {
		suffix, key := s.suffix, s.key
		if !strings.Contains(attrs, suffix) {
			continue
		}
		// Bare _day/_month/_year on inputs is ambiguous without birth context;
		// selects with option lists are a strong enough signal on their own
		if hasContext || isSelect {
			return key
		}
	}
	return ""
}

// classifyKind maps a descriptor plus its matched key to a FieldKind.
func classifyKind(field *models.FieldDescriptor, key string) models.FieldKind {
	switch key {
	case models.KeyDOBDay:
		return models.FieldKindDOBDay
	case models.KeyDOBMonth:
		return models.FieldKindDOBMonth
	case models.KeyDOBYear:
		return models.FieldKindDOBYear
	}

	switch strings.ToLower(field.Tag) {
	case "select":
		return models.FieldKindSelect
	case "textarea":
		return models.FieldKindText
	}

	switch strings.ToLower(field.Type) {
	case "email":
		return models.FieldKindEmail
	case "password":
		return models.FieldKindPassword
	case "checkbox":
		return models.FieldKindCheckbox
	case "radio":
		return models.FieldKindRadio
	default:
		return models.FieldKindText
	}
}

// BuildPlan runs the matcher over every visible, non-disabled field and
// assembles a pattern-sourced field plan.
func (m *Matcher) BuildPlan(fields []models.FieldDescriptor) *models.FieldPlan {
	plan := &models.FieldPlan{Source: models.PlanSourcePattern}

	for i := range fields {
		field := &fields[i]
		if !field.Visible || field.Disabled {
			continue
		}
		if strings.EqualFold(field.Type, "hidden") {
			continue
		}

		selector := field.Selector()
		if selector == "" {
			continue
		}

		result := m.Match(field)
		// Annotated checkboxes (terms boxes, newsletter opt-ins) enter the
		// plan even without a profile key; the fill phase acts on the
		// annotation alone.
		if result.Key == "" && !result.RequiredCheck && !result.SkipCheck {
			continue
		}
		if result.Kind == "" {
			result.Kind = classifyKind(field, result.Key)
			result.Confidence = attributeConfidence
		}

		plan.Entries = append(plan.Entries, models.FieldEntry{
			Selector:        selector,
			ProfileKey:      result.Key,
			Kind:            result.Kind,
			Confidence:      result.Confidence,
			ConfirmPassword: result.ConfirmPassword,
			RequiredCheck:   result.RequiredCheck,
			SkipCheck:       result.SkipCheck,
		})
	}

	return plan
}

// fold lowercases text and strips everything that is not a letter or digit,
// so "E-Mail Address" folds to "emailaddress".
func fold(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// containsAnyToken reports whether the folded text contains any folded token.
func containsAnyToken(foldedText string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(foldedText, fold(token)) {
			return true
		}
	}
	return false
}
