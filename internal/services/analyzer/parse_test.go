package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/compleo/internal/models"
)

var testKeys = []string{"email", "password", "firstName", "phone"}

func TestParseFieldEntries_ValidArray(t *testing.T) {
	raw := `[
		{"selector": "#email", "profile_field": "email", "field_kind": "email", "confidence": 0.95},
		{"selector": "#pw", "profile_field": "password", "field_kind": "password", "confidence": 0.9}
	]`

	entries, discarded, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	assert.Empty(t, discarded)
	require.Len(t, entries, 2)
	assert.Equal(t, "#email", entries[0].Selector)
	assert.Equal(t, models.FieldKindEmail, entries[0].Kind)
	assert.Equal(t, 0.9, entries[1].Confidence)
}

func TestParseFieldEntries_MarkdownFences(t *testing.T) {
	raw := "```json\n[{\"selector\": \"#e\", \"profile_field\": \"email\", \"field_kind\": \"email\", \"confidence\": 1}]\n```"

	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestParseFieldEntries_SurroundingProse(t *testing.T) {
	raw := `Here is the mapping you asked for:
[{"selector": "#e", "profile_field": "email", "field_kind": "email", "confidence": 1}]
Let me know if you need anything else.`

	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestParseFieldEntries_NotAnArray(t *testing.T) {
	_, _, err := parseFieldEntries(`{"selector": "#e"}`, testKeys, 0.5)
	assert.Error(t, err)

	_, _, err = parseFieldEntries("I could not find any fields.", testKeys, 0.5)
	assert.Error(t, err)
}

func TestParseFieldEntries_UnknownKeysDiscarded(t *testing.T) {
	raw := `[
		{"selector": "#a", "profile_field": "email", "field_kind": "email", "confidence": 1},
		{"selector": "#b", "profile_field": "ssn", "field_kind": "text", "confidence": 1},
		{"selector": "#c", "profile_field": "company", "field_kind": "text", "confidence": 1}
	]`

	// "company" is canonical but not in the available set for this profile
	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "#a", entries[0].Selector)
}

func TestParseFieldEntries_LowConfidenceDiscardedButReturned(t *testing.T) {
	raw := `[
		{"selector": "#a", "profile_field": "email", "field_kind": "email", "confidence": 0.95},
		{"selector": "#b", "profile_field": "phone", "field_kind": "text", "confidence": 0.3}
	]`

	entries, discarded, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	require.Len(t, discarded, 1)
	assert.Equal(t, "#b", discarded[0].Selector)
}

func TestParseFieldEntries_InvalidSelectors(t *testing.T) {
	raw := `[
		{"selector": "", "profile_field": "email", "field_kind": "email", "confidence": 1},
		{"selector": "{bad}", "profile_field": "email", "field_kind": "email", "confidence": 1},
		{"selector": "#ok", "profile_field": "email", "field_kind": "email", "confidence": 1}
	]`

	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "#ok", entries[0].Selector)
}

func TestParseFieldEntries_DuplicateSelectors(t *testing.T) {
	raw := `[
		{"selector": "#a", "profile_field": "email", "field_kind": "email", "confidence": 0.9},
		{"selector": "#a", "profile_field": "phone", "field_kind": "text", "confidence": 0.8}
	]`

	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "email", entries[0].ProfileKey)
}

func TestParseFieldEntries_ConfidenceClamped(t *testing.T) {
	raw := `[{"selector": "#a", "profile_field": "email", "field_kind": "email", "confidence": 3.5}]`

	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1.0, entries[0].Confidence)
}

func TestParseFieldEntries_UnknownKindFallsBackToText(t *testing.T) {
	raw := `[{"selector": "#a", "profile_field": "email", "field_kind": "tel", "confidence": 1}]`

	entries, _, err := parseFieldEntries(raw, testKeys, 0.5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.FieldKindText, entries[0].Kind)
}
