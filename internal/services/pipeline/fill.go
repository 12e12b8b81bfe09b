package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// fill executes the current plan entry by entry. Individual field failures
// are recorded and the loop continues; only cancellation aborts it.
func (e *Executor) fill(ctx context.Context, state *runState) error {
	e.setPhase(ctx, state, models.PhaseFilling)

	for _, entry := range state.plan.Entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if state.filledSelectors[entry.Selector] {
			continue
		}

		filled, err := e.fillEntry(ctx, state, entry)
		if err != nil {
			state.fieldErrors = append(state.fieldErrors,
				fmt.Sprintf("%s (%s): %v", entry.Selector, entry.ProfileKey, err))
			e.logger.Warn().
				Err(err).
				Str("job_id", state.job.ID).
				Str("selector", entry.Selector).
				Str("profile_key", entry.ProfileKey).
				Msg("Field fill failed")
			continue
		}
		if !filled {
			continue
		}

		state.filledSelectors[entry.Selector] = true
		state.filledEntries = append(state.filledEntries, entry)
		state.job.FieldsFilled = len(state.filledEntries)
		e.emit(ctx, state.job, models.EventFieldFilled, entry.ProfileKey)
	}
	return nil
}

// fillEntry fills one field per its kind. Returns (false, nil) when the entry
// is deliberately skipped (no value, skip-marked checkbox).
func (e *Executor) fillEntry(ctx context.Context, state *runState, entry models.FieldEntry) (bool, error) {
	value := e.valueFor(state.profile, entry)
	timeout := e.config.FieldTimeoutDuration()
	session := state.session

	switch entry.Kind {
	case models.FieldKindText, models.FieldKindEmail, models.FieldKindPassword:
		if value == "" {
			return false, nil
		}
		if err := session.Type(ctx, entry.Selector, value, timeout); err != nil {
			return false, err
		}
		return true, nil

	case models.FieldKindSelect:
		if value == "" {
			return false, nil
		}
		return true, e.fillSelect(ctx, session, entry, value)

	case models.FieldKindCheckbox:
		return e.fillCheckbox(ctx, state, entry)

	case models.FieldKindRadio:
		if err := session.Click(ctx, entry.Selector, timeout); err != nil {
			return false, err
		}
		return true, nil

	case models.FieldKindDOBDay, models.FieldKindDOBMonth, models.FieldKindDOBYear:
		return e.fillDOB(ctx, state, entry)

	default:
		if value == "" {
			return false, nil
		}
		if err := session.Type(ctx, entry.Selector, value, timeout); err != nil {
			return false, err
		}
		return true, nil
	}
}

// valueFor resolves the profile value for an entry. Confirm-password fields
// reuse the primary password.
func (e *Executor) valueFor(profile *models.NormalizedProfile, entry models.FieldEntry) string {
	if entry.ConfirmPassword {
		return profile.Get(models.KeyPassword)
	}
	return profile.Get(entry.ProfileKey)
}

// fillSelect tries exact text, then value, then fuzzy matching. Country
// selects additionally try the alpha-2 and alpha-3 ISO codes as values.
func (e *Executor) fillSelect(ctx context.Context, session interfaces.BrowserSession, entry models.FieldEntry, value string) error {
	if err := session.Select(ctx, entry.Selector, value, interfaces.SelectByText); err == nil {
		return nil
	}
	if err := session.Select(ctx, entry.Selector, value, interfaces.SelectByValue); err == nil {
		return nil
	}
	if entry.ProfileKey == models.KeyCountry {
		for _, code := range countryCodes(value) {
			if err := session.Select(ctx, entry.Selector, code, interfaces.SelectByValue); err == nil {
				return nil
			}
		}
	}
	return session.Select(ctx, entry.Selector, value, interfaces.SelectByFuzzy)
}

// fillCheckbox checks required-marked boxes and leaves skip-marked ones alone.
// Unmarked checkboxes are never touched.
func (e *Executor) fillCheckbox(ctx context.Context, state *runState, entry models.FieldEntry) (bool, error) {
	if entry.SkipCheck || !entry.RequiredCheck {
		return false, nil
	}

	var checked bool
	js := fmt.Sprintf(`(() => { const el = document.querySelector('%s'); return !!el && el.checked; })()`, entry.Selector)
	if err := state.session.ExecuteScript(ctx, js, &checked); err == nil && checked {
		return true, nil
	}

	if err := state.session.Click(ctx, entry.Selector, e.config.FieldTimeoutDuration()); err != nil {
		return false, err
	}
	return true, nil
}

// fillDOB handles split date-of-birth fields, which may be selects (try the
// unpadded, then zero-padded form) or plain inputs.
func (e *Executor) fillDOB(ctx context.Context, state *runState, entry models.FieldEntry) (bool, error) {
	profile := state.profile
	var padded, unpadded string
	switch entry.Kind {
	case models.FieldKindDOBDay:
		padded, unpadded = profile.Get(models.KeyDOBDay), profile.Get(models.KeyDOBDayInt)
	case models.FieldKindDOBMonth:
		padded, unpadded = profile.Get(models.KeyDOBMonth), profile.Get(models.KeyDOBMonthInt)
	case models.FieldKindDOBYear:
		padded, unpadded = profile.Get(models.KeyDOBYear), profile.Get(models.KeyDOBYearInt)
	}
	if padded == "" && unpadded == "" {
		return false, nil
	}

	session := state.session
	for _, candidate := range []string{unpadded, padded} {
		if candidate == "" {
			continue
		}
		if err := session.Select(ctx, entry.Selector, candidate, interfaces.SelectByText); err == nil {
			return true, nil
		}
		if err := session.Select(ctx, entry.Selector, candidate, interfaces.SelectByValue); err == nil {
			return true, nil
		}
	}

	// Not a select; type the padded form
	value := padded
	if value == "" {
		value = unpadded
	}
	if err := session.Type(ctx, entry.Selector, value, e.config.FieldTimeoutDuration()); err != nil {
		return false, err
	}
	return true, nil
}

// countryCodes maps common country names to their ISO 3166-1 alpha-2 and
// alpha-3 codes, covering the value attributes country selects use.
func countryCodes(name string) []string {
	codes := map[string][2]string{
		"united states":  {"US", "USA"},
		"usa":            {"US", "USA"},
		"united kingdom": {"GB", "GBR"},
		"uk":             {"GB", "GBR"},
		"canada":         {"CA", "CAN"},
		"australia":      {"AU", "AUS"},
		"germany":        {"DE", "DEU"},
		"france":         {"FR", "FRA"},
		"spain":          {"ES", "ESP"},
		"italy":          {"IT", "ITA"},
		"netherlands":    {"NL", "NLD"},
		"new zealand":    {"NZ", "NZL"},
		"ireland":        {"IE", "IRL"},
		"india":          {"IN", "IND"},
		"japan":          {"JP", "JPN"},
		"brazil":         {"BR", "BRA"},
		"mexico":         {"MX", "MEX"},
	}
	pair, ok := codes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}
	return []string{pair[0], pair[1]}
}
