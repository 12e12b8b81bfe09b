package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// submitSelectors are tried before falling back to phrase scanning.
var submitSelectors = []string{
	"button[type='submit']",
	"input[type='submit']",
	"form button:not([type='button'])",
}

// submit locates and clicks the submit control, then waits the configured
// settle delay so the page can react before re-detection.
func (e *Executor) submit(ctx context.Context, state *runState) error {
	session := state.session

	clicked := false
	for _, selector := range submitSelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !session.IsVisible(ctx, selector) {
			continue
		}
		if err := session.Click(ctx, selector, e.config.FieldTimeoutDuration()); err != nil {
			e.logger.Debug().Err(err).Str("selector", selector).Msg("Submit click failed")
			continue
		}
		clicked = true
		break
	}

	if !clicked {
		ok, err := e.clickByPhrase(ctx, state)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no submit control found")
		}
	}

	e.logger.Info().Str("job_id", state.job.ID).Msg("Form submitted")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.config.SubmitSettleDuration()):
	}
	return nil
}

// clickByPhrase scans buttons and clickable inputs for the configured submit
// phrases and clicks the first visible match.
func (e *Executor) clickByPhrase(ctx context.Context, state *runState) (bool, error) {
	phrases := e.config.SubmitPhrases
	if len(phrases) == 0 {
		return false, nil
	}

	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = fmt.Sprintf("'%s'", strings.ToLower(strings.ReplaceAll(p, "'", "\\'")))
	}

	js := fmt.Sprintf(`(() => {
		const phrases = [%s];
		const candidates = document.querySelectorAll('button, input[type="button"], a[role="button"], a.btn');
		for (const el of candidates) {
			if (el.offsetParent === null) continue;
			const text = (el.textContent || el.value || '').trim().toLowerCase();
			if (!text) continue;
			if (phrases.some(p => text.includes(p))) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, strings.Join(quoted, ", "))

	var clicked bool
	if err := state.session.ExecuteScript(ctx, js, &clicked); err != nil {
		return false, fmt.Errorf("submit phrase scan failed: %w", err)
	}
	return clicked, nil
}
