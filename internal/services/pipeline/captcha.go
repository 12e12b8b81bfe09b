package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// captchaMarkers are the DOM signatures checked during the captcha phase,
// in detection priority order.
var captchaMarkers = []struct {
	selector string
	kind     interfaces.CaptchaType
}{
	{".g-recaptcha", interfaces.CaptchaRecaptchaV2},
	{"iframe[src*='recaptcha']", interfaces.CaptchaRecaptchaV2},
	{".h-captcha", interfaces.CaptchaHCaptcha},
	{"iframe[src*='hcaptcha']", interfaces.CaptchaHCaptcha},
	{"img[src*='captcha']", interfaces.CaptchaText},
	{"#captcha img", interfaces.CaptchaText},
}

// handleCaptcha detects and solves a challenge on the current page. Absence
// of a challenge is the common case and returns nil immediately.
func (e *Executor) handleCaptcha(ctx context.Context, state *runState) error {
	e.setPhase(ctx, state, models.PhaseCaptcha)

	challenge := e.detectCaptcha(ctx, state)
	if challenge == nil {
		return nil
	}

	e.emit(ctx, state.job, models.EventCaptchaDetected, string(challenge.Type))
	e.logger.Info().
		Str("job_id", state.job.ID).
		Str("type", string(challenge.Type)).
		Msg("CAPTCHA detected")

	if e.solver == nil || !e.solver.Enabled() {
		return fmt.Errorf("CAPTCHA present but no solver configured")
	}

	answer, err := e.solver.Solve(ctx, challenge)
	if err != nil {
		return fmt.Errorf("CAPTCHA solve failed: %w", err)
	}

	return e.applyCaptchaAnswer(ctx, state, challenge, answer)
}

// detectCaptcha scans the page for known challenge markers and assembles the
// challenge descriptor.
func (e *Executor) detectCaptcha(ctx context.Context, state *runState) *interfaces.CaptchaChallenge {
	session := state.session

	for _, marker := range captchaMarkers {
		if ctx.Err() != nil {
			return nil
		}
		if !session.IsVisible(ctx, marker.selector) {
			continue
		}

		challenge := &interfaces.CaptchaChallenge{Type: marker.kind}

		if url, err := session.CurrentURL(ctx); err == nil {
			challenge.PageURL = url
		}

		switch marker.kind {
		case interfaces.CaptchaRecaptchaV2, interfaces.CaptchaHCaptcha:
			var siteKey string
			js := `(() => {
				const el = document.querySelector('[data-sitekey]');
				return el ? el.getAttribute('data-sitekey') : '';
			})()`
			if err := session.ExecuteScript(ctx, js, &siteKey); err != nil || siteKey == "" {
				e.logger.Debug().Str("selector", marker.selector).Msg("CAPTCHA widget has no readable site key")
				continue
			}
			challenge.SiteKey = siteKey

		case interfaces.CaptchaText:
			image, err := session.Screenshot(ctx)
			if err != nil {
				e.logger.Debug().Err(err).Msg("CAPTCHA screenshot failed")
				continue
			}
			challenge.Image = image
		}

		return challenge
	}
	return nil
}

// applyCaptchaAnswer injects the solved token or types the text answer.
func (e *Executor) applyCaptchaAnswer(ctx context.Context, state *runState, challenge *interfaces.CaptchaChallenge, answer string) error {
	session := state.session

	switch challenge.Type {
	case interfaces.CaptchaRecaptchaV2:
		return injectToken(ctx, session, "g-recaptcha-response", answer)
	case interfaces.CaptchaHCaptcha:
		return injectToken(ctx, session, "h-captcha-response", answer)
	case interfaces.CaptchaText:
		for _, selector := range []string{"input[name*='captcha']", "#captcha input", "input[id*='captcha']"} {
			if !session.IsVisible(ctx, selector) {
				continue
			}
			return session.Type(ctx, selector, answer, e.config.FieldTimeoutDuration())
		}
		return fmt.Errorf("no input found for text CAPTCHA answer")
	}
	return fmt.Errorf("unsupported CAPTCHA type: %s", challenge.Type)
}

// injectToken writes a solved widget token into its response textarea and
// fires change events so the widget's callback machinery notices.
func injectToken(ctx context.Context, session interfaces.BrowserSession, field, token string) error {
	js := fmt.Sprintf(`(() => {
		const areas = document.querySelectorAll('textarea[name="%s"], #%s');
		if (areas.length === 0) return false;
		for (const area of areas) {
			area.style.display = 'block';
			area.value = '%s';
			area.dispatchEvent(new Event('input', {bubbles: true}));
			area.dispatchEvent(new Event('change', {bubbles: true}));
		}
		return true;
	})()`, field, field, token)

	var ok bool
	if err := session.ExecuteScript(ctx, js, &ok); err != nil {
		return fmt.Errorf("token injection failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("no %s textarea on page", field)
	}
	return nil
}
