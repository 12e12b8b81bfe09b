package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// session is a live page owned by a single pipeline worker.
type session struct {
	browserCtx context.Context
	cleanup    func()
	logger     arbor.ILogger
}

// WaitReady blocks until document.readyState is complete or the timeout hits.
func (s *session) WaitReady(ctx context.Context, timeout time.Duration) error {
	runCtx, cancel := s.run(ctx, timeout)
	defer cancel()

	for {
		var state string
		if err := chromedp.Run(runCtx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return fmt.Errorf("readiness check failed: %w", err)
		}
		if state == "complete" {
			return nil
		}
		select {
		case <-runCtx.Done():
			return fmt.Errorf("page never became ready: %w", runCtx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// QueryFields enumerates fillable controls on the current page.
func (s *session) QueryFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	runCtx, cancel := s.run(ctx, 15*time.Second)
	defer cancel()

	var fields []models.FieldDescriptor
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fieldExtractionJS, &fields)); err != nil {
		return nil, fmt.Errorf("field extraction failed: %w", err)
	}
	return fields, nil
}

// FormHTML returns a cleaned extract of the page's primary form, bounded to
// maxBytes. The full document is pulled once and reduced locally.
func (s *session) FormHTML(ctx context.Context, maxBytes int) (string, error) {
	runCtx, cancel := s.run(ctx, 15*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}

	return extractFormHTML(html, maxBytes)
}

// Type clears the field and types the value into it.
func (s *session) Type(ctx context.Context, selector, value string, timeout time.Duration) error {
	runCtx, cancel := s.run(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

// Select picks an option on a select element. The value is matched per mode;
// input and change events are dispatched so framework listeners fire.
func (s *session) Select(ctx context.Context, selector, value string, mode interfaces.SelectMode) error {
	runCtx, cancel := s.run(ctx, 10*time.Second)
	defer cancel()

	js := fmt.Sprintf(selectOptionJS, jsString(selector), jsString(value), jsString(string(mode)))

	var ok bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &ok)); err != nil {
		return fmt.Errorf("select on %s failed: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("no option matching %q on %s (mode %s)", value, selector, mode)
	}
	return nil
}

// Click waits for the element and clicks it.
func (s *session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.run(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// IsVisible reports whether the selector matches a rendered element.
func (s *session) IsVisible(ctx context.Context, selector string) bool {
	runCtx, cancel := s.run(ctx, 3*time.Second)
	defer cancel()

	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return !!el && el.offsetParent !== null; })()`,
		jsString(selector))

	var visible bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &visible)); err != nil {
		return false
	}
	return visible
}

// CurrentURL returns the page's current location.
func (s *session) CurrentURL(ctx context.Context) (string, error) {
	runCtx, cancel := s.run(ctx, 5*time.Second)
	defer cancel()

	var url string
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return url, nil
}

// Screenshot captures the viewport as PNG.
func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.run(ctx, 15*time.Second)
	defer cancel()

	var image []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&image)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return image, nil
}

// ExecuteScript evaluates js on the page, decoding the result into out.
func (s *session) ExecuteScript(ctx context.Context, js string, out interface{}) error {
	runCtx, cancel := s.run(ctx, 15*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("script execution failed: %w", err)
	}
	return nil
}

// Close tears down the browser instance.
func (s *session) Close() error {
	s.cleanup()
	return nil
}

// run derives a bounded chromedp-compatible context honoring the caller's ctx.
func (s *session) run(callerCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(callerCtx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// jsString quotes a Go string as a JS string literal.
func jsString(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", ``)
	return "'" + replacer.Replace(s) + "'"
}

const selectOptionJS = `(() => {
	const el = document.querySelector(%s);
	if (!el || el.tagName !== 'SELECT') return false;
	const want = %s;
	const mode = %s;
	let index = -1;
	for (let i = 0; i < el.options.length; i++) {
		const opt = el.options[i];
		if (mode === 'text' && opt.text.trim() === want) { index = i; break; }
		if (mode === 'value' && opt.value === want) { index = i; break; }
		if (mode === 'fuzzy' && opt.text.toLowerCase().includes(want.toLowerCase())) { index = i; break; }
		if (mode === 'index' && String(i) === want) { index = i; break; }
	}
	if (index < 0) return false;
	el.selectedIndex = index;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})()`

const fieldExtractionJS = `(() => {
	const labelFor = (el) => {
		if (el.id) {
			const lbl = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (lbl) return lbl.textContent.trim();
		}
		const parent = el.closest('label');
		if (parent) return parent.textContent.trim();
		return '';
	};
	const fields = [];
	for (const el of document.querySelectorAll('input, select, textarea')) {
		const type = (el.type || '').toLowerCase();
		if (type === 'hidden') continue;
		const field = {
			tag: el.tagName.toLowerCase(),
			type: type,
			name: el.name || '',
			id: el.id || '',
			label: labelFor(el),
			placeholder: el.placeholder || '',
			aria_label: el.getAttribute('aria-label') || '',
			autocomplete: el.getAttribute('autocomplete') || '',
			visible: el.offsetParent !== null,
			disabled: el.disabled || el.readOnly === true
		};
		if (el.tagName === 'SELECT') {
			field.options = Array.from(el.options).map(o => o.text.trim()).filter(t => t);
		}
		fields.push(field);
	}
	return fields;
})()`
