package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractFormHTML reduces a full page document to the HTML of its primary
// form, with noise elements removed, truncated to maxBytes. The primary form
// is the one with the most fillable controls; when the page has no form
// element the body is used instead.
func extractFormHTML(pageHTML string, maxBytes int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	doc.Find("script, style, svg, noscript, iframe, link, meta").Remove()

	target := doc.Find("body")
	best := -1
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		count := form.Find("input, select, textarea").Length()
		if count > best {
			best = count
			target = form
		}
	})

	html, err := goquery.OuterHtml(target)
	if err != nil {
		return "", fmt.Errorf("failed to serialize form HTML: %w", err)
	}

	html = strings.TrimSpace(html)
	if maxBytes > 0 && len(html) > maxBytes {
		html = html[:maxBytes]
	}
	return html, nil
}
