package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFormHTML_PicksLargestForm(t *testing.T) {
	page := `<html><body>
		<form id="search"><input name="q"></form>
		<form id="signup">
			<input name="email"><input name="password"><select name="country"></select>
		</form>
	</body></html>`

	html, err := extractFormHTML(page, 0)
	require.NoError(t, err)
	assert.Contains(t, html, `id="signup"`)
	assert.NotContains(t, html, `id="search"`)
}

func TestExtractFormHTML_StripsNoise(t *testing.T) {
	page := `<html><body><form>
		<script>alert('x')</script>
		<style>.a{}</style>
		<input name="email">
	</form></body></html>`

	html, err := extractFormHTML(page, 0)
	require.NoError(t, err)
	assert.NotContains(t, html, "script")
	assert.NotContains(t, html, "style")
	assert.Contains(t, html, `name="email"`)
}

func TestExtractFormHTML_FallsBackToBody(t *testing.T) {
	page := `<html><body><div><input name="email"></div></body></html>`

	html, err := extractFormHTML(page, 0)
	require.NoError(t, err)
	assert.Contains(t, html, `name="email"`)
}

func TestExtractFormHTML_Truncates(t *testing.T) {
	page := `<html><body><form><input name="` + strings.Repeat("x", 500) + `"></form></body></html>`

	html, err := extractFormHTML(page, 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(html), 100)
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `'#email'`, jsString("#email"))
	assert.Equal(t, `'input[name=\'q\']'`, jsString("input[name='q']"))
	assert.Equal(t, `'a\\b'`, jsString(`a\b`))
}
