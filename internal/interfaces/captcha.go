package interfaces

import "context"

// CaptchaType identifies the challenge family detected on a page.
type CaptchaType string

const (
	CaptchaRecaptchaV2 CaptchaType = "recaptcha_v2"
	CaptchaHCaptcha    CaptchaType = "hcaptcha"
	CaptchaText        CaptchaType = "text"
)

// CaptchaChallenge describes a detected challenge.
type CaptchaChallenge struct {
	Type    CaptchaType
	SiteKey string
	PageURL string
	Image   []byte // populated for text CAPTCHAs
}

// CaptchaSolver resolves challenges through an external provider. Solve never
// blocks beyond the configured max solve time.
type CaptchaSolver interface {
	Solve(ctx context.Context, challenge *CaptchaChallenge) (string, error)
	Enabled() bool
}
