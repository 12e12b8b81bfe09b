package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
)

// visionFallback solves simple text CAPTCHAs from an image when no external
// provider is configured.
type visionFallback interface {
	SolveImageText(ctx context.Context, image []byte) (string, error)
}

// Solver implements interfaces.CaptchaSolver against a 2captcha-compatible
// HTTP API. Challenge submission and answer polling are two separate calls;
// polling is bounded by the configured max solve time.
type Solver struct {
	config   *common.CaptchaConfig
	client   *http.Client
	vision   visionFallback
	logger   arbor.ILogger
	interval time.Duration
	maxTime  time.Duration
}

// NewSolver wires the external solver client. The vision fallback may be nil.
func NewSolver(config *common.CaptchaConfig, vision visionFallback, logger arbor.ILogger) *Solver {
	return &Solver{
		config:   config,
		client:   &http.Client{Timeout: 30 * time.Second},
		vision:   vision,
		logger:   logger,
		interval: config.PollIntervalDuration(),
		maxTime:  config.MaxSolveTimeDuration(),
	}
}

// Enabled reports whether any solving path is available.
func (s *Solver) Enabled() bool {
	return s.config.ProviderKey != "" || s.vision != nil
}

// Solve resolves a challenge to a token (for widget CAPTCHAs) or the answer
// text (for text CAPTCHAs). It returns an error once the solve-time cap is
// reached or the provider rejects the challenge.
func (s *Solver) Solve(ctx context.Context, challenge *interfaces.CaptchaChallenge) (string, error) {
	if challenge == nil {
		return "", fmt.Errorf("no challenge provided")
	}

	// Text CAPTCHAs try the vision path first, provider as fallback
	if challenge.Type == interfaces.CaptchaText && s.vision != nil {
		answer, err := s.vision.SolveImageText(ctx, challenge.Image)
		if err == nil {
			return answer, nil
		}
		s.logger.Warn().Err(err).Msg("Vision CAPTCHA solve failed, trying external provider")
	}

	if s.config.ProviderKey == "" {
		return "", fmt.Errorf("no CAPTCHA provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.maxTime)
	defer cancel()

	taskID, err := s.submit(ctx, challenge)
	if err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("task_id", taskID).
		Str("type", string(challenge.Type)).
		Msg("CAPTCHA challenge submitted")

	return s.poll(ctx, taskID)
}

// submitResponse is the provider's response envelope for both endpoints.
type submitResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (s *Solver) submit(ctx context.Context, challenge *interfaces.CaptchaChallenge) (string, error) {
	form := url.Values{}
	form.Set("key", s.config.ProviderKey)
	form.Set("json", "1")

	switch challenge.Type {
	case interfaces.CaptchaRecaptchaV2:
		form.Set("method", "userrecaptcha")
		form.Set("googlekey", challenge.SiteKey)
		form.Set("pageurl", challenge.PageURL)
	case interfaces.CaptchaHCaptcha:
		form.Set("method", "hcaptcha")
		form.Set("sitekey", challenge.SiteKey)
		form.Set("pageurl", challenge.PageURL)
	case interfaces.CaptchaText:
		if len(challenge.Image) == 0 {
			return "", fmt.Errorf("text CAPTCHA has no image")
		}
		form.Set("method", "base64")
		form.Set("body", base64.StdEncoding.EncodeToString(challenge.Image))
	default:
		return "", fmt.Errorf("unsupported CAPTCHA type: %s", challenge.Type)
	}

	resp, err := s.post(ctx, s.endpoint("/in.php"), form)
	if err != nil {
		return "", fmt.Errorf("failed to submit CAPTCHA challenge: %w", err)
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("provider rejected challenge: %s", resp.Request)
	}
	return resp.Request, nil
}

func (s *Solver) poll(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("CAPTCHA solve timed out: %w", ctx.Err())
		case <-ticker.C:
		}

		query := url.Values{}
		query.Set("key", s.config.ProviderKey)
		query.Set("action", "get")
		query.Set("id", taskID)
		query.Set("json", "1")

		resp, err := s.get(ctx, s.endpoint("/res.php")+"?"+query.Encode())
		if err != nil {
			s.logger.Warn().Err(err).Str("task_id", taskID).Msg("CAPTCHA poll failed, retrying")
			continue
		}

		if resp.Status == 1 {
			return resp.Request, nil
		}
		if resp.Request == "CAPCHA_NOT_READY" {
			continue
		}
		return "", fmt.Errorf("provider failed to solve: %s", resp.Request)
	}
}

func (s *Solver) post(ctx context.Context, endpoint string, form url.Values) (*submitResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Solver) get(ctx context.Context, endpoint string) (*submitResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return s.do(req)
}

func (s *Solver) do(req *http.Request) (*submitResponse, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return &out, nil
}

func (s *Solver) endpoint(path string) string {
	base := strings.TrimSuffix(s.config.Endpoint, "/")
	if base == "" {
		base = "https://api.2captcha.com"
	}
	return base + path
}
