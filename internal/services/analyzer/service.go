package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/models"
	"golang.org/x/time/rate"
)

const fieldMappingSystemPrompt = `You map web form fields to user profile keys.
Given an HTML extract of a form and a list of available profile keys, respond
with ONLY a JSON array. Each element must be an object with exactly these
fields:
  "selector": a CSS selector that uniquely identifies the input,
  "profile_field": one of the provided profile keys,
  "field_kind": one of text, email, password, select, checkbox, radio, dob_day, dob_month, dob_year,
  "confidence": a number between 0 and 1.
Order elements top-to-bottom as they appear in the form. Do not include
markdown, commentary, or fields not present in the HTML.`

const captchaVisionPrompt = `Read the distorted text in this CAPTCHA image.
Respond with only the characters, no explanation.`

// Service implements interfaces.FieldAnalyzer on top of a model provider.
// Calls are rate limited and bounded by the configured timeout; every failure
// is categorized and returned, never panicked.
type Service struct {
	config   *common.AIConfig
	provider completer
	logger   arbor.ILogger
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewService wires a provider into the analyzer.
func NewService(config *common.AIConfig, provider completer, logger arbor.ILogger) *Service {
	var limiter *rate.Limiter
	if config.RateLimit != "" {
		if interval, err := time.ParseDuration(config.RateLimit); err == nil && interval > 0 {
			limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}

	return &Service{
		config:   config,
		provider: provider,
		logger:   logger,
		limiter:  limiter,
		timeout:  config.TimeoutDuration(),
	}
}

// AnalyzeForm asks the model for a field plan over the supplied form HTML.
// The HTML is truncated to the configured byte budget; entries with unknown
// profile keys are discarded and low-confidence entries are dropped but logged.
func (s *Service) AnalyzeForm(ctx context.Context, formHTML string, availableKeys []string) ([]models.FieldEntry, error) {
	if strings.TrimSpace(formHTML) == "" {
		return nil, fmt.Errorf("form HTML is empty")
	}
	if len(availableKeys) == 0 {
		return nil, fmt.Errorf("no profile keys available for analysis")
	}

	maxBytes := s.config.MaxHTMLBytes
	if maxBytes <= 0 {
		maxBytes = 5000
	}
	if len(formHTML) > maxBytes {
		formHTML = formHTML[:maxBytes]
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Available profile keys: %s\n\nForm HTML:\n%s",
		strings.Join(availableKeys, ", "), formHTML)

	start := time.Now()
	raw, err := s.provider.Complete(timeoutCtx, fieldMappingSystemPrompt, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Field analysis call failed")
		return nil, fmt.Errorf("field analysis failed: %w", err)
	}

	entries, discarded, err := parseFieldEntries(raw, availableKeys, s.minConfidence())
	if err != nil {
		s.logger.Warn().Err(err).Int("response_length", len(raw)).Msg("Field analysis response rejected")
		return nil, fmt.Errorf("invalid analyzer response: %w", err)
	}

	for _, d := range discarded {
		s.logger.Debug().
			Str("selector", d.Selector).
			Str("profile_key", d.ProfileKey).
			Float64("confidence", d.Confidence).
			Msg("Discarded low-confidence analyzer entry")
	}

	s.logger.Info().
		Int("entries", len(entries)).
		Int("discarded", len(discarded)).
		Dur("duration", time.Since(start)).
		Msg("Field analysis completed")

	return entries, nil
}

// SolveImageText answers a simple text CAPTCHA from a cropped screenshot.
func (s *Service) SolveImageText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("captcha image is empty")
	}

	if err := s.wait(ctx); err != nil {
		return "", err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.provider.CompleteVision(timeoutCtx, captchaVisionPrompt, image)
	if err != nil {
		return "", fmt.Errorf("captcha vision call failed: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("captcha vision returned empty answer")
	}
	return answer, nil
}

func (s *Service) minConfidence() float64 {
	if s.config.MinConfidence > 0 {
		return s.config.MinConfidence
	}
	return 0.5
}

func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return nil
}
