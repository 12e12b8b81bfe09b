package analyzer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
)

// claudeCompleter backs the analyzer with the Anthropic Claude API.
type claudeCompleter struct {
	client    *anthropic.Client
	config    *common.AIConfig
	logger    arbor.ILogger
	maxTokens int
}

func newClaudeCompleter(config *common.AIConfig, logger arbor.ILogger) (*claudeCompleter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or ai.api_key in config)")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(config.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	logger.Debug().
		Str("model", config.Model).
		Float32("temperature", config.Temperature).
		Msg("Claude analyzer provider initialized")

	return &claudeCompleter{
		client:    &client,
		config:    config,
		logger:    logger,
		maxTokens: maxTokens,
	}, nil
}

func (c *claudeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(float64(c.config.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	return extractClaudeText(resp)
}

func (c *claudeCompleter) CompleteVision(ctx context.Context, prompt string, image []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", encoded),
				anthropic.NewTextBlock(prompt),
			),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude vision call failed: %w", err)
	}

	return extractClaudeText(resp)
}

func extractClaudeText(resp *anthropic.Message) (string, error) {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return text.String(), nil
}
