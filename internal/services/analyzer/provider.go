package analyzer

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
)

// completer abstracts the model provider behind the analyzer. Both providers
// return raw completion text; parsing and validation happen in the service.
type completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	CompleteVision(ctx context.Context, prompt string, image []byte) (string, error)
}

// NewFromConfig builds a field analyzer for the configured provider.
func NewFromConfig(config *common.AIConfig, logger arbor.ILogger) (interfaces.FieldAnalyzer, error) {
	var (
		c   completer
		err error
	)

	switch config.Provider {
	case common.AIProviderClaude, "":
		c, err = newClaudeCompleter(config, logger)
	case common.AIProviderGemini:
		c, err = newGeminiCompleter(config, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", config.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewService(config, c, logger), nil
}
