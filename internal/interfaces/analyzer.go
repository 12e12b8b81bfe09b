package interfaces

import (
	"context"

	"github.com/ternarybob/compleo/internal/models"
)

// FieldAnalyzer maps form HTML to field-plan entries using an external model.
// Failures are categorized and returned; implementations never panic on
// malformed responses.
type FieldAnalyzer interface {
	// AnalyzeForm returns ordered plan entries for the given form extract.
	// availableKeys is the canonical profile-key subset the active profile
	// can supply; entries referencing other keys are discarded.
	AnalyzeForm(ctx context.Context, formHTML string, availableKeys []string) ([]models.FieldEntry, error)

	// SolveImageText answers a simple text CAPTCHA from a cropped screenshot.
	SolveImageText(ctx context.Context, image []byte) (string, error)
}
