package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/compleo/internal/models"
)

// OpenOptions controls how a browser session is opened.
type OpenOptions struct {
	Undetected bool   // apply automation-masking flags
	Headless   bool
	UserAgent  string
}

// SelectMode chooses how a select value is matched.
type SelectMode string

const (
	SelectByText  SelectMode = "text"  // visible option text, exact
	SelectByValue SelectMode = "value" // option value attribute
	SelectByFuzzy SelectMode = "fuzzy" // case-insensitive contains over options
	SelectByIndex SelectMode = "index"
)

// Browser abstracts a real browser driver. One session is exclusively owned
// by one worker for the duration of a job.
type Browser interface {
	Open(ctx context.Context, url string, opts OpenOptions) (BrowserSession, error)
}

// BrowserSession is a live page the pipeline drives. All methods honor the
// supplied context for cancellation; waits are bounded by the timeout args.
type BrowserSession interface {
	WaitReady(ctx context.Context, timeout time.Duration) error
	QueryFields(ctx context.Context) ([]models.FieldDescriptor, error)
	FormHTML(ctx context.Context, maxBytes int) (string, error)
	Type(ctx context.Context, selector, value string, timeout time.Duration) error
	Select(ctx context.Context, selector, value string, mode SelectMode) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	IsVisible(ctx context.Context, selector string) bool
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	ExecuteScript(ctx context.Context, js string, out interface{}) error
	Close() error
}
