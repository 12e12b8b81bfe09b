package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/interfaces"
)

// Driver implements interfaces.Browser on top of chromedp. Every Open call
// launches a dedicated Chrome instance so concurrent jobs never share state
// (cookies, storage, or navigation).
type Driver struct {
	logger arbor.ILogger
}

// NewDriver creates a chromedp-backed browser driver.
func NewDriver(logger arbor.ILogger) *Driver {
	return &Driver{logger: logger}
}

// Open launches a browser, navigates to url, and returns the live session.
// The caller owns the session and must Close it.
func (d *Driver) Open(ctx context.Context, url string, opts interfaces.OpenOptions) (interfaces.BrowserSession, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Undetected {
		allocatorOpts = append(allocatorOpts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("exclude-switches", "enable-automation"),
			chromedp.Flag("disable-infobars", true),
		)
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	cleanup := func() {
		browserCancel()
		allocatorCancel()
	}

	// Startup check before navigating anywhere real
	startupCtx, startupCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer startupCancel()
	if err := chromedp.Run(startupCtx, chromedp.Navigate("about:blank")); err != nil {
		cleanup()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	if opts.Undetected {
		// Registered on-new-document so the mask runs before any page script
		err := chromedp.Run(startupCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(maskWebdriverJS).Do(ctx)
			return err
		}))
		if err != nil {
			d.logger.Debug().Err(err).Msg("Failed to mask webdriver flag")
		}
	}

	navCtx, navCancel := mergeDeadline(browserCtx, ctx)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		cleanup()
		return nil, fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	d.logger.Debug().Str("url", url).Bool("headless", opts.Headless).Msg("Browser session opened")

	return &session{
		browserCtx: browserCtx,
		cleanup:    cleanup,
		logger:     d.logger,
	}, nil
}

const maskWebdriverJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// mergeDeadline derives a child of browserCtx that is cancelled when the
// caller's ctx ends. chromedp actions must run on the browser context chain,
// so the caller's context cannot be passed to chromedp.Run directly.
func mergeDeadline(browserCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(browserCtx)
	if deadline, ok := callerCtx.Deadline(); ok {
		merged, cancel = context.WithDeadline(browserCtx, deadline)
	}

	stop := context.AfterFunc(callerCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
