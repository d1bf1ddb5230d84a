package smoke

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/sitesmoke/internal/pages"
)

// DesktopUserAgent is sent by every smoke and monitor page.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Page is what a case attempt needs from a browser page.
type Page interface {
	pages.Driver
	Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error)
	OnConsole(fn func(playwright.ConsoleMessage))
	WaitForLoadState(options ...playwright.PageWaitForLoadStateOptions) error
}

// PageFactory opens an isolated page. release closes it and its context.
type PageFactory interface {
	NewPage() (page Page, release func(), err error)
}

// LaunchOptions configures Launch.
type LaunchOptions struct {
	Headed    bool
	Timeout   time.Duration
	UserAgent string
	// Install downloads the Chromium build playwright-go expects before
	// starting.
	Install bool
}

// Browser is a launched Chromium instance handing out fresh contexts.
type Browser struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	userAgent string
	timeoutMS float64
}

var _ PageFactory = (*Browser)(nil)

// Launch starts the playwright driver and a Chromium browser.
func Launch(opts LaunchOptions) (*Browser, error) {
	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("smoke: install browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("smoke: start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!opts.Headed),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("smoke: launch chromium: %w", err)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DesktopUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Browser{
		pw:        pw,
		browser:   browser,
		userAgent: ua,
		timeoutMS: float64(timeout.Milliseconds()),
	}, nil
}

// NewPage opens a page in a fresh context with the desktop user agent and
// default timeouts applied.
func (b *Browser) NewPage() (Page, func(), error) {
	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(b.userAgent),
		Viewport:  &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("smoke: new browser context: %w", err)
	}
	bctx.SetDefaultTimeout(b.timeoutMS)
	bctx.SetDefaultNavigationTimeout(b.timeoutMS)
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, nil, fmt.Errorf("smoke: new page: %w", err)
	}
	return page, func() { _ = bctx.Close() }, nil
}

// Close shuts the browser and the driver down.
func (b *Browser) Close() error {
	err := b.browser.Close()
	if stopErr := b.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}
