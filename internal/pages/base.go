// Package pages wraps site pages for the smoke suite. Each page object is a
// thin layer over the browser: navigate, then look for one of a list of
// selectors.
package pages

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// ErrCheckFailed marks a page check that ran to completion and did not find
// what it expected, as opposed to a navigation or browser error.
var ErrCheckFailed = errors.New("page check failed")

// Driver is the subset of playwright.Page the page objects use.
type Driver interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	Locator(selector string, options ...playwright.PageLocatorOptions) playwright.Locator
	Title() (string, error)
	URL() string
}

var _ Driver = (playwright.Page)(nil)

// BasePage holds the shared navigation and query helpers. Waits use the
// page's default timeout.
type BasePage struct {
	page Driver
}

// NewBasePage wraps page.
func NewBasePage(page Driver) BasePage {
	return BasePage{page: page}
}

// Goto navigates and waits for DOMContentLoaded.
func (b BasePage) Goto(url string) error {
	_, err := b.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

// IsVisible reports whether the first element matching selector is visible.
func (b BasePage) IsVisible(selector string) (bool, error) {
	return b.page.Locator(selector).First().IsVisible()
}

// Click clicks the first element matching selector.
func (b BasePage) Click(selector string) error {
	return b.page.Locator(selector).First().Click()
}

// Title returns the document title.
func (b BasePage) Title() (string, error) {
	return b.page.Title()
}

// URL returns the current page URL.
func (b BasePage) URL() string {
	return b.page.URL()
}

// AnyPresent returns the first selector that matches at least one element.
// found is false when none match.
func (b BasePage) AnyPresent(selectors []string) (matched string, found bool, err error) {
	for _, sel := range selectors {
		n, err := b.page.Locator(sel).Count()
		if err != nil {
			return "", false, fmt.Errorf("count %q: %w", sel, err)
		}
		if n > 0 {
			return sel, true, nil
		}
	}
	return "", false, nil
}

// requireAny fails with ErrCheckFailed naming what when no selector matches.
func (b BasePage) requireAny(what string, selectors []string) error {
	_, found, err := b.AnyPresent(selectors)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no %s found on %s", ErrCheckFailed, what, b.page.URL())
	}
	return nil
}

// waitVisible waits for the first match of selector to become visible.
func (b BasePage) waitVisible(selector string) error {
	err := b.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

var (
	blockedContent = regexp.MustCompile(`(?i)404|not found|unavailable|forbidden|blocked`)
	formFields     = `input[type="text"], input[type="email"], input[type="password"]`
)

const minBodyText = 50

// verifyLoaded checks the body is visible, carries real text and does not
// read like an error page.
func (b BasePage) verifyLoaded() error {
	if err := b.waitVisible("body"); err != nil {
		return err
	}
	text, err := b.page.Locator("body").TextContent()
	if err != nil {
		return fmt.Errorf("read body text: %w", err)
	}
	if m := blockedContent.FindString(text); m != "" {
		return fmt.Errorf("%w: %s shows blocked content %q", ErrCheckFailed, b.page.URL(), m)
	}
	if n := len(strings.TrimSpace(text)); n <= minBodyText {
		return fmt.Errorf("%w: %s body has %d characters of text", ErrCheckFailed, b.page.URL(), n)
	}
	return nil
}

// verifyForm checks a form is visible and has at least one text-like field.
func (b BasePage) verifyForm() error {
	if err := b.waitVisible("form"); err != nil {
		return err
	}
	n, err := b.page.Locator(formFields).Count()
	if err != nil {
		return fmt.Errorf("count form fields: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: form on %s has no input fields", ErrCheckFailed, b.page.URL())
	}
	return nil
}
