package pages

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kuitang/sitesmoke/internal/urlutil"
)

// ReferralHomePage is the referral site landing page.
type ReferralHomePage struct{ BasePage }

func NewReferralHomePage(page Driver) *ReferralHomePage {
	return &ReferralHomePage{NewBasePage(page)}
}

var referralCTASelectors = []string{
	`button:has-text("Refer")`,
	`button:has-text("Join")`,
	`button:has-text("Sign Up")`,
	`button:has-text("Register")`,
	`a[href*="register"]`,
	`a[href*="signup"]`,
	`a[href*="join"]`,
	`[class*="cta"]`,
	`[class*="button"]`,
	`button`,
}

func (p *ReferralHomePage) VerifyLoaded() error { return p.verifyLoaded() }

func (p *ReferralHomePage) HasCTA() (bool, error) {
	_, found, err := p.AnyPresent(referralCTASelectors)
	return found, err
}

// SignupPage is the referral signup form.
type SignupPage struct{ BasePage }

func NewSignupPage(page Driver) *SignupPage { return &SignupPage{NewBasePage(page)} }

func (p *SignupPage) VerifySignupForm() error { return p.verifyForm() }

// DealerPage is the dealer or partner landing page, which lives at one of
// several paths depending on the deployment.
type DealerPage struct{ BasePage }

func NewDealerPage(page Driver) *DealerPage { return &DealerPage{NewBasePage(page)} }

var dealerPaths = []string{"/dealer", "/dealers", "/partner", "/business"}

var dealerCTASelectors = []string{
	`button:has-text("Become a Dealer")`,
	`button:has-text("Partner")`,
	`button:has-text("Join")`,
	`button:has-text("Apply")`,
	`a[href*="dealer"]`,
	`a[href*="partner"]`,
	`a[href*="business"]`,
	`[class*="cta"]`,
	`[class*="button"]`,
}

// DealerURLs returns the candidate dealer page URLs under base, in the
// order they are tried.
func DealerURLs(base string) []string {
	out := make([]string, 0, len(dealerPaths))
	for _, p := range dealerPaths {
		out = append(out, urlutil.BuildAbsolute(base, p))
	}
	return out
}

// FindDealerPage visits each candidate URL and stops at the first one whose
// title does not look like a not-found page. It returns that URL.
func (p *DealerPage) FindDealerPage(base string) (string, error) {
	var errs []error
	for _, u := range DealerURLs(base) {
		if err := p.Goto(u); err != nil {
			errs = append(errs, err)
			continue
		}
		title, err := p.Title()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if LooksNotFound(title) {
			continue
		}
		return u, nil
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no dealer page under %s", ErrCheckFailed, base)
	}
	return "", fmt.Errorf("%w: no dealer page under %s: %w", ErrCheckFailed, base, errors.Join(errs...))
}

func (p *DealerPage) VerifyDealerCTA() error {
	return p.requireAny("dealer call to action", dealerCTASelectors)
}

// LooksNotFound reports whether a page title reads like a 404 page.
func LooksNotFound(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "404") || strings.Contains(t, "not found")
}

// NavigationPage checks header and footer links on the referral site.
type NavigationPage struct{ BasePage }

func NewNavigationPage(page Driver) *NavigationPage { return &NavigationPage{NewBasePage(page)} }

var navSelectors = []string{
	`nav a`,
	`header a`,
	`a[href*="/"]`,
	`[class*="nav"] a`,
	`[class*="menu"] a`,
}

func (p *NavigationPage) VerifyNavigationLinks() error {
	return p.requireAny("navigation link", navSelectors)
}

// VerifyFooterLinks requires a visible footer with at least one link.
func (p *NavigationPage) VerifyFooterLinks() error {
	n, err := p.page.Locator("footer").Count()
	if err != nil {
		return fmt.Errorf("count footer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no footer on %s", ErrCheckFailed, p.URL())
	}
	if err := p.waitVisible("footer"); err != nil {
		return err
	}
	links, err := p.page.Locator("footer a").Count()
	if err != nil {
		return fmt.Errorf("count footer links: %w", err)
	}
	if links == 0 {
		return fmt.Errorf("%w: footer on %s has no links", ErrCheckFailed, p.URL())
	}
	return nil
}
