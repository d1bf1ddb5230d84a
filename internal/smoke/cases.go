// Package smoke defines the smoke cases for the main and referral sites and
// runs them in a browser, producing a run report.
package smoke

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kuitang/sitesmoke/internal/errs"
	"github.com/kuitang/sitesmoke/internal/pages"
	"github.com/kuitang/sitesmoke/internal/urlutil"
)

// Site identifies the site a case runs against.
type Site string

const (
	SiteMain     Site = "main"
	SiteReferral Site = "ref"
)

// Module tags.
const (
	ModuleAuth       = "auth"
	ModuleCheckout   = "checkout"
	ModuleNavigation = "navigation"
	ModuleDealer     = "dealer"
	ModuleSocial     = "social"
)

// Env carries the site base URLs a case navigates to.
type Env struct {
	MainURL     string
	ReferralURL string
}

// CaseFunc runs one case against a page. A nil CaseFunc marks a case that is
// declared but not implemented yet; it is reported as skipped.
type CaseFunc func(d pages.Driver, env Env) error

// Case is one smoke test.
type Case struct {
	ID     string // M001, R004, ...
	Site   Site
	Module string
	Title  string
	Run    CaseFunc
}

// Number is the numeric part of the case ID.
func (c Case) Number() int {
	n, _ := strconv.Atoi(strings.TrimLeft(c.ID, "MR"))
	return n
}

// Tag returns the case's tag string.
func (c Case) Tag() string {
	return BuildTag(c.Site, c.Module, fmt.Sprintf("%03d", c.Number()))
}

// FullTitle is the title as it appears in reports and grep matching.
func (c Case) FullTitle() string {
	return c.ID + " " + c.Title + " [" + c.Tag() + "]"
}

// BuildTag returns the space separated tags for a case: the site module tag,
// the feature module tag when set, and the case number tag when set.
func BuildTag(site Site, module, caseID string) string {
	tags := []string{"@module:" + string(site)}
	if module != "" {
		tags = append(tags, "@module:"+strings.ToLower(module))
	}
	if caseID != "" {
		tags = append(tags, "@"+string(site)+":"+caseID)
	}
	return strings.Join(tags, " ")
}

// Tags splits Tag into its parts.
func (c Case) Tags() []string {
	return strings.Fields(c.Tag())
}

// Filter keeps the cases whose full title matches the regular expression
// pattern. An empty pattern keeps every case.
func Filter(cases []Case, pattern string) ([]Case, error) {
	if strings.TrimSpace(pattern) == "" {
		return cases, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "invalid grep pattern", err)
	}
	var out []Case
	for _, c := range cases {
		if re.MatchString(c.FullTitle()) {
			out = append(out, c)
		}
	}
	return out, nil
}

var errNoCTA = errors.New("no call to action found")

// Cases returns the registered smoke cases in run order.
func Cases() []Case {
	return []Case{
		{ID: "M001", Site: SiteMain, Title: "homepage loads with no missing content", Run: func(d pages.Driver, env Env) error {
			p := pages.NewHomePage(d)
			if err := p.Goto(env.MainURL); err != nil {
				return err
			}
			return p.VerifyLoaded()
		}},
		{ID: "M002", Site: SiteMain, Title: "homepage has calls to action", Run: func(d pages.Driver, env Env) error {
			p := pages.NewHomePage(d)
			if err := p.Goto(env.MainURL); err != nil {
				return err
			}
			return requireCTA(p.HasCTA())
		}},
		{ID: "M003", Site: SiteMain, Module: ModuleCheckout, Title: "guest can add to cart"},
		{ID: "M004", Site: SiteMain, Module: ModuleCheckout, Title: "guest checkout form is reachable", Run: func(d pages.Driver, env Env) error {
			p := pages.NewCheckoutPage(d)
			if err := p.Goto(urlutil.BuildAbsolute(env.MainURL, "/checkout")); err != nil {
				return err
			}
			return p.VerifyCheckoutElements()
		}},
		{ID: "M005", Site: SiteMain, Module: ModuleAuth, Title: "registration form loads", Run: func(d pages.Driver, env Env) error {
			p := pages.NewAuthPage(d)
			if err := p.Goto(urlutil.BuildAbsolute(env.MainURL, "/register")); err != nil {
				return err
			}
			return p.VerifyRegistrationForm()
		}},
		{ID: "M006", Site: SiteMain, Module: ModuleSocial, Title: "social login buttons appear", Run: socialLogin(func(env Env) string { return env.MainURL })},

		{ID: "R001", Site: SiteReferral, Title: "referral landing page loads", Run: func(d pages.Driver, env Env) error {
			p := pages.NewReferralHomePage(d)
			if err := p.Goto(env.ReferralURL); err != nil {
				return err
			}
			return p.VerifyLoaded()
		}},
		{ID: "R002", Site: SiteReferral, Title: "referral landing page has calls to action", Run: func(d pages.Driver, env Env) error {
			p := pages.NewReferralHomePage(d)
			if err := p.Goto(env.ReferralURL); err != nil {
				return err
			}
			return requireCTA(p.HasCTA())
		}},
		{ID: "R003", Site: SiteReferral, Module: ModuleAuth, Title: "signup form loads", Run: func(d pages.Driver, env Env) error {
			p := pages.NewSignupPage(d)
			if err := p.Goto(urlutil.BuildAbsolute(env.ReferralURL, "/signup")); err != nil {
				return err
			}
			return p.VerifySignupForm()
		}},
		{ID: "R004", Site: SiteReferral, Module: ModuleDealer, Title: "dealer page shows calls to action", Run: func(d pages.Driver, env Env) error {
			p := pages.NewDealerPage(d)
			if _, err := p.FindDealerPage(env.ReferralURL); err != nil {
				return err
			}
			return p.VerifyDealerCTA()
		}},
		{ID: "R005", Site: SiteReferral, Module: ModuleNavigation, Title: "navigation links are present", Run: func(d pages.Driver, env Env) error {
			p := pages.NewNavigationPage(d)
			if err := p.Goto(env.ReferralURL); err != nil {
				return err
			}
			return p.VerifyNavigationLinks()
		}},
		{ID: "R006", Site: SiteReferral, Module: ModuleNavigation, Title: "footer links are present", Run: func(d pages.Driver, env Env) error {
			p := pages.NewNavigationPage(d)
			if err := p.Goto(env.ReferralURL); err != nil {
				return err
			}
			return p.VerifyFooterLinks()
		}},
		{ID: "R007", Site: SiteReferral, Module: ModuleSocial, Title: "social login buttons appear", Run: socialLogin(func(env Env) string { return env.ReferralURL })},
	}
}

func socialLogin(base func(Env) string) CaseFunc {
	return func(d pages.Driver, env Env) error {
		p := pages.NewAuthPage(d)
		if err := p.Goto(urlutil.BuildAbsolute(base(env), "/login")); err != nil {
			return err
		}
		return p.VerifySocialLoginButtons()
	}
}

func requireCTA(found bool, err error) error {
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %w", pages.ErrCheckFailed, errNoCTA)
	}
	return nil
}
