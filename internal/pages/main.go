package pages

// HomePage is the commerce site landing page.
type HomePage struct{ BasePage }

func NewHomePage(page Driver) *HomePage { return &HomePage{NewBasePage(page)} }

var mainCTASelectors = []string{
	`button`,
	`a[href*="register"]`,
	`a[href*="login"]`,
	`a[href*="shop"]`,
	`a[href*="product"]`,
	`[class*="cta"]`,
	`[class*="button"]`,
}

func (p *HomePage) VerifyLoaded() error { return p.verifyLoaded() }

// HasCTA reports whether any call-to-action element is present.
func (p *HomePage) HasCTA() (bool, error) {
	_, found, err := p.AnyPresent(mainCTASelectors)
	return found, err
}

// AuthPage covers registration and login.
type AuthPage struct{ BasePage }

func NewAuthPage(page Driver) *AuthPage { return &AuthPage{NewBasePage(page)} }

var socialLoginSelectors = []string{
	`button:has-text("Google")`,
	`button:has-text("Facebook")`,
	`button:has-text("LinkedIn")`,
	`a[href*="google"]`,
	`a[href*="facebook"]`,
	`a[href*="linkedin"]`,
	`[class*="google"]`,
	`[class*="facebook"]`,
	`[class*="linkedin"]`,
}

func (p *AuthPage) VerifyRegistrationForm() error { return p.verifyForm() }

func (p *AuthPage) VerifySocialLoginButtons() error {
	return p.requireAny("social login button", socialLoginSelectors)
}

// CheckoutPage is the guest checkout form.
type CheckoutPage struct{ BasePage }

func NewCheckoutPage(page Driver) *CheckoutPage { return &CheckoutPage{NewBasePage(page)} }

func (p *CheckoutPage) VerifyCheckoutElements() error { return p.verifyForm() }
