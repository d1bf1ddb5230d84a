package pages

import (
	"errors"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLocator answers the handful of Locator calls page objects make.
type fakeLocator struct {
	playwright.Locator
	count   int
	visible bool
	text    string
	waitErr error
	clicked int
}

func (l *fakeLocator) Count() (int, error)       { return l.count, nil }
func (l *fakeLocator) First() playwright.Locator { return l }
func (l *fakeLocator) IsVisible(...playwright.LocatorIsVisibleOptions) (bool, error) {
	return l.visible, nil
}
func (l *fakeLocator) TextContent(...playwright.LocatorTextContentOptions) (string, error) {
	return l.text, nil
}
func (l *fakeLocator) WaitFor(...playwright.LocatorWaitForOptions) error { return l.waitErr }
func (l *fakeLocator) Click(...playwright.LocatorClickOptions) error {
	l.clicked++
	return nil
}

type fakeDriver struct {
	locators map[string]*fakeLocator
	titles   map[string]string
	gotoErr  map[string]error
	visited  []string
	current  string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		locators: map[string]*fakeLocator{},
		titles:   map[string]string{},
		gotoErr:  map[string]error{},
	}
}

func (d *fakeDriver) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	d.visited = append(d.visited, url)
	if err := d.gotoErr[url]; err != nil {
		return nil, err
	}
	d.current = url
	return nil, nil
}

func (d *fakeDriver) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	if l, ok := d.locators[selector]; ok {
		return l
	}
	return &fakeLocator{}
}

func (d *fakeDriver) Title() (string, error) { return d.titles[d.current], nil }
func (d *fakeDriver) URL() string            { return d.current }

func (d *fakeDriver) with(selector string, l *fakeLocator) *fakeDriver {
	d.locators[selector] = l
	return d
}

func TestAnyPresent_FirstMatchWins(t *testing.T) {
	d := newFakeDriver().
		with(`a[href*="shop"]`, &fakeLocator{count: 2}).
		with(`[class*="cta"]`, &fakeLocator{count: 1})
	got, found, err := NewBasePage(d).AnyPresent(mainCTASelectors)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `a[href*="shop"]`, got)

	_, found, err = NewBasePage(newFakeDriver()).AnyPresent(mainCTASelectors)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHomePage_VerifyLoaded(t *testing.T) {
	long := strings.Repeat("Fresh furniture for every room. ", 5)
	ok := newFakeDriver().with("body", &fakeLocator{count: 1, visible: true, text: long})
	assert.NoError(t, NewHomePage(ok).VerifyLoaded())

	notFound := newFakeDriver().with("body", &fakeLocator{count: 1, text: "Page Not Found. " + long})
	err := NewHomePage(notFound).VerifyLoaded()
	assert.ErrorIs(t, err, ErrCheckFailed)

	short := newFakeDriver().with("body", &fakeLocator{count: 1, text: "hi"})
	assert.ErrorIs(t, NewHomePage(short).VerifyLoaded(), ErrCheckFailed)

	timeout := errors.New("timeout")
	hidden := newFakeDriver().with("body", &fakeLocator{waitErr: timeout})
	err = NewHomePage(hidden).VerifyLoaded()
	assert.ErrorIs(t, err, timeout)
	assert.NotErrorIs(t, err, ErrCheckFailed)
}

func TestAuthPage_Checks(t *testing.T) {
	d := newFakeDriver().
		with("form", &fakeLocator{count: 1, visible: true}).
		with(formFields, &fakeLocator{count: 3})
	a := NewAuthPage(d)
	assert.NoError(t, a.VerifyRegistrationForm())
	assert.ErrorIs(t, a.VerifySocialLoginButtons(), ErrCheckFailed)

	d.with(`a[href*="google"]`, &fakeLocator{count: 1})
	assert.NoError(t, a.VerifySocialLoginButtons())

	empty := newFakeDriver().with("form", &fakeLocator{count: 1})
	assert.ErrorIs(t, NewCheckoutPage(empty).VerifyCheckoutElements(), ErrCheckFailed)
}

func TestDealerPage_FindsFirstRealPage(t *testing.T) {
	base := "https://refer.example.com/"
	d := newFakeDriver()
	d.gotoErr[base[:len(base)-1]+"/dealer"] = errors.New("net::ERR_ABORTED")
	d.titles["https://refer.example.com/dealers"] = "404 - Page Not Found"
	d.titles["https://refer.example.com/partner"] = "Partner with us"

	p := NewDealerPage(d)
	got, err := p.FindDealerPage(base)
	require.NoError(t, err)
	assert.Equal(t, "https://refer.example.com/partner", got)
	assert.Len(t, d.visited, 3)
}

func TestDealerPage_NoneFound(t *testing.T) {
	d := newFakeDriver()
	for _, u := range DealerURLs("https://r.example.com") {
		d.titles[u] = "Not Found"
	}
	_, err := NewDealerPage(d).FindDealerPage("https://r.example.com")
	assert.ErrorIs(t, err, ErrCheckFailed)
}

func TestNavigationPage_FooterLinks(t *testing.T) {
	none := newFakeDriver()
	assert.ErrorIs(t, NewNavigationPage(none).VerifyFooterLinks(), ErrCheckFailed)

	noLinks := newFakeDriver().with("footer", &fakeLocator{count: 1, visible: true})
	assert.ErrorIs(t, NewNavigationPage(noLinks).VerifyFooterLinks(), ErrCheckFailed)

	ok := newFakeDriver().
		with("footer", &fakeLocator{count: 1, visible: true}).
		with("footer a", &fakeLocator{count: 4})
	assert.NoError(t, NewNavigationPage(ok).VerifyFooterLinks())
	assert.NoError(t, NewNavigationPage(ok.with("nav a", &fakeLocator{count: 1})).VerifyNavigationLinks())
}

func TestReferralHomePage_HasCTA(t *testing.T) {
	d := newFakeDriver().with(`button`, &fakeLocator{count: 1})
	found, err := NewReferralHomePage(d).HasCTA()
	require.NoError(t, err)
	assert.True(t, found)
}

func TestBasePage_Click(t *testing.T) {
	l := &fakeLocator{count: 1}
	d := newFakeDriver().with("#go", l)
	require.NoError(t, NewBasePage(d).Click("#go"))
	assert.Equal(t, 1, l.clicked)
}

func TestLooksNotFound(t *testing.T) {
	assert.True(t, LooksNotFound("404"))
	assert.True(t, LooksNotFound("Page not found"))
	assert.False(t, LooksNotFound("Dealers"))
}
