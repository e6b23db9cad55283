package remote

import (
	"github.com/microsoft/playwright-python-sub003/connection"
)

// Playwright is the root object of a driver session. Its initializer
// references the three browser-type objects the driver created just before
// it, so the fields below are live proxies, resolved by the connection.
type Playwright struct {
	*connection.ChannelOwner

	Chromium *BrowserType
	Firefox  *BrowserType
	WebKit   *BrowserType
}

func newPlaywright(scope *connection.Scope, typ, guid string, initializer map[string]any) *Playwright {
	p := &Playwright{
		ChannelOwner: connection.NewChannelOwner(scope, typ, guid, initializer, false),
	}
	p.Chromium = browserTypeFrom(initializer["chromium"])
	p.Firefox = browserTypeFrom(initializer["firefox"])
	p.WebKit = browserTypeFrom(initializer["webkit"])
	return p
}

func browserTypeFrom(v any) *BrowserType {
	bt, _ := v.(*BrowserType)
	return bt
}
