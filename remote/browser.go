package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/microsoft/playwright-python-sub003/connection"
)

// BrowserType launches browser instances of one engine (chromium, firefox or
// webkit).
type BrowserType struct {
	*connection.ChannelOwner
}

func newBrowserType(scope *connection.Scope, typ, guid string, initializer map[string]any) *BrowserType {
	return &BrowserType{ChannelOwner: connection.NewChannelOwner(scope, typ, guid, initializer, false)}
}

func (bt *BrowserType) Name() string {
	name, _ := bt.Initializer()["name"].(string)
	return name
}

func (bt *BrowserType) ExecutablePath() string {
	p, _ := bt.Initializer()["executablePath"].(string)
	return p
}

// Launch starts a browser instance. options are passed through to the driver
// verbatim.
func (bt *BrowserType) Launch(ctx context.Context, options map[string]any) (*Browser, error) {
	result, err := bt.Channel().Send(ctx, "launch", options)
	if err != nil {
		return nil, err
	}
	browser, ok := result.(*Browser)
	if !ok {
		return nil, fmt.Errorf("launch returned %T, expected a browser", result)
	}
	return browser, nil
}

// Browser anchors a scope: every context, page and handle created under it is
// disposed when the browser goes away, locally or remotely.
type Browser struct {
	*connection.ChannelOwner
}

func newBrowser(scope *connection.Scope, typ, guid string, initializer map[string]any) *Browser {
	b := &Browser{ChannelOwner: connection.NewChannelOwner(scope, typ, guid, initializer, true)}
	b.Once("close", func(any) {
		b.Scope().Dispose()
	})
	return b
}

// NewContext creates an isolated browsing context.
func (b *Browser) NewContext(ctx context.Context, options map[string]any) (*BrowserContext, error) {
	result, err := b.Channel().Send(ctx, "newContext", options)
	if err != nil {
		return nil, err
	}
	bc, ok := result.(*BrowserContext)
	if !ok {
		return nil, fmt.Errorf("newContext returned %T, expected a browser context", result)
	}
	return bc, nil
}

// Close shuts the browser down. Closing an already-closed browser is a no-op:
// the close event races with the call and may dispose the handle first.
func (b *Browser) Close(ctx context.Context) error {
	_, err := b.Channel().Send(ctx, "close", nil)
	if err != nil && !errors.Is(err, connection.ErrStaleReference) {
		return err
	}
	return nil
}
