package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/microsoft/playwright-python-sub003/connection"
)

// BrowserContext is an isolated browsing session within a browser. It anchors
// a scope: pages, frames and handles created within it share its lifetime.
type BrowserContext struct {
	*connection.ChannelOwner
}

func newBrowserContext(scope *connection.Scope, typ, guid string, initializer map[string]any) *BrowserContext {
	bc := &BrowserContext{ChannelOwner: connection.NewChannelOwner(scope, typ, guid, initializer, true)}
	bc.Once("close", func(any) {
		bc.Scope().Dispose()
	})
	return bc
}

// NewPage opens a page in this context.
func (bc *BrowserContext) NewPage(ctx context.Context) (*Page, error) {
	result, err := bc.Channel().Send(ctx, "newPage", nil)
	if err != nil {
		return nil, err
	}
	page, ok := result.(*Page)
	if !ok {
		return nil, fmt.Errorf("newPage returned %T, expected a page", result)
	}
	return page, nil
}

// Close closes the context and every page in it.
func (bc *BrowserContext) Close(ctx context.Context) error {
	_, err := bc.Channel().Send(ctx, "close", nil)
	if err != nil && !errors.Is(err, connection.ErrStaleReference) {
		return err
	}
	return nil
}
