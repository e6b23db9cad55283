package remote

import (
	"context"
	"fmt"

	"github.com/microsoft/playwright-python-sub003/connection"
)

// Page is a single tab. Navigation and input verbs live on its frames; the
// page-level helpers delegate to the main frame, which arrives as a resolved
// reference in the initializer.
type Page struct {
	*connection.ChannelOwner

	mainFrame *Frame
}

func newPage(scope *connection.Scope, typ, guid string, initializer map[string]any) *Page {
	p := &Page{ChannelOwner: connection.NewChannelOwner(scope, typ, guid, initializer, false)}
	p.mainFrame, _ = initializer["mainFrame"].(*Frame)
	if p.mainFrame != nil {
		p.mainFrame.page = p
	}
	return p
}

func (p *Page) MainFrame() *Frame { return p.mainFrame }

func (p *Page) Goto(ctx context.Context, url string, options map[string]any) (any, error) {
	frame, err := p.frame()
	if err != nil {
		return nil, err
	}
	return frame.Goto(ctx, url, options)
}

func (p *Page) Title(ctx context.Context) (string, error) {
	frame, err := p.frame()
	if err != nil {
		return "", err
	}
	return frame.Title(ctx)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	frame, err := p.frame()
	if err != nil {
		return err
	}
	return frame.Click(ctx, selector)
}

// Close closes the page.
func (p *Page) Close(ctx context.Context) error {
	_, err := p.Channel().Send(ctx, "close", nil)
	return err
}

func (p *Page) frame() (*Frame, error) {
	if p.mainFrame == nil {
		return nil, fmt.Errorf("page %q has no main frame", p.Guid())
	}
	return p.mainFrame, nil
}
