package remote

import (
	"context"
	"fmt"

	"github.com/microsoft/playwright-python-sub003/connection"
)

// Frame is one frame of a page's frame tree.
type Frame struct {
	*connection.ChannelOwner

	page *Page
}

func newFrame(scope *connection.Scope, typ, guid string, initializer map[string]any) *Frame {
	return &Frame{ChannelOwner: connection.NewChannelOwner(scope, typ, guid, initializer, false)}
}

// Page returns the owning page, nil for detached frames.
func (f *Frame) Page() *Page { return f.page }

// URL returns the frame's URL as of the last navigation the driver reported.
func (f *Frame) URL() string {
	u, _ := f.Initializer()["url"].(string)
	return u
}

// Goto navigates the frame and returns the driver's navigation response
// payload, if any.
func (f *Frame) Goto(ctx context.Context, url string, options map[string]any) (any, error) {
	params := map[string]any{"url": url}
	for k, v := range options {
		params[k] = v
	}
	return f.Channel().Send(ctx, "goto", params)
}

func (f *Frame) Title(ctx context.Context) (string, error) {
	result, err := f.Channel().Send(ctx, "title", nil)
	if err != nil {
		return "", err
	}
	title, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("title returned %T, expected a string", result)
	}
	return title, nil
}

func (f *Frame) Click(ctx context.Context, selector string) error {
	_, err := f.Channel().Send(ctx, "click", map[string]any{"selector": selector})
	return err
}
