package remote

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/playwright-python-sub003/connection"
)

// wireMsg mirrors the driver's frame shape for building test traffic.
type wireMsg struct {
	ID     int            `json:"id,omitempty"`
	Guid   string         `json:"guid,omitempty"`
	Method string         `json:"method,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Result any            `json:"result,omitempty"`
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []wireMsg
	respond   func(msg wireMsg)
	onMessage func(json.RawMessage)
}

func (ft *fakeTransport) Send(b json.RawMessage) error {
	var msg wireMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return err
	}
	ft.mu.Lock()
	ft.sent = append(ft.sent, msg)
	respond := ft.respond
	ft.mu.Unlock()
	if respond != nil {
		respond(msg)
	}
	return nil
}

func (ft *fakeTransport) Start(onMessage func(json.RawMessage), onClose func(error)) {
	ft.onMessage = onMessage
}

func (ft *fakeTransport) Close() error { return nil }

func (ft *fakeTransport) sentMessages() []wireMsg {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	out := make([]wireMsg, len(ft.sent))
	copy(out, ft.sent)
	return out
}

func (ft *fakeTransport) deliver(t *testing.T, msg wireMsg) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	ft.onMessage(b)
}

func (ft *fakeTransport) deliverCreate(t *testing.T, scopeGuid, typ, guid string, initializer map[string]any) {
	t.Helper()
	ft.deliver(t, wireMsg{
		Guid:   scopeGuid,
		Method: "__create__",
		Params: map[string]any{"type": typ, "guid": guid, "initializer": initializer},
	})
}

func newTestConn(t *testing.T) (*connection.Connection, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	c := connection.NewConnection(ft, connection.WithObjectFactory(NewObjectFactory()))
	c.Start()
	return c, ft
}

func guidRef(guid string) map[string]any {
	return map[string]any{"guid": guid}
}

// deliverSession announces the standard session prologue the driver emits on
// startup: the three browser types, then the root referencing them.
func deliverSession(t *testing.T, ft *fakeTransport) {
	ft.deliverCreate(t, "", "BrowserType", "browser-type@chromium", map[string]any{"name": "chromium", "executablePath": "/opt/chromium"})
	ft.deliverCreate(t, "", "BrowserType", "browser-type@firefox", map[string]any{"name": "firefox"})
	ft.deliverCreate(t, "", "BrowserType", "browser-type@webkit", map[string]any{"name": "webkit"})
	ft.deliverCreate(t, "", "Playwright", RootObjectGuid, map[string]any{
		"chromium": guidRef("browser-type@chromium"),
		"firefox":  guidRef("browser-type@firefox"),
		"webkit":   guidRef("browser-type@webkit"),
	})
}

func TestFactoryBuildsTypedRoot(t *testing.T) {
	c, ft := newTestConn(t)
	deliverSession(t, ft)

	obj, err := c.WaitForObject(context.Background(), RootObjectGuid)
	require.NoError(t, err)
	pw, ok := obj.(*Playwright)
	require.True(t, ok)

	require.NotNil(t, pw.Chromium)
	assert.Equal(t, "chromium", pw.Chromium.Name())
	assert.Equal(t, "/opt/chromium", pw.Chromium.ExecutablePath())
	require.NotNil(t, pw.Firefox)
	assert.Equal(t, "firefox", pw.Firefox.Name())
	require.NotNil(t, pw.WebKit)
	assert.Equal(t, "webkit", pw.WebKit.Name())
}

func TestFactoryFallsBackForUnknownTypes(t *testing.T) {
	c, ft := newTestConn(t)
	ft.deliverCreate(t, "", "Selectors", "selectors@1", nil)

	obj, ok := c.Object("selectors@1")
	require.True(t, ok)
	assert.Equal(t, "Selectors", obj.Owner().Type())
}

func TestLaunchReturnsBrowser(t *testing.T) {
	c, ft := newTestConn(t)
	deliverSession(t, ft)

	ft.respond = func(msg wireMsg) {
		require.Equal(t, "launch", msg.Method)
		require.Equal(t, "browser-type@chromium", msg.Guid)
		ft.deliverCreate(t, "", "Browser", "browser@1", map[string]any{"version": "100.0"})
		ft.deliver(t, wireMsg{ID: msg.ID, Result: map[string]any{"browser": guidRef("browser@1")}})
	}

	obj, err := c.WaitForObject(context.Background(), RootObjectGuid)
	require.NoError(t, err)
	pw := obj.(*Playwright)

	browser, err := pw.Chromium.Launch(context.Background(), map[string]any{"headless": true})
	require.NoError(t, err)
	require.Equal(t, "browser@1", browser.Guid())

	// launch options pass through verbatim
	sent := ft.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, true, sent[0].Params["headless"])
}

// launchSession announces a browser, a context and a page with its main frame,
// mirroring the create traffic a launch and newPage produce.
func launchSession(t *testing.T, ft *fakeTransport) {
	deliverSession(t, ft)
	ft.deliverCreate(t, "", "Browser", "browser@1", nil)
	ft.deliverCreate(t, "browser@1", "BrowserContext", "context@1", nil)
	ft.deliverCreate(t, "context@1", "Frame", "frame@1", map[string]any{"url": "about:blank"})
	ft.deliverCreate(t, "context@1", "Page", "page@1", map[string]any{"mainFrame": guidRef("frame@1")})
}

func TestPageWiresMainFrame(t *testing.T) {
	c, ft := newTestConn(t)
	launchSession(t, ft)

	obj, ok := c.Object("page@1")
	require.True(t, ok)
	page := obj.(*Page)

	require.NotNil(t, page.MainFrame())
	assert.Equal(t, "frame@1", page.MainFrame().Guid())
	assert.Same(t, page, page.MainFrame().Page())
	assert.Equal(t, "about:blank", page.MainFrame().URL())
}

func TestPageVerbsDelegateToMainFrame(t *testing.T) {
	c, ft := newTestConn(t)
	launchSession(t, ft)

	ft.respond = func(msg wireMsg) {
		switch msg.Method {
		case "title":
			ft.deliver(t, wireMsg{ID: msg.ID, Result: map[string]any{"value": "Example"}})
		default:
			ft.deliver(t, wireMsg{ID: msg.ID})
		}
	}

	obj, _ := c.Object("page@1")
	page := obj.(*Page)

	_, err := page.Goto(context.Background(), "https://example.com", map[string]any{"waitUntil": "load"})
	require.NoError(t, err)

	title, err := page.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Example", title)

	require.NoError(t, page.Click(context.Background(), "#submit"))

	sent := ft.sentMessages()
	require.Len(t, sent, 3)
	for _, msg := range sent {
		assert.Equal(t, "frame@1", msg.Guid)
	}
	assert.Equal(t, "goto", sent[0].Method)
	assert.Equal(t, "https://example.com", sent[0].Params["url"])
	assert.Equal(t, "load", sent[0].Params["waitUntil"])
	assert.Equal(t, "title", sent[1].Method)
	assert.Equal(t, "click", sent[2].Method)
	assert.Equal(t, "#submit", sent[2].Params["selector"])
}

func TestBrowserCloseEventDisposesSubtree(t *testing.T) {
	c, ft := newTestConn(t)
	launchSession(t, ft)

	ft.deliver(t, wireMsg{Guid: "browser@1", Method: "close"})

	for _, guid := range []string{"browser@1", "context@1", "page@1", "frame@1"} {
		_, ok := c.Object(guid)
		assert.False(t, ok, "guid %q should be disposed", guid)
	}

	// the session root is untouched
	_, ok := c.Object(RootObjectGuid)
	require.True(t, ok)
}

func TestContextCloseEventDisposesPages(t *testing.T) {
	c, ft := newTestConn(t)
	launchSession(t, ft)

	ft.deliver(t, wireMsg{Guid: "context@1", Method: "close"})

	_, ok := c.Object("page@1")
	require.False(t, ok)
	_, ok = c.Object("browser@1")
	require.True(t, ok)
}

func TestBrowserCloseAfterDisposalIsANoOp(t *testing.T) {
	c, ft := newTestConn(t)
	launchSession(t, ft)

	obj, _ := c.Object("browser@1")
	browser := obj.(*Browser)

	// remote close wins the race and disposes the handle first
	ft.deliver(t, wireMsg{Guid: "browser@1", Method: "close"})

	require.NoError(t, browser.Close(context.Background()))
	require.Empty(t, ft.sentMessages())
}

func TestNewContextAndNewPage(t *testing.T) {
	c, ft := newTestConn(t)
	deliverSession(t, ft)
	ft.deliverCreate(t, "", "Browser", "browser@1", nil)

	ft.respond = func(msg wireMsg) {
		switch msg.Method {
		case "newContext":
			ft.deliverCreate(t, "browser@1", "BrowserContext", "context@1", nil)
			ft.deliver(t, wireMsg{ID: msg.ID, Result: map[string]any{"context": guidRef("context@1")}})
		case "newPage":
			ft.deliverCreate(t, "context@1", "Frame", "frame@1", nil)
			ft.deliverCreate(t, "context@1", "Page", "page@1", map[string]any{"mainFrame": guidRef("frame@1")})
			ft.deliver(t, wireMsg{ID: msg.ID, Result: map[string]any{"page": guidRef("page@1")}})
		}
	}

	obj, _ := c.Object("browser@1")
	browser := obj.(*Browser)

	bc, err := browser.NewContext(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "context@1", bc.Guid())

	page, err := bc.NewPage(context.Background())
	require.NoError(t, err)
	require.Equal(t, "page@1", page.Guid())
	require.NotNil(t, page.MainFrame())
}
