// Package remote provides typed proxies for the objects a driver announces:
// the Playwright root, browser types, browsers, contexts, pages and frames.
// Proxies stay thin; every verb is a request on the underlying channel and
// every state change arrives as an event.
package remote

import (
	"github.com/microsoft/playwright-python-sub003/connection"
)

// RootObjectGuid is the well-known guid of the driver's root object.
const RootObjectGuid = "Playwright"

// NewObjectFactory returns the constructor registry mapping driver type names
// to typed proxies. Unknown types degrade to a generic untyped handle.
func NewObjectFactory() connection.ObjectFactory {
	return func(scope *connection.Scope, typ, guid string, initializer map[string]any) connection.Object {
		switch typ {
		case "Playwright":
			return newPlaywright(scope, typ, guid, initializer)
		case "BrowserType":
			return newBrowserType(scope, typ, guid, initializer)
		case "Browser":
			return newBrowser(scope, typ, guid, initializer)
		case "BrowserContext":
			return newBrowserContext(scope, typ, guid, initializer)
		case "Page":
			return newPage(scope, typ, guid, initializer)
		case "Frame":
			return newFrame(scope, typ, guid, initializer)
		default:
			return connection.NewGenericObject(scope, typ, guid, initializer)
		}
	}
}
