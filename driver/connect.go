package driver

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/microsoft/playwright-python-sub003/connection"
)

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// Connect dials a driver hosted by a bridge server (see cmd/pwserver) and
// returns a started connection. The server's health endpoint is polled first
// so callers can race server startup.
func Connect(ctx context.Context, wsURL string, opts ...Option) (*connection.Connection, error) {
	cfg := newConfig(opts...)

	healthURL, err := healthURLFor(wsURL)
	if err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 10
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 1 * time.Second
	retryClient.Logger = &logAdapter{SugaredLogger: cfg.log}

	req, err := retryablehttp.NewRequest("GET", healthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building health request: %w", err)
	}
	req = req.WithContext(ctx)
	resp, err := retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("waiting for driver server: %w", err)
	}
	resp.Body.Close()

	transport, err := connection.DialTransport(ctx, wsURL, retryClient.StandardClient(),
		connection.WithWebSocketLogger(cfg.log.Desugar()))
	if err != nil {
		return nil, err
	}

	conn := connection.NewConnection(transport,
		connection.WithLogger(cfg.log.Desugar()),
		connection.WithObjectFactory(cfg.factory))
	conn.Start()
	return conn, nil
}

// healthURLFor maps a ws(s)://host/connect URL to the sibling http(s) health
// endpoint.
func healthURLFor(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parsing server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q, want ws or wss", u.Scheme)
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String(), nil
}
