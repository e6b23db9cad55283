package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func echoWSServer(t *testing.T) string {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			CompressionMode: websocket.CompressionContextTakeover,
		})
		if err != nil {
			return
		}
		ctx := r.Context()
		for {
			typ, b, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, b); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebSocketTransportRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr, err := DialTransport(ctx, echoWSServer(t), nil)
	require.NoError(t, err)
	defer tr.Close()

	msgs := make(chan json.RawMessage, 16)
	tr.Start(func(msg json.RawMessage) { msgs <- msg }, func(error) {})

	require.NoError(t, tr.Send(json.RawMessage(`{"id":1,"method":"ping"}`)))
	require.NoError(t, tr.Send(json.RawMessage(`{"id":2,"method":"ping"}`)))

	require.Equal(t, `{"id":1,"method":"ping"}`, string(<-msgs))
	require.Equal(t, `{"id":2,"method":"ping"}`, string(<-msgs))
}

func TestWebSocketTransportLocalCloseIsClean(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr, err := DialTransport(ctx, echoWSServer(t), nil)
	require.NoError(t, err)

	closed := make(chan error, 1)
	tr.Start(func(json.RawMessage) {}, func(err error) { closed <- err })

	require.NoError(t, tr.Close())

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestWebSocketTransportSendAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr, err := DialTransport(ctx, echoWSServer(t), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	err = tr.Send(json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestDialTransportBadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := DialTransport(ctx, "ws://127.0.0.1:1/connect", nil)
	require.Error(t, err)
}
