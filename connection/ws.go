package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WebSocketTransport carries one protocol frame per binary WebSocket message.
// It is used to reach a driver hosted behind a bridge server instead of a
// local subprocess.
type WebSocketTransport struct {
	log  *zap.SugaredLogger
	conn *websocket.Conn

	ctx       context.Context
	cancel    func()
	closeOnce sync.Once
}

type WebSocketOption func(t *WebSocketTransport)

func WithWebSocketLogger(l *zap.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.log = l.Named("ws_transport").Sugar()
	}
}

// NewWebSocketTransport wraps an established WebSocket connection. Call Start
// to begin reading.
func NewWebSocketTransport(conn *websocket.Conn, opts ...WebSocketOption) *WebSocketTransport {
	conn.SetReadLimit(maxFrameSize)
	ctx, cancel := context.WithCancel(context.Background())
	t := &WebSocketTransport{
		log:    zap.NewNop().Sugar(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// DialTransport establishes a WebSocket connection to a driver server.
// httpClient may be nil to use http.DefaultClient.
func DialTransport(ctx context.Context, url string, httpClient *http.Client, opts ...WebSocketOption) (*WebSocketTransport, error) {
	wsConn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:      httpClient,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("establishing WebSocket conn: %w", err)
	}
	return NewWebSocketTransport(wsConn, opts...), nil
}

func (t *WebSocketTransport) Send(msg json.RawMessage) error {
	if t.ctx.Err() != nil {
		return ErrTransportClosed
	}
	err := t.conn.Write(t.ctx, websocket.MessageBinary, msg)
	if err != nil {
		return fmt.Errorf("writing WebSocket frame: %w", err)
	}
	t.log.Debugw("sent frame", "Bytes", len(msg))
	return nil
}

func (t *WebSocketTransport) Start(onMessage func(json.RawMessage), onClose func(error)) {
	go func() {
		for {
			_, b, err := t.conn.Read(t.ctx)
			if err != nil {
				onClose(t.closeCause(err))
				return
			}
			t.log.Debugw("received frame", "Bytes", len(b))
			onMessage(b)
		}
	}()
}

func (t *WebSocketTransport) closeCause(err error) error {
	if t.ctx.Err() != nil {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}

func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
