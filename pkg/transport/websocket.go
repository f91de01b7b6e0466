package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

// WebSocketTransport carries exactly one framed packet per binary WebSocket
// message, per §4.3. The read/write-pump split and Upgrader defaults are
// grounded on n0remac-robot-webrtc/websocket/websocket.go; unlike that
// chat-room hub this type exposes blocking Send/Receive directly rather
// than channel-fed pumps, since the session's own goroutine topology (§5)
// already provides the pump structure.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex

	envMu sync.RWMutex
	env   Envelope
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetworkConnect, err, "dial websocket %s", url)
	}
	return NewWebSocketTransport(conn), nil
}

// NewWebSocketTransport wraps an already-established *websocket.Conn (used
// by servers that have just completed an HTTP Upgrade).
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) SetEncryption(env Envelope) {
	t.envMu.Lock()
	defer t.envMu.Unlock()
	t.env = env
}

func (t *WebSocketTransport) currentEnvelope() Envelope {
	t.envMu.RLock()
	defer t.envMu.RUnlock()
	return t.env
}

func (t *WebSocketTransport) Send(kind protocol.Kind, payload []byte) error {
	kind, payload, err := sealIfNeeded(t.currentEnvelope(), kind, payload)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := protocol.WriteTo(&buf, kind, payload); err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return errs.Wrap(errs.KindNetworkClosed, err, "websocket write")
	}
	return nil
}

func (t *WebSocketTransport) Receive() (protocol.Kind, []byte, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived) || errors.Is(err, net.ErrClosed) {
			return 0, nil, protocol.ErrDisconnected
		}
		return 0, nil, errs.Wrap(errs.KindNetworkClosed, err, "websocket read")
	}
	if msgType != websocket.BinaryMessage {
		return 0, nil, errs.New(errs.KindProtocolUnexpected, "unexpected websocket message type %d", msgType)
	}

	kind, payload, err := protocol.ReadFrom(bytes.NewReader(data), len(data))
	if err != nil {
		return 0, nil, err
	}
	return openIfEnvelope(t.currentEnvelope(), kind, payload)
}

func (t *WebSocketTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
