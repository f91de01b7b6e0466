package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

// TCPTransport frames packets directly on a TCP socket, as described in
// §4.3. Dial options (timeout, keep-alive, TCP_NODELAY) follow the pattern
// in the teacher's pkg/rtsp/client.go Connect method.
type TCPTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex

	envMu sync.RWMutex
	env   Envelope
}

// DialTCP connects to addr with a dial timeout and enables TCP_NODELAY,
// matching the low-latency framing requirement of the control protocol.
func DialTCP(ctx context.Context, addr string) (*TCPTransport, error) {
	dialer := net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetworkConnect, err, "dial tcp %s", addr)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return NewTCPTransport(conn), nil
}

// NewTCPTransport wraps an already-connected net.Conn (used by the
// connection orchestrator's TCP stage, and by servers accepting a listener
// connection in tests).
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 32*1024),
	}
}

func (t *TCPTransport) Name() string { return "tcp" }

func (t *TCPTransport) SetEncryption(env Envelope) {
	t.envMu.Lock()
	defer t.envMu.Unlock()
	t.env = env
}

func (t *TCPTransport) currentEnvelope() Envelope {
	t.envMu.RLock()
	defer t.envMu.RUnlock()
	return t.env
}

func (t *TCPTransport) Send(kind protocol.Kind, payload []byte) error {
	kind, payload, err := sealIfNeeded(t.currentEnvelope(), kind, payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return protocol.WriteTo(t.conn, kind, payload)
}

func (t *TCPTransport) Receive() (protocol.Kind, []byte, error) {
	kind, payload, err := protocol.ReadFrom(t.reader, protocol.MaxPacketSize)
	if err != nil {
		if errors.Is(err, protocol.ErrDisconnected) {
			return 0, nil, protocol.ErrDisconnected
		}
		return 0, nil, err
	}
	return openIfEnvelope(t.currentEnvelope(), kind, payload)
}

func (t *TCPTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
