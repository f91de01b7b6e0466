package transport

import (
	"bytes"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

// DataChannelTransport carries exactly one framed packet per data-channel
// message, per §4.3. It is only constructed once the WebRTC peer manager
// (pkg/webrtcpeer) has signalled that the channel is open; ownership of the
// *webrtc.DataChannel passes to this type's caller (typically the
// connection orchestrator), matching the "on_transport_ready" ownership
// transfer described in §4.8.
//
// pion's DataChannel delivers messages via an OnMessage callback rather
// than a blocking read, so Receive is implemented as a bounded channel fed
// by that callback, following the teacher's general
// callback-feeds-a-channel adapter shape (pkg/rtsp/client.go's
// OnRTPPacket callback feeding the higher-level pipeline).
type DataChannelTransport struct {
	dc *webrtc.DataChannel

	recvCh chan receivedMessage
	closed chan struct{}
	once   sync.Once

	envMu sync.RWMutex
	env   Envelope
}

type receivedMessage struct {
	kind    protocol.Kind
	payload []byte
	err     error
}

// NewDataChannelTransport wraps an open *webrtc.DataChannel. bufferedDepth
// bounds the inbound message queue; a slow consumer applies backpressure to
// the channel's OnMessage callback only insofar as the channel fills (pion
// still delivers messages as SCTP makes them available).
func NewDataChannelTransport(dc *webrtc.DataChannel, bufferedDepth int) *DataChannelTransport {
	if bufferedDepth <= 0 {
		bufferedDepth = 64
	}
	t := &DataChannelTransport{
		dc:     dc,
		recvCh: make(chan receivedMessage, bufferedDepth),
		closed: make(chan struct{}),
	}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		kind, payload, err := protocol.ReadFrom(bytes.NewReader(msg.Data), len(msg.Data))
		select {
		case t.recvCh <- receivedMessage{kind: kind, payload: payload, err: err}:
		case <-t.closed:
		}
	})
	dc.OnClose(func() {
		t.once.Do(func() { close(t.closed) })
	})

	return t
}

func (t *DataChannelTransport) Name() string { return "webrtc-datachannel" }

func (t *DataChannelTransport) SetEncryption(env Envelope) {
	t.envMu.Lock()
	defer t.envMu.Unlock()
	t.env = env
}

func (t *DataChannelTransport) currentEnvelope() Envelope {
	t.envMu.RLock()
	defer t.envMu.RUnlock()
	return t.env
}

func (t *DataChannelTransport) Send(kind protocol.Kind, payload []byte) error {
	kind, payload, err := sealIfNeeded(t.currentEnvelope(), kind, payload)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := protocol.WriteTo(&buf, kind, payload); err != nil {
		return err
	}
	if err := t.dc.Send(buf.Bytes()); err != nil {
		return errs.Wrap(errs.KindNetworkClosed, err, "datachannel send")
	}
	return nil
}

func (t *DataChannelTransport) Receive() (protocol.Kind, []byte, error) {
	select {
	case msg := <-t.recvCh:
		if msg.err != nil {
			return 0, nil, msg.err
		}
		return openIfEnvelope(t.currentEnvelope(), msg.kind, msg.payload)
	case <-t.closed:
		return 0, nil, protocol.ErrDisconnected
	}
}

func (t *DataChannelTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return t.dc.Close()
}
