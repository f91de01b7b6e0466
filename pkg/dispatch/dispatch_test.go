package dispatch

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

func pipeTransports() (transport.Transport, transport.Transport) {
	a, b := net.Pipe()
	return transport.NewTCPTransport(a), transport.NewTCPTransport(b)
}

func TestDispatcherInvokesRegisteredHandlerInOrder(t *testing.T) {
	clientT, serverT := pipeTransports()

	var mu sync.Mutex
	var got []string

	d := New(serverT, 16, nil, nil)
	d.Handle(protocol.KindPing, func(kind protocol.Kind, payload []byte) {
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
	})
	d.Start()
	defer d.Stop()

	for _, s := range []string{"one", "two", "three"} {
		require.NoError(t, clientT.Send(protocol.KindPing, []byte(s)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestDispatcherFallsBackForUnmatchedKind(t *testing.T) {
	clientT, serverT := pipeTransports()

	fallbackCh := make(chan protocol.Kind, 1)
	d := New(serverT, 16, nil, nil)
	d.HandleUnmatched(func(kind protocol.Kind, payload []byte) {
		fallbackCh <- kind
	})
	d.Start()
	defer d.Stop()

	require.NoError(t, clientT.Send(protocol.KindPong, []byte("x")))

	select {
	case kind := <-fallbackCh:
		assert.Equal(t, protocol.KindPong, kind)
	case <-time.After(time.Second):
		t.Fatal("fallback handler never invoked")
	}
}

func TestDispatcherNotifiesDisconnectOnce(t *testing.T) {
	clientT, serverT := pipeTransports()

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	d := New(serverT, 16, func(err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(done)
	}, nil)
	d.Start()

	require.NoError(t, clientT.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}

	d.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestDispatcherSlowHandlerDoesNotStallReceive(t *testing.T) {
	clientT, serverT := pipeTransports()

	release := make(chan struct{})
	var mu sync.Mutex
	received := 0

	d := New(serverT, 16, nil, nil)
	d.Handle(protocol.KindPing, func(kind protocol.Kind, payload []byte) {
		<-release
		mu.Lock()
		received++
		mu.Unlock()
	})
	d.Start()
	defer func() {
		close(release)
		d.Stop()
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, clientT.Send(protocol.KindPing, []byte{byte(i)}))
	}

	// All five sends complete even though the handler is blocked on the
	// first packet - the queue, not the handler, absorbs the backlog.
	assert.Eventually(t, func() bool {
		return len(d.queue) >= 1
	}, time.Second, 5*time.Millisecond)
}
