package handshake

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/hosts"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

func pipeTransports() (transport.Transport, transport.Transport) {
	clientConn, serverConn := net.Pipe()
	return transport.NewTCPTransport(clientConn), transport.NewTCPTransport(serverConn)
}

func TestHandshakeDisabledSkipsKeyExchange(t *testing.T) {
	clientT, serverT := pipeTransports()

	client := New(Config{Role: RoleInitiator, EncryptEnabled: false}, clientT, nil)
	server := New(Config{Role: RoleResponder, EncryptEnabled: false}, serverT, nil)

	var wg sync.WaitGroup
	var clientErr, serverErr error
	wg.Add(2)
	go func() { defer wg.Done(); clientErr = client.Run(context.Background()) }()
	go func() { defer wg.Done(); serverErr = server.Run(context.Background()) }()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	assert.Equal(t, StateDisabled, client.State())
	assert.Equal(t, StateDisabled, server.State())
	assert.Nil(t, client.SessionCrypto())
}

func TestHandshakeEncryptedNoAuthReachesReady(t *testing.T) {
	clientT, serverT := pipeTransports()

	client := New(Config{Role: RoleInitiator, EncryptEnabled: true, AllowFirstContact: true}, clientT, nil)
	server := New(Config{Role: RoleResponder, EncryptEnabled: true}, serverT, nil)

	var wg sync.WaitGroup
	var clientErr, serverErr error
	wg.Add(2)
	go func() { defer wg.Done(); clientErr = client.Run(context.Background()) }()
	go func() { defer wg.Done(); serverErr = server.Run(context.Background()) }()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	assert.Equal(t, StateReady, client.State())
	assert.Equal(t, StateReady, server.State())
	require.NotNil(t, client.SessionCrypto())
	require.NotNil(t, server.SessionCrypto())
}

func TestHandshakeFirstContactRecordsFingerprint(t *testing.T) {
	dir := t.TempDir()
	khPath := filepath.Join(dir, "known_hosts")

	serverIdentity, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	kh, err := hosts.LoadKnownHosts(khPath)
	require.NoError(t, err)

	clientT, serverT := pipeTransports()

	client := New(Config{
		Role:              RoleInitiator,
		EncryptEnabled:    true,
		HostPort:          "127.0.0.1:27224",
		KnownHosts:        kh,
		AllowFirstContact: true,
	}, clientT, nil)
	server := New(Config{Role: RoleResponder, EncryptEnabled: true, Identity: serverIdentity}, serverT, nil)

	var wg sync.WaitGroup
	var clientErr, serverErr error
	wg.Add(2)
	go func() { defer wg.Done(); clientErr = client.Run(context.Background()) }()
	go func() { defer wg.Done(); serverErr = server.Run(context.Background()) }()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	assert.Equal(t, StateReady, client.State())

	fp, err := crypto.Fingerprint(serverIdentity.Public)
	require.NoError(t, err)
	matched, known := kh.Verify("127.0.0.1:27224", "ed25519", fp[:])
	assert.True(t, known)
	assert.True(t, matched)
}

func TestHandshakeFingerprintMismatchFails(t *testing.T) {
	dir := t.TempDir()
	khPath := filepath.Join(dir, "known_hosts")
	require.NoError(t, os.WriteFile(khPath,
		[]byte("127.0.0.1:27224 ed25519 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n"),
		0o600))

	serverIdentity, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	kh, err := hosts.LoadKnownHosts(khPath)
	require.NoError(t, err)

	clientT, serverT := pipeTransports()

	client := New(Config{
		Role:           RoleInitiator,
		EncryptEnabled: true,
		HostPort:       "127.0.0.1:27224",
		KnownHosts:     kh,
	}, clientT, nil)
	server := New(Config{Role: RoleResponder, EncryptEnabled: true, Identity: serverIdentity}, serverT, nil)

	var wg sync.WaitGroup
	var clientErr, serverErr error
	wg.Add(2)
	go func() { defer wg.Done(); clientErr = client.Run(context.Background()) }()
	go func() { defer wg.Done(); serverErr = server.Run(context.Background()) }()
	wg.Wait()

	assert.Error(t, clientErr)
	assert.Equal(t, StateFailed, client.State())
}

func TestHandshakeClientKeyWhitelistEnforced(t *testing.T) {
	dir := t.TempDir()
	wlPath := filepath.Join(dir, "client_keys")

	clientIdentity, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	// Empty whitelist: the client's key is never allowed.
	require.NoError(t, os.WriteFile(wlPath, []byte(""), 0o600))
	wl, err := hosts.LoadWhitelist(wlPath)
	require.NoError(t, err)

	clientT, serverT := pipeTransports()

	client := New(Config{
		Role:              RoleInitiator,
		EncryptEnabled:    true,
		Identity:          clientIdentity,
		AllowFirstContact: true,
	}, clientT, nil)
	server := New(Config{
		Role:             RoleResponder,
		EncryptEnabled:   true,
		RequireClientKey: true,
		Whitelist:        wl,
	}, serverT, nil)

	var wg sync.WaitGroup
	var clientErr, serverErr error
	wg.Add(2)
	go func() { defer wg.Done(); clientErr = client.Run(context.Background()) }()
	go func() { defer wg.Done(); serverErr = server.Run(context.Background()) }()
	wg.Wait()

	assert.Error(t, clientErr)
	assert.Error(t, serverErr)
	assert.Equal(t, StateFailed, server.State())
}

func TestHandshakeRekeyProducesFreshKeys(t *testing.T) {
	clientT, serverT := pipeTransports()

	client := New(Config{Role: RoleInitiator, EncryptEnabled: true, AllowFirstContact: true}, clientT, nil)
	server := New(Config{Role: RoleResponder, EncryptEnabled: true}, serverT, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); require.NoError(t, client.Run(context.Background())) }()
	go func() { defer wg.Done(); require.NoError(t, server.Run(context.Background())) }()
	wg.Wait()

	require.Equal(t, StateReady, client.State())
	require.Equal(t, StateReady, server.State())

	// Sealed under the client's pre-rekey send key; it must stop opening on
	// the server once both sides have switched to the fresh keys.
	stale, err := client.SessionCrypto().Seal(protocol.KindPing, []byte("before rekey"))
	require.NoError(t, err)

	var rekeyWG sync.WaitGroup
	var clientErr, serverErr error
	rekeyWG.Add(2)
	go func() { defer rekeyWG.Done(); clientErr = client.RekeyAsRequester() }()
	go func() { defer rekeyWG.Done(); serverErr = server.RekeyAsResponder() }()
	rekeyWG.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	_, err = server.SessionCrypto().Open(stale)
	assert.Error(t, err)

	fresh, err := client.SessionCrypto().Seal(protocol.KindPing, []byte("after rekey"))
	require.NoError(t, err)
	_, err = server.SessionCrypto().Open(fresh)
	assert.NoError(t, err)
}
