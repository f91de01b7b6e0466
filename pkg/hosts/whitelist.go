package hosts

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

// ClientKey is one parsed client-keys (whitelist) line: "algorithm
// public-key-hex [comment]".
type ClientKey struct {
	Algorithm string
	PublicKey []byte
	Comment   string
}

// Whitelist is the server-side allowed-peer-identities table (§4.5's
// "whitelist of allowed peer identities"). Membership is tested by exact
// key-bytes match, not fingerprint, since the whole public key is short
// enough to store directly (§6).
type Whitelist struct {
	mu   sync.RWMutex
	keys []ClientKey
}

// LoadWhitelist reads a client-keys file. A missing file yields an empty,
// always-denying whitelist.
func LoadWhitelist(path string) (*Whitelist, error) {
	wl := &Whitelist{}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return wl, nil
		}
		return nil, errs.Wrap(errs.KindConfiguration, err, "open client-keys file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, err := parseClientKeyLine(line)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, err, "parse client-keys line %q", line)
		}
		wl.keys = append(wl.keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, err, "scan client-keys file %s", path)
	}
	return wl, nil
}

func parseClientKeyLine(line string) (ClientKey, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ClientKey{}, fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}
	pub, err := hex.DecodeString(fields[1])
	if err != nil {
		return ClientKey{}, fmt.Errorf("decode public key hex: %w", err)
	}
	key := ClientKey{Algorithm: fields[0], PublicKey: pub}
	if len(fields) > 2 {
		key.Comment = strings.Join(fields[2:], " ")
	}
	return key, nil
}

// Allowed reports whether publicKey is present in the whitelist under the
// given algorithm.
func (wl *Whitelist) Allowed(algorithm string, publicKey []byte) bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	for _, k := range wl.keys {
		if k.Algorithm == algorithm && hexEqual(k.PublicKey, publicKey) {
			return true
		}
	}
	return false
}

// Len reports how many entries are loaded, chiefly so callers can
// distinguish "no whitelist configured" (client auth not required) from "a
// whitelist exists but the key is absent".
func (wl *Whitelist) Len() int {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return len(wl.keys)
}
