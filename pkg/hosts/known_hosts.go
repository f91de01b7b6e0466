// Package hosts implements the known-hosts and client-keys (whitelist) file
// formats described in SPEC_FULL.md §6: line-oriented, bufio.Scanner-parsed
// text files, following the .env-style loader shape of pkg/config/config.go.
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

// KnownHost is one parsed known-hosts line: "hostname:port algorithm
// fingerprint-hex [comment]".
type KnownHost struct {
	HostPort    string
	Algorithm   string
	Fingerprint []byte
	Comment     string
}

// KnownHosts is an in-memory, mutex-guarded known-hosts table backed by a
// file. Lookup is exact match on hostname:port (§6).
type KnownHosts struct {
	mu    sync.Mutex
	path  string
	byKey map[string]KnownHost
}

// LoadKnownHosts reads a known-hosts file. A missing file is not an error:
// it is treated as an empty table, since first-contact policy may create it.
func LoadKnownHosts(path string) (*KnownHosts, error) {
	kh := &KnownHosts{path: path, byKey: make(map[string]KnownHost)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return kh, nil
		}
		return nil, errs.Wrap(errs.KindConfiguration, err, "open known-hosts file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseKnownHostLine(line)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, err, "parse known-hosts line %q", line)
		}
		kh.byKey[entry.HostPort] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, err, "scan known-hosts file %s", path)
	}
	return kh, nil
}

func parseKnownHostLine(line string) (KnownHost, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return KnownHost{}, fmt.Errorf("expected at least 3 fields, got %d", len(fields))
	}
	fp, err := hex.DecodeString(fields[2])
	if err != nil {
		return KnownHost{}, fmt.Errorf("decode fingerprint hex: %w", err)
	}
	entry := KnownHost{HostPort: fields[0], Algorithm: fields[1], Fingerprint: fp}
	if len(fields) > 3 {
		entry.Comment = strings.Join(fields[3:], " ")
	}
	return entry, nil
}

// Lookup returns the recorded fingerprint for hostPort, if any.
func (kh *KnownHosts) Lookup(hostPort string) (KnownHost, bool) {
	kh.mu.Lock()
	defer kh.mu.Unlock()
	entry, ok := kh.byKey[hostPort]
	return entry, ok
}

// Verify checks fingerprint against the recorded entry for hostPort. It
// returns (true, true) on an exact match, (false, true) on a mismatch
// against an existing entry, and (false, false) when there is no recorded
// entry (first contact).
func (kh *KnownHosts) Verify(hostPort, algorithm string, fingerprint []byte) (matched bool, known bool) {
	entry, ok := kh.Lookup(hostPort)
	if !ok {
		return false, false
	}
	if entry.Algorithm != algorithm {
		return false, true
	}
	return hexEqual(entry.Fingerprint, fingerprint), true
}

func hexEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Add records a first-contact fingerprint and appends it to the backing
// file, matching the "append if policy permits" behavior of §6.
func (kh *KnownHosts) Add(hostPort, algorithm string, fingerprint []byte, comment string) error {
	kh.mu.Lock()
	defer kh.mu.Unlock()

	entry := KnownHost{HostPort: hostPort, Algorithm: algorithm, Fingerprint: fingerprint, Comment: comment}
	kh.byKey[hostPort] = entry

	f, err := os.OpenFile(kh.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.Wrap(errs.KindConfiguration, err, "open known-hosts file %s for append", kh.path)
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %s", entry.HostPort, entry.Algorithm, hex.EncodeToString(entry.Fingerprint))
	if comment != "" {
		line += " " + comment
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		return errs.Wrap(errs.KindConfiguration, err, "append known-hosts entry for %s", hostPort)
	}
	return nil
}
