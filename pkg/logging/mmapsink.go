package logging

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// truncMarker is appended to a record that had to be cut short because the
// remaining mmap region couldn't hold it (§4.13: "records span never
// wrap... truncated with a … marker").
var truncMarker = []byte("…")

// MmapSink is the append-only mmap'd log store of §4.13. Writers never take
// a lock on the hot path: each Write reserves its region with a
// compare-and-swap loop on a shared cursor, then copies directly into the
// mapping.
// Rotation (when the cursor crosses maxSize) is the only operation that
// takes the mutex, and only one rotation runs at a time.
type MmapSink struct {
	mu      sync.Mutex
	path    string
	maxSize int64

	file   *os.File
	data   []byte
	cursor atomic.Int64
}

// NewMmapSink opens (creating if necessary) path, truncates/extends it to
// maxSize, and maps it MAP_SHARED so writes are visible to any reader
// (e.g. `tail -f`) without an explicit flush.
func NewMmapSink(path string, maxSize int64) (*MmapSink, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := f.Truncate(maxSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(maxSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MmapSink{path: path, maxSize: maxSize, file: f, data: data}, nil
}

// Write reserves a region for line and copies it in. If line doesn't fit in
// what remains before maxSize, it is truncated with truncMarker and a
// rotation is triggered so the next Write lands in a fresh mapping.
func (s *MmapSink) Write(line []byte) {
	for {
		cur := s.cursor.Load()
		end := cur + int64(len(line))
		if end <= s.maxSize {
			if s.cursor.CompareAndSwap(cur, end) {
				copy(s.data[cur:end], line)
				return
			}
			continue
		}

		remaining := s.maxSize - cur
		if remaining > 0 && s.cursor.CompareAndSwap(cur, s.maxSize) {
			n := remaining
			if n > int64(len(line)) {
				n = int64(len(line))
			}
			cut := n - int64(len(truncMarker))
			if cut < 0 {
				cut = 0
			}
			copy(s.data[cur:cur+cut], line[:cut])
			copy(s.data[cur+cut:cur+n], truncMarker)
		}
		s.rotate()
		return
	}
}

// rotate renames the current file aside and starts a fresh mapping at
// cursor 0. Writers that observe cursor >= maxSize all call rotate, but
// only the first to acquire the mutex actually performs it.
func (s *MmapSink) rotate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Load() < s.maxSize {
		return // another writer already rotated
	}

	_ = unix.Msync(s.data, unix.MS_SYNC)
	_ = unix.Munmap(s.data)
	_ = s.file.Close()

	rotated := fmt.Sprintf("%s.%d", s.path, time.Now().UnixNano())
	_ = os.Rename(s.path, rotated)

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return // leaves the sink mapping-less; next Write's CompareAndSwap loop will spin harmlessly
	}
	if err := f.Truncate(s.maxSize); err != nil {
		f.Close()
		return
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(s.maxSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return
	}
	s.file = f
	s.data = data
	s.cursor.Store(0)
}

// Msync forces the mapping's dirty pages to disk, called after ERROR/FATAL
// records (§4.13) so a crash immediately after logging still shows the
// last line on disk.
func (s *MmapSink) Msync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unix.Msync(s.data, unix.MS_SYNC)
}

// Close flushes and unmaps the sink.
func (s *MmapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = unix.Msync(s.data, unix.MS_SYNC)
	err := unix.Munmap(s.data)
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
