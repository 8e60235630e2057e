package ballot

import (
	"io"
	"os"
	"sync"
)

// Storage is random-access storage for a ballot document.
type Storage interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
}

// File is a Storage backed by a file on disk. Writes are synced before they
// are acknowledged.
type File struct {
	f *os.File
}

var _ Storage = (*File)(nil)

// OpenFile opens the ballot document at path, creating it if necessary.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// OpenFileReadOnly opens an existing ballot document at path for reading.
// Writes to the returned File fail.
func OpenFileReadOnly(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, f.f.Sync()
}

func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *File) Close() error { return f.f.Close() }

// Memory is a Storage held in memory.
type Memory struct {
	mu  sync.RWMutex
	buf []byte
}

var _ Storage = (*Memory)(nil)

func NewMemoryStorage() *Memory {
	return &Memory{}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if end := off + int64(len(p)); end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	return copy(m.buf[off:], p), nil
}

func (m *Memory) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.buf)), nil
}

// Bytes returns a copy of the stored document.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.buf...)
}
