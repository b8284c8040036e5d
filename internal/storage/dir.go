package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lukeburns/channeler/internal/domain"
)

// DirProvider opens file-backed blobs below a root directory.
type DirProvider struct {
	root string
}

var _ domain.StorageProvider = (*DirProvider)(nil)

// Dir returns a provider rooted at root. Nothing is created until a blob is
// written or locked.
func Dir(root string) *DirProvider {
	return &DirProvider{root: root}
}

// Root returns the directory the provider writes below.
func (p *DirProvider) Root() string { return p.root }

// Open returns the blob stored under name, a slash-separated relative path.
func (p *DirProvider) Open(name string) (domain.ByteStorage, error) {
	rel, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	return &file{path: filepath.Join(p.root, filepath.FromSlash(rel))}, nil
}

func cleanName(name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" || clean != strings.TrimPrefix(name, "/") {
		return "", fmt.Errorf("%w: invalid storage name %q", domain.ErrStorage, name)
	}
	return clean, nil
}

type file struct {
	path string

	mu     sync.Mutex
	f      *os.File
	locked bool
	closed bool
}

var (
	_ domain.ByteStorage = (*file)(nil)
	_ domain.Locker      = (*file)(nil)
)

// open returns the handle, creating the file (and its parents) if create is set.
func (s *file) open(create bool) (*os.File, error) {
	if s.closed {
		return nil, fmt.Errorf("%s: %w", s.path, domain.ErrClosed)
	}
	if s.f != nil {
		return s.f, nil
	}
	flags := os.O_RDWR
	if create {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
			return nil, err
		}
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(s.path, flags, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	return f, nil
}

func (s *file) Stat() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("%s: %w", s.path, domain.ErrClosed)
	}
	if s.f != nil {
		fi, err := s.f.Stat()
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	}
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *file) Read(offset int64, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(false)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err == io.EOF && n < size {
		return nil, fmt.Errorf("%s: read %d bytes at %d: %w", s.path, size, offset, os.ErrNotExist)
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func (s *file) Write(offset int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(true)
	if err != nil {
		return err
	}
	_, err = f.WriteAt(data, offset)
	return err
}

// Lock takes an exclusive lock on the blob for as long as it stays open.
func (s *file) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return nil
	}
	f, err := s.open(true)
	if err != nil {
		return err
	}
	if err := lockFile(f); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.locked = true
	return nil
}

func (s *file) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.f == nil {
		return nil
	}
	if s.locked {
		unlockFile(s.f)
		s.locked = false
	}
	err := s.f.Sync()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}
