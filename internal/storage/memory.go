package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/lukeburns/channeler/internal/domain"
)

// MemoryProvider keeps blobs in memory for the life of the provider.
type MemoryProvider struct {
	mu    sync.Mutex
	blobs map[string]*blob
}

var _ domain.StorageProvider = (*MemoryProvider)(nil)

// Memory returns an empty in-memory provider.
func Memory() *MemoryProvider {
	return &MemoryProvider{blobs: make(map[string]*blob)}
}

type blob struct {
	mu     sync.Mutex
	data   []byte
	exists bool
	locked bool
}

// Open returns a handle on the blob named name. Handles opened with the same
// name share bytes.
func (p *MemoryProvider) Open(name string) (domain.ByteStorage, error) {
	rel, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.blobs[rel]
	if !ok {
		b = &blob{}
		p.blobs[rel] = b
	}
	return &memory{name: rel, b: b}, nil
}

// Names lists the blobs that have been written.
func (p *MemoryProvider) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for name, b := range p.blobs {
		b.mu.Lock()
		if b.exists {
			out = append(out, name)
		}
		b.mu.Unlock()
	}
	return out
}

type memory struct {
	name string
	b    *blob

	mu     sync.Mutex
	locked bool
	closed bool
}

var (
	_ domain.ByteStorage = (*memory)(nil)
	_ domain.Locker      = (*memory)(nil)
)

func (s *memory) check() error {
	if s.closed {
		return fmt.Errorf("%s: %w", s.name, domain.ErrClosed)
	}
	return nil
}

func (s *memory) Stat() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if !s.b.exists {
		return 0, fmt.Errorf("%s: %w", s.name, os.ErrNotExist)
	}
	return int64(len(s.b.data)), nil
}

func (s *memory) Read(offset int64, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if !s.b.exists || offset < 0 || offset+int64(size) > int64(len(s.b.data)) {
		return nil, fmt.Errorf("%s: read %d bytes at %d: %w", s.name, size, offset, os.ErrNotExist)
	}
	out := make([]byte, size)
	copy(out, s.b.data[offset:])
	return out, nil
}

func (s *memory) Write(offset int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", domain.ErrStorage, offset)
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	end := offset + int64(len(data))
	if end > int64(len(s.b.data)) {
		grown := make([]byte, end)
		copy(grown, s.b.data)
		s.b.data = grown
	}
	copy(s.b.data[offset:], data)
	s.b.exists = true
	return nil
}

func (s *memory) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if s.locked {
		return nil
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.locked {
		return fmt.Errorf("%s: %w", s.name, domain.ErrLocked)
	}
	s.b.locked = true
	s.locked = true
	return nil
}

func (s *memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.locked {
		s.b.mu.Lock()
		s.b.locked = false
		s.b.mu.Unlock()
		s.locked = false
	}
	return nil
}
