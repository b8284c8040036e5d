package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
)

const recordHeaderLen = 4 + crypto.SignatureSize

// MaxEntrySize bounds a single payload.
const MaxEntrySize = 4 * 1024 * 1024

var ErrEntryTooLarge = errors.New("core: entry too large")

type entry struct {
	offset int64
	length uint32
	hash   [32]byte
}

func chainHash(prev [32]byte, index uint64, data []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(prev[:])
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	h.Write(idx[:])
	h.Write(data)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func encodeRecord(sig, data []byte) []byte {
	rec := make([]byte, recordHeaderLen+len(data))
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(data)))
	copy(rec[4:recordHeaderLen], sig)
	copy(rec[recordHeaderLen:], data)
	return rec
}

// loadEntries scans the data blob and verifies the chain. A torn record at
// the tail, left by a crash mid-append, is ignored and overwritten by the
// next append.
func (c *Core) loadEntries() error {
	size, err := c.data.Stat()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: stat data: %v", domain.ErrStorage, err)
	}

	var off int64
	for off+recordHeaderLen <= size {
		hdr, err := c.data.Read(off, recordHeaderLen)
		if err != nil {
			return fmt.Errorf("%w: read data: %v", domain.ErrStorage, err)
		}
		n := binary.BigEndian.Uint32(hdr[0:4])
		if off+recordHeaderLen+int64(n) > size {
			c.log.Warn().Int64("offset", off).Msg("ignoring torn record")
			break
		}
		payload, err := c.data.Read(off+recordHeaderLen, int(n))
		if err != nil {
			return fmt.Errorf("%w: read data: %v", domain.ErrStorage, err)
		}
		index := uint64(len(c.entries))
		h := chainHash(c.head, index, payload)
		if !crypto.Verify(c.pub, h[:], hdr[4:]) {
			return fmt.Errorf("%w: entry %d has a bad signature", domain.ErrStorage, index)
		}
		c.entries = append(c.entries, entry{offset: off, length: n, hash: h})
		c.head = h
		off += recordHeaderLen + int64(n)
	}
	c.size = off
	return nil
}

// Append signs data and adds it to the log, returning its index.
func (c *Core) Append(ctx context.Context, data []byte) (uint64, error) {
	if err := c.Ready(ctx); err != nil {
		return 0, err
	}
	if len(data) > MaxEntrySize {
		return 0, ErrEntryTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return 0, fmt.Errorf("core %s: %w", c.dk, domain.ErrClosed)
	}
	if c.secret == nil {
		return 0, fmt.Errorf("core %s: %w", c.dk, domain.ErrNotWritable)
	}

	index := uint64(len(c.entries))
	h := chainHash(c.head, index, data)
	sig, err := crypto.Sign(*c.secret, c.pub, h[:])
	if err != nil {
		return 0, err
	}
	if err := c.appendLocked(index, h, sig, data); err != nil {
		return 0, err
	}
	c.broadcastLocked(index, sig, data, nil)
	return index, nil
}

// appendLocked persists a verified entry. c.mu must be held.
func (c *Core) appendLocked(index uint64, h [32]byte, sig, data []byte) error {
	rec := encodeRecord(sig, data)
	if err := c.data.Write(c.size, rec); err != nil {
		return fmt.Errorf("%w: append entry %d: %v", domain.ErrStorage, index, err)
	}
	c.entries = append(c.entries, entry{offset: c.size, length: uint32(len(data)), hash: h})
	c.head = h
	c.size += int64(len(rec))

	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

// readLocked returns the signature and payload of entry index. c.mu must be
// held.
func (c *Core) readLocked(index uint64) (sig, data []byte, err error) {
	e := c.entries[index]
	rec, err := c.data.Read(e.offset, recordHeaderLen+int(e.length))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read entry %d: %v", domain.ErrStorage, index, err)
	}
	return rec[4:recordHeaderLen], rec[recordHeaderLen:], nil
}

// Get returns entry index, waiting for it to be appended or replicated if the
// log is shorter.
func (c *Core) Get(ctx context.Context, index uint64) ([]byte, error) {
	if err := c.Ready(ctx); err != nil {
		return nil, err
	}
	for {
		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return nil, fmt.Errorf("core %s: %w", c.dk, domain.ErrClosed)
		}
		if index < uint64(len(c.entries)) {
			_, data, err := c.readLocked(index)
			c.mu.Unlock()
			return data, err
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-c.done:
			return nil, fmt.Errorf("core %s: %w", c.dk, domain.ErrClosed)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Head returns the chain hash of the latest entry, or zero for an empty log.
func (c *Core) Head() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}
