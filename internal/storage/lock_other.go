//go:build !unix

package storage

import (
	"os"
	"sync"

	"github.com/lukeburns/channeler/internal/domain"
)

// Without flock the lock only excludes other handles in this process.
var (
	heldMu sync.Mutex
	held   = map[string]bool{}
)

func lockFile(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	if held[f.Name()] {
		return domain.ErrLocked
	}
	held[f.Name()] = true
	return nil
}

func unlockFile(f *os.File) {
	heldMu.Lock()
	delete(held, f.Name())
	heldMu.Unlock()
}
