//go:build unix

package storage

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/lukeburns/channeler/internal/domain"
)

func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return domain.ErrLocked
	}
	return err
}

func unlockFile(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
