// Package imglock takes an exclusive advisory lock on a disk image so
// that two tools never open the same image at once.
package imglock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type Lock struct {
	fd   int
	path string
}

// Acquire fails instead of waiting if someone else holds the lock.
func Acquire(path string) (*Lock, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &Lock{fd: fd, path: path}, nil
}

func (l *Lock) Release() {
	unix.Flock(l.fd, unix.LOCK_UN)
	unix.Close(l.fd)
}
