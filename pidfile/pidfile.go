// Package pidfile implements a pid file that is locked for the lifetime of
// the process and prevents a second instance from starting.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Acquire if another process holds the lock.
var ErrAlreadyRunning = errors.New("pidfile: another instance is running")

// File is an acquired pid file.
type File struct {
	name string
	f    *os.File
}

// Acquire creates the named pid file, locks it and writes the current process
// ID. It fails with ErrAlreadyRunning if the file is locked by another
// process.
func Acquire(name string) (*File, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is locked", ErrAlreadyRunning, name)
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}
	if err := write(f, os.Getpid()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &File{name: name, f: f}, nil
}

func write(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Name returns the pid file path.
func (p *File) Name() string {
	return p.name
}

// Release removes the pid file and releases the lock.
func (p *File) Release() error {
	err := os.Remove(p.name)
	err = multierr.Append(err, unix.Flock(int(p.f.Fd()), unix.LOCK_UN))
	err = multierr.Append(err, p.f.Close())
	return err
}
