// Package filelock guards files on disk against concurrent writers, both
// within one process and across coursedl processes sharing a download
// directory.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// Suffix is appended to the guarded path to name its lock file.
	Suffix = ".lock"

	pollInterval = 200 * time.Millisecond
)

// Lock takes an exclusive lock on target through target+".lock". The lock
// is an flock(2) held on an open descriptor, so the kernel releases it when
// the holder exits, however it exits. A lock file left behind by a killed run
// is therefore taken over no matter which pid it names. The file records
// "<timestamp> <pid>" for whoever inspects it. While another descriptor
// holds the lock, Lock polls until it is released or ctx is done.
func Lock(ctx context.Context, target string) (unlock func() error, err error) {
	lockFile := target + Suffix

	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir for lock: %w", err)
	}

	for {
		f, ok, err := tryLock(lockFile)
		if err != nil {
			return nil, err
		}
		if ok {
			return release(f, lockFile), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock on %s: %w", target, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// tryLock makes one non-blocking attempt. It reports ok=false when another
// descriptor holds the lock, or when the file it locked was unlinked by the
// previous holder in the meantime.
func tryLock(lockFile string) (*os.File, bool, error) {
	f, err := os.OpenFile(lockFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !stillLinked(f, lockFile) {
		f.Close()
		return nil, false, nil
	}

	content := fmt.Sprintf("%s %d", time.Now().Format(time.RFC3339), os.Getpid())
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("failed to write lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("failed to write lock file: %w", err)
	}
	return f, true, nil
}

// stillLinked reports whether lockFile still names the file open as f.
func stillLinked(f *os.File, lockFile string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(lockFile)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

// release removes the lock file before dropping the flock, so a waiter that
// opened the old file sees it unlinked and starts over.
func release(f *os.File, lockFile string) func() error {
	return func() error {
		rmErr := os.Remove(lockFile)
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		if err := f.Close(); err != nil && rmErr == nil {
			return err
		}
		return rmErr
	}
}
