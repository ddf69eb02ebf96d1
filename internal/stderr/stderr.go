//go:build !windows

// Package stderr points file descriptor 2 at the log file when running in
// the background, so runtime panics and anything writing to fd 2 directly
// end up next to the log instead of on a closed terminal.
package stderr

import (
	"os"

	"golang.org/x/sys/unix"
)

var (
	origStderr = -1
	started    bool
)

// Redirect makes f the process stderr until Restore is called.
func Redirect(f *os.File) error {
	if started {
		return nil
	}

	// Save original stderr file descriptor
	orig, err := unix.Dup(int(os.Stderr.Fd()))
	if err != nil {
		return err
	}

	if err := unix.Dup2(int(f.Fd()), int(os.Stderr.Fd())); err != nil {
		unix.Close(orig)
		return err
	}

	origStderr = orig
	started = true
	return nil
}

// Restore points stderr back at its original target.
func Restore() {
	if !started {
		return
	}

	_ = unix.Dup2(origStderr, int(os.Stderr.Fd()))
	_ = unix.Close(origStderr)
	origStderr = -1
	started = false
}
