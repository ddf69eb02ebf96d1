//go:build !windows

package daemon

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// alive reports whether pid exists. EPERM means it exists but belongs to
// someone else.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
