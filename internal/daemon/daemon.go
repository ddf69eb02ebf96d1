// Package daemon runs mpsd in the background and tracks it with a PID file.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrRunning is returned by Start and Acquire when a live process owns
	// the PID file.
	ErrRunning = errors.New("already running")
	// ErrNotRunning is returned by Stop when no live process owns the PID
	// file.
	ErrNotRunning = errors.New("not running")
)

// Daemon manages one PID file.
type Daemon struct {
	pidFile string
	clock   clockwork.Clock
	timeout time.Duration
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithClock sets the clock used while waiting for a process to exit.
func WithClock(c clockwork.Clock) Option {
	return func(d *Daemon) { d.clock = c }
}

// WithStopTimeout bounds how long Stop waits for the process to exit.
func WithStopTimeout(t time.Duration) Option {
	return func(d *Daemon) { d.timeout = t }
}

// New returns a Daemon using pidFile.
func New(pidFile string, opts ...Option) *Daemon {
	d := &Daemon{
		pidFile: pidFile,
		clock:   clockwork.NewRealClock(),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PIDFile returns the path of the PID file.
func (d *Daemon) PIDFile() string {
	return d.pidFile
}

// Running returns the PID recorded in the PID file and whether that
// process is alive. A missing PID file is not an error.
func (d *Daemon) Running() (int, bool, error) {
	data, err := os.ReadFile(d.pidFile)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false, fmt.Errorf("malformed PID file %s", d.pidFile)
	}
	return pid, alive(pid), nil
}

// Start launches exe with args detached from the terminal and returns its
// PID. The child is expected to call Acquire.
func (d *Daemon) Start(exe string, args []string) (int, error) {
	if pid, running, err := d.Running(); err != nil {
		return 0, err
	} else if running {
		return pid, fmt.Errorf("%w (pid %d)", ErrRunning, pid)
	}

	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = detached()
	// Stdio left nil is connected to the null device.
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}

// Acquire writes the current PID to the PID file. The returned release
// removes it again. A stale PID file left by a dead process is replaced.
func (d *Daemon) Acquire() (release func(), err error) {
	if pid, running, err := d.Running(); err == nil && running && pid != os.Getpid() {
		return nil, fmt.Errorf("%w (pid %d)", ErrRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil, err
	}

	return func() {
		if pid, _, err := d.Running(); err == nil && pid == os.Getpid() {
			_ = os.Remove(d.pidFile)
		}
	}, nil
}

// Stop asks the recorded process to terminate, waits for it to exit and
// removes the PID file. A stale PID file is removed and ErrNotRunning
// returned.
func (d *Daemon) Stop() error {
	pid, running, err := d.Running()
	if err != nil {
		return err
	}
	if !running {
		if pid != 0 {
			_ = os.Remove(d.pidFile)
		}
		return ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := d.clock.Now().Add(d.timeout)
	for alive(pid) {
		if !d.clock.Now().Before(deadline) {
			return fmt.Errorf("pid %d still running after %s", pid, d.timeout)
		}
		d.clock.Sleep(100 * time.Millisecond)
	}

	if err := os.Remove(d.pidFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
