// Package pid keeps a single daemon instance per PID file.
package pid

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/handheldctl/internal/errors"
)

// Write records the current process ID in path. It fails with
// ErrAlreadyRunning when path names a live process; stale files are
// overwritten.
func Write(path string) error {
	errFactory := errors.New()

	if bytes, err := os.ReadFile(path); err == nil {
		if running(strings.TrimSpace(string(bytes))) {
			return errFactory.WithData(errors.ErrAlreadyRunning, path)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Read returns the process ID stored in path.
func Read(path string) (int, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrInternal, err)
	}

	return pid, nil
}

// Remove removes the PID file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func running(value string) bool {
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
