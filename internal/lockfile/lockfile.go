// Package lockfile guards a remote host against concurrent sessions from
// separate processes sharing one lock directory.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrLocked = errors.New("lock file exists")

type Lock struct {
	path string
}

// Path returns the lock file location for host inside dir.
func Path(dir, host string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(host)
	return filepath.Join(dir, name)
}

// Acquire creates the lock file for host, writing the current pid.
func Acquire(dir, host string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}

	path := Path(dir, host)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w for %s: %s", ErrLocked, host, path)
		}
		return nil, fmt.Errorf("create lock file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock file %s: %w", path, err)
	}

	slog.Debug("Lock acquired", "host", host, "path", path)
	return &Lock{path: path}, nil
}

// Release removes the lock file. Releasing a nil or already-released lock
// is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", path, err)
	}
	slog.Debug("Lock released", "path", path)
	return nil
}
