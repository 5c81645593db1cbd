package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".segmenter.lock"
	lockOwnerFile = "owner.json"
)

// ErrLocked is returned when another run holds the output folder.
var ErrLocked = errors.New("output directory is locked")

// Lock marks an output folder as in use by one run.
type Lock struct {
	dir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock takes the run lock in dir. Creating a directory is atomic, so
// two runs writing into the same folder cannot both succeed.
func AcquireLock(dir string) (Lock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return Lock{}, fmt.Errorf("output directory is required")
	}

	lockDir := filepath.Join(target, lockDirName)
	if err := os.Mkdir(lockDir, 0o750); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if readErr := readOwner(filepath.Join(lockDir, lockOwnerFile), &owner); readErr == nil && owner.PID > 0 {
				return Lock{}, fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)",
					ErrLocked, target, owner.PID, owner.CreatedAt, owner.Hostname)
			}
			return Lock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		return Lock{}, fmt.Errorf("acquire lock for %s: %w", target, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.Marshal(owner)
	if err == nil {
		err = os.WriteFile(filepath.Join(lockDir, lockOwnerFile), data, 0o600)
	}
	if err != nil {
		_ = os.RemoveAll(lockDir)
		return Lock{}, fmt.Errorf("write lock owner for %s: %w", target, err)
	}

	return Lock{dir: lockDir}, nil
}

// Release removes the lock. Releasing a zero Lock is a no-op.
func (l Lock) Release() error {
	if l.dir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, lockOwnerFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.dir, err)
	}
	return nil
}

func readOwner(path string, owner *lockOwner) error {
	data, err := os.ReadFile(path) // #nosec G304 - path is inside the lock directory
	if err != nil {
		return err
	}
	return json.Unmarshal(data, owner)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
