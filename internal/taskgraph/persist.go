package taskgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/codecrew/internal/errors"
)

const (
	// SnapshotFileName is the file SaveSnapshot writes inside its directory.
	SnapshotFileName = "tasks.json"

	snapshotLockName = "tasks.lock"
	lockPollInterval = 10 * time.Millisecond
)

// ErrSnapshotInUse is returned when another run holds the snapshot lock for
// longer than SnapshotLockTimeout.
var ErrSnapshotInUse = errors.New("task snapshot in use by another run")

// SnapshotLockTimeout bounds how long SaveSnapshot and LoadSnapshot wait for
// another run to release an audit directory.
var SnapshotLockTimeout = 5 * time.Second

// lockSnapshot takes an exclusive flock(2) on the audit directory's lock
// file, polling until timeout. The returned func releases it.
func lockSnapshot(dir string, timeout time.Duration) (func(), error) {
	f, err := os.OpenFile(filepath.Join(dir, snapshotLockName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open snapshot lock: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			_ = f.Close()
			return nil, fmt.Errorf("flock %s: %w", dir, err)
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s", ErrSnapshotInUse, dir)
		}
		time.Sleep(lockPollInterval)
	}

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}

// snapshot is the serializable representation of the store.
type snapshot struct {
	Tasks    map[string]*Task `json:"tasks"`
	Order    []string         `json:"order"`
	Progress float64          `json:"progress"`
	Counts   StatusCounts     `json:"counts"`
}

// SaveSnapshot writes the store to a JSON file in dir, creating dir if
// needed. The write is atomic: data is written to a temporary file first,
// then renamed into place. The snapshot lock is held during the operation so
// that concurrent runs sharing an audit directory do not interleave writes.
func (s *Store) SaveSnapshot(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	release, err := lockSnapshot(dir, SnapshotLockTimeout)
	if err != nil {
		return err
	}
	defer release()

	counts := s.Status()
	progress := s.Progress()

	s.mu.Lock()
	data, err := json.MarshalIndent(snapshot{
		Tasks:    s.tasks,
		Order:    s.order,
		Progress: progress,
		Counts:   counts,
	}, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal task snapshot: %w", err)
	}

	target := filepath.Join(dir, SnapshotFileName)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// LoadSnapshot restores a Store from a snapshot previously written by
// SaveSnapshot in dir. Order entries without a task are dropped.
func LoadSnapshot(dir string) (*Store, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	release, err := lockSnapshot(dir, SnapshotLockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := os.ReadFile(filepath.Join(dir, SnapshotFileName))
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal task snapshot: %w", err)
	}

	return newFromTasks(snap.Tasks, snap.Order), nil
}
