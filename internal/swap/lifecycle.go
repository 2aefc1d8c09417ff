package swap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vpskit/vpsinit/internal/cmdrun"
	"github.com/vpskit/vpsinit/internal/sysinfo"
)

// HandleState tracks a swap file through its life. Transitions are forward
// only; a handle is never reused across migrations.
type HandleState int

const (
	StateCreated HandleState = iota
	StateFormatted
	StateActive
	StateRetired
	StateRemoved
)

func (s HandleState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFormatted:
		return "formatted"
	case StateActive:
		return "active"
	case StateRetired:
		return "retired"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// FileHandle identifies one swap file owned by the Manager during a migration.
type FileHandle struct {
	Path   string
	SizeMB uint64
	State  HandleState
}

// diskHeadroomMB is extra free space required beyond the file itself, so the
// allocation cannot fill the filesystem to the brim.
const diskHeadroomMB = 64

// Manager creates, formats, activates, retires and removes swap files, and
// maintains the fstab entry for the canonical path.
type Manager struct {
	log        *logrus.Entry
	run        cmdrun.Runner
	dryRun     bool
	fstabPath  string
	procSwaps  string
	freeDiskMB func(context.Context, string) (uint64, error)
}

// NewManager creates a lifecycle manager. With dryRun set, every mutating
// step is recorded through the runner instead of performed.
func NewManager(log *logrus.Entry, run cmdrun.Runner, dryRun bool) *Manager {
	return &Manager{
		log:        log,
		run:        run,
		dryRun:     dryRun,
		fstabPath:  "/etc/fstab",
		procSwaps:  "/proc/swaps",
		freeDiskMB: sysinfo.FreeDiskMB,
	}
}

// SetPaths overrides the system file locations.
// To be used for testing only
func (m *Manager) SetPaths(fstab, procSwaps string) {
	m.fstabPath = fstab
	m.procSwaps = procSwaps
}

// SetFreeDiskMB overrides the disk space probe.
// To be used for testing only
func (m *Manager) SetFreeDiskMB(f func(context.Context, string) (uint64, error)) {
	m.freeDiskMB = f
}

// fileOp performs a direct filesystem mutation, or records it in dry-run mode.
func (m *Manager) fileOp(desc string, op func() error) error {
	if m.dryRun {
		m.run.Note(desc)
		return nil
	}
	m.log.Debug(desc)
	return op()
}

// CreateFile allocates and formats a new swap file at path, returning a
// handle in the Formatted state. Disk space is verified before any byte is
// written, allocation prefers fallocate and falls back to dd, permissions
// are restricted to root, and a file whose final size does not match is
// deleted rather than returned.
func (m *Manager) CreateFile(ctx context.Context, path string, sizeMB uint64) (*FileHandle, error) {
	free, err := m.freeDiskMB(ctx, path)
	if err != nil {
		return nil, err
	}
	if free < sizeMB+diskHeadroomMB {
		return nil, fmt.Errorf("%w: need %d MB, %d MB free at %s",
			ErrInsufficientDiskSpace, sizeMB+diskHeadroomMB, free, filepath.Dir(path))
	}

	// A stale file at the staging path from an interrupted run is replaced.
	if err := m.fileOp(fmt.Sprintf("remove stale file %s", path), func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to remove stale file %s: %w", path, err)
	}

	sizeBytes := sizeMB * 1024 * 1024
	if err := m.allocate(path, sizeMB, sizeBytes); err != nil {
		m.deleteQuietly(path)
		return nil, err
	}

	handle := &FileHandle{Path: path, SizeMB: sizeMB, State: StateCreated}

	if err := m.fileOp(fmt.Sprintf("chmod 0600 %s", path), func() error {
		return os.Chmod(path, 0600)
	}); err != nil {
		m.deleteQuietly(path)
		return nil, fmt.Errorf("failed to restrict permissions on %s: %w", path, err)
	}

	if !m.dryRun {
		info, err := os.Stat(path)
		if err != nil {
			m.deleteQuietly(path)
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if uint64(info.Size()) != sizeBytes {
			m.deleteQuietly(path)
			return nil, fmt.Errorf("%w: %s is %d bytes, want %d",
				ErrSizeMismatch, path, info.Size(), sizeBytes)
		}
	}

	if err := m.run.Run("mkswap", path); err != nil {
		m.deleteQuietly(path)
		return nil, fmt.Errorf("failed to format %s as swap: %w", path, err)
	}

	handle.State = StateFormatted
	m.log.WithFields(logrus.Fields{"path": path, "size_mb": sizeMB}).Info("swap file created")
	return handle, nil
}

// allocate writes the file with fallocate, falling back to dd when the
// filesystem does not support extent preallocation.
func (m *Manager) allocate(path string, sizeMB, sizeBytes uint64) error {
	err := m.run.Run("fallocate", "-l", fmt.Sprintf("%d", sizeBytes), path)
	if err == nil {
		return nil
	}

	m.log.WithError(err).Debug("fallocate unavailable, falling back to dd")
	if err := m.run.Run("dd", "if=/dev/zero", "of="+path,
		"bs=1M", fmt.Sprintf("count=%d", sizeMB), "status=none"); err != nil {
		return fmt.Errorf("failed to allocate %s: %w", path, err)
	}
	return nil
}

// Activate enables the file as live swap, transitioning Formatted to Active.
func (m *Manager) Activate(handle *FileHandle) error {
	if handle.State != StateFormatted {
		return fmt.Errorf("cannot activate swap file in state %s", handle.State)
	}
	if err := m.run.Run("swapon", handle.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrActivationFailed, err)
	}
	handle.State = StateActive
	m.log.WithField("path", handle.Path).Info("swap file activated")
	return nil
}

// Retire disables the swap area, transitioning Active to Retired. An area
// that is already inactive counts as success; the goal state is "not in use".
func (m *Manager) Retire(handle *FileHandle) error {
	if handle.State > StateRetired {
		return fmt.Errorf("cannot retire swap file in state %s", handle.State)
	}

	active, err := m.pathActive(handle.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetireFailed, err)
	}
	if !active {
		handle.State = StateRetired
		return nil
	}

	if err := m.run.Run("swapoff", handle.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrRetireFailed, err)
	}
	handle.State = StateRetired
	m.log.WithField("path", handle.Path).Info("swap file retired")
	return nil
}

// Remove deletes the backing file, transitioning Retired to Removed.
// A file that is already gone counts as success.
func (m *Manager) Remove(handle *FileHandle) error {
	if handle.State != StateRetired {
		return fmt.Errorf("cannot remove swap file in state %s", handle.State)
	}
	if err := m.fileOp(fmt.Sprintf("remove %s", handle.Path), func() error {
		if err := os.Remove(handle.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", handle.Path, err)
	}
	handle.State = StateRemoved
	return nil
}

// Promote moves the file to its final path. The handle is updated in place.
func (m *Manager) Promote(handle *FileHandle, dest string) error {
	if handle.Path == dest {
		return nil
	}
	if err := m.fileOp(fmt.Sprintf("rename %s to %s", handle.Path, dest), func() error {
		return os.Rename(handle.Path, dest)
	}); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", handle.Path, dest, err)
	}
	handle.Path = dest
	return nil
}

// Persist rewrites fstab so that exactly one swap entry references path.
// Unrelated entries are preserved byte for byte. The rewrite goes through a
// temporary file and an atomic rename so a crash cannot truncate the table.
func (m *Manager) Persist(path string) error {
	return m.rewriteFstab(path, true)
}

// Unpersist removes any swap entry referencing path from fstab.
func (m *Manager) Unpersist(path string) error {
	return m.rewriteFstab(path, false)
}

func (m *Manager) rewriteFstab(path string, keep bool) error {
	desc := fmt.Sprintf("remove swap entry for %s from %s", path, m.fstabPath)
	if keep {
		desc = fmt.Sprintf("write swap entry for %s to %s", path, m.fstabPath)
	}
	return m.fileOp(desc, func() error {
		data, err := os.ReadFile(m.fstabPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", m.fstabPath, err)
		}

		var lines []string
		for _, line := range strings.Split(string(data), "\n") {
			fields := strings.Fields(line)
			if len(fields) > 0 && fields[0] == path {
				continue
			}
			lines = append(lines, line)
		}

		// Drop trailing blank lines so repeated rewrites don't grow the file
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		if keep {
			lines = append(lines, fmt.Sprintf("%s none swap sw 0 0", path))
		}
		content := strings.Join(lines, "\n") + "\n"
		if len(lines) == 0 {
			content = ""
		}

		tmp := m.fstabPath + ".vpsinit.tmp"
		if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, m.fstabPath); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to replace %s: %w", m.fstabPath, err)
		}
		return nil
	})
}

// ActiveFiles returns the file-backed swap areas currently enabled.
func (m *Manager) ActiveFiles() ([]string, error) {
	return activeSwapFiles(m.procSwaps)
}

func (m *Manager) pathActive(path string) (bool, error) {
	files, err := activeSwapFiles(m.procSwaps)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f == path {
			return true, nil
		}
	}
	return false, nil
}

// deleteQuietly removes a partially created artifact on an error path.
func (m *Manager) deleteQuietly(path string) {
	if m.dryRun {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.log.WithError(err).WithField("path", path).Warn("failed to clean up partial swap file")
	}
}
