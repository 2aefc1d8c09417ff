package swap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vpskit/vpsinit/internal/cmdrun"
	"github.com/vpskit/vpsinit/internal/config"
	"github.com/vpskit/vpsinit/internal/sysinfo"
)

// Result summarizes a finished migration.
type Result struct {
	// FinalSwapMB is the swap capacity the run converged on.
	FinalSwapMB uint64
	// Changed is false when the target already matched and nothing was done.
	Changed bool
	// Warnings holds non-fatal problems, such as an old file that could not
	// be retired after the new one was already live.
	Warnings []string
}

// Migrator sequences a swap change as one pipeline: snapshot, safety check,
// create new, activate new, retire old, finalize, release the safety net.
// Growing, shrinking and disabling all flow through the same steps; only the
// target size differs.
type Migrator struct {
	log           *logrus.Entry
	mgr           *Manager
	guard         *Guard
	readMem       sysinfo.MemoryReader
	canonicalPath string
	tempPath      string
	minFreeRAMMB  uint64
}

// NewMigrator wires a migrator from the swap configuration. With dryRun set,
// every mutating step is recorded on the runner instead of performed.
func NewMigrator(log *logrus.Entry, cfg config.SwapConfig, run cmdrun.Runner, dryRun bool) *Migrator {
	mgr := NewManager(log, run, dryRun)
	return &Migrator{
		log:           log,
		mgr:           mgr,
		guard:         NewGuard(log, mgr, cfg.EmergencyPath, cfg.EmergencySizeMB),
		readMem:       sysinfo.ReadMemory,
		canonicalPath: cfg.FilePath,
		tempPath:      cfg.TempPath,
		minFreeRAMMB:  cfg.MinFreeRAMMB,
	}
}

// Manager exposes the lifecycle manager, mainly so callers can reconfigure
// system paths in tests.
func (m *Migrator) Manager() *Manager {
	return m.mgr
}

// SetMemoryReader overrides the memory snapshot source.
// To be used for testing only
func (m *Migrator) SetMemoryReader(r sysinfo.MemoryReader) {
	m.readMem = r
}

// Cleanup releases the emergency swap if one is active. It is called from
// the signal path so an interrupted run never leaves the safety net behind.
func (m *Migrator) Cleanup() {
	m.guard.Release()
}

// Run migrates the host to targetMB of swap. A target equal to the current
// total is a no-op; a target of zero disables swap entirely. Fatal errors
// roll back everything created in this attempt, in reverse order.
func (m *Migrator) Run(ctx context.Context, targetMB uint64) (Result, error) {
	snap, err := m.readMem(ctx)
	if err != nil {
		return Result{}, err
	}

	if targetMB == snap.TotalSwapMB {
		m.log.WithField("swap_mb", targetMB).Info("swap already at target size, nothing to do")
		return Result{FinalSwapMB: snap.TotalSwapMB}, nil
	}

	m.log.WithFields(logrus.Fields{
		"current_mb": snap.TotalSwapMB,
		"target_mb":  targetMB,
	}).Info("starting swap migration")

	if !SafeToMutate(snap, m.minFreeRAMMB) {
		m.log.WithFields(logrus.Fields{
			"free_ram_mb":  snap.FreeRAMMB,
			"used_swap_mb": snap.UsedSwapMB(),
		}).Warn("memory pressure detected, provisioning emergency swap")

		if err := m.guard.Provision(ctx); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrSafetyAbort, err)
		}
	}
	// The safety net is released on every return path below.
	defer m.guard.Release()

	var warnings []string
	if targetMB == 0 {
		if err := m.disable(); err != nil {
			return Result{}, err
		}
	} else {
		if err := m.replace(ctx, targetMB, &warnings); err != nil {
			return Result{}, err
		}
	}

	for _, w := range warnings {
		m.log.Warn(w)
	}
	m.log.WithField("swap_mb", targetMB).Info("swap migration complete")
	return Result{FinalSwapMB: targetMB, Changed: true, Warnings: warnings}, nil
}

// disable retires and removes every swap file and drops the fstab entry.
// Unlike retirement during a replacement, failures here are fatal: there is
// no new swap file whose success could make them tolerable.
func (m *Migrator) disable() error {
	files, err := m.mgr.ActiveFiles()
	if err != nil {
		return fmt.Errorf("failed to read active swap areas: %w", err)
	}

	for _, path := range files {
		if path == m.guard.Path() {
			continue
		}
		handle := &FileHandle{Path: path, State: StateActive}
		if err := m.mgr.Retire(handle); err != nil {
			return err
		}
		if err := m.mgr.Remove(handle); err != nil {
			return err
		}
		if path != m.canonicalPath {
			if err := m.mgr.Unpersist(path); err != nil {
				return err
			}
		}
	}

	return m.mgr.Unpersist(m.canonicalPath)
}

// replace stages a new swap file, activates it alongside the old one, then
// retires the old file and finalizes paths and fstab. Old and new overlap on
// purpose: capacity never drops below what the host had before the run.
func (m *Migrator) replace(ctx context.Context, targetMB uint64, warnings *[]string) error {
	newFile, err := m.mgr.CreateFile(ctx, m.tempPath, targetMB)
	if err != nil {
		return err
	}

	if err := m.mgr.Activate(newFile); err != nil {
		m.mgr.deleteQuietly(newFile.Path)
		return err
	}

	// Retire previous swap files. The new file and the emergency file are
	// never candidates. Failures are warnings; the new swap is already live.
	canonicalStuck := false
	if files, err := m.mgr.ActiveFiles(); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("could not enumerate old swap areas: %v", err))
	} else {
		for _, path := range files {
			if path == m.tempPath || path == m.guard.Path() {
				continue
			}
			old := &FileHandle{Path: path, State: StateActive}
			if err := m.mgr.Retire(old); err != nil {
				*warnings = append(*warnings, fmt.Sprintf("old swap file %s left in place: %v", path, err))
				if path == m.canonicalPath {
					canonicalStuck = true
				}
				continue
			}
			if err := m.mgr.Remove(old); err != nil {
				*warnings = append(*warnings, fmt.Sprintf("old swap file %s not deleted: %v", path, err))
				continue
			}
			// An fstab entry naming a deleted file must not survive the run.
			if path != m.canonicalPath {
				if err := m.mgr.Unpersist(path); err != nil {
					*warnings = append(*warnings, fmt.Sprintf("stale fstab entry for %s not removed: %v", path, err))
				}
			}
		}
	}

	// Finalize. If the old canonical file refused to release, the new file
	// stays at the staging path and fstab points there instead.
	dest := m.canonicalPath
	if canonicalStuck {
		*warnings = append(*warnings,
			fmt.Sprintf("canonical path %s still in use, keeping new swap at %s", m.canonicalPath, m.tempPath))
		dest = m.tempPath
	}
	if err := m.mgr.Promote(newFile, dest); err != nil {
		return err
	}
	return m.mgr.Persist(dest)
}
