package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vpskit/vpsinit/internal/sysinfo"
)

// SafeToMutate reports whether swap capacity can be reduced right now.
// It is unsafe only when free RAM is below the floor while swap is actively
// absorbing pages; unused swap can always be touched, even on a tight machine.
func SafeToMutate(snap sysinfo.MemorySnapshot, minFreeRAMMB uint64) bool {
	return snap.FreeRAMMB >= minFreeRAMMB || snap.UsedSwapMB() == 0
}

// Guard owns the temporary emergency swap file: a safety net activated when
// live memory pressure makes it risky to momentarily reduce swap capacity.
// At most one exists per process, and Release must run on every exit path.
type Guard struct {
	log    *logrus.Entry
	mgr    *Manager
	path   string
	sizeMB uint64

	mu     sync.Mutex
	handle *FileHandle
}

// NewGuard creates a guard that provisions its emergency file at path.
func NewGuard(log *logrus.Entry, mgr *Manager, path string, sizeMB uint64) *Guard {
	return &Guard{log: log, mgr: mgr, path: path, sizeMB: sizeMB}
}

// Path returns the emergency file location, active or not.
func (g *Guard) Path() string {
	return g.path
}

// Provision creates and activates the emergency swap file. Calling it again
// while one is active is a no-op. On partial failure nothing is left behind
// at the emergency path.
func (g *Guard) Provision(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.handle != nil {
		return nil
	}

	handle, err := g.mgr.CreateFile(ctx, g.path, g.sizeMB)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmergencyProvisionFailed, err)
	}
	if err := g.mgr.Activate(handle); err != nil {
		g.mgr.deleteQuietly(g.path)
		return fmt.Errorf("%w: %v", ErrEmergencyProvisionFailed, err)
	}

	g.handle = handle
	g.log.WithFields(logrus.Fields{"path": g.path, "size_mb": g.sizeMB}).
		Info("emergency swap provisioned")
	return nil
}

// Release deactivates and deletes the emergency swap file. It is safe to call
// with nothing provisioned and never propagates errors; it runs on exiting or
// already-failing paths where there is nothing useful to do with one.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.handle == nil {
		return
	}

	if err := g.mgr.Retire(g.handle); err != nil {
		g.log.WithError(err).Warn("failed to deactivate emergency swap")
		g.handle = nil
		return
	}
	if err := g.mgr.Remove(g.handle); err != nil {
		g.log.WithError(err).Warn("failed to delete emergency swap file")
	}
	g.handle = nil
	g.log.WithField("path", g.path).Info("emergency swap released")
}
