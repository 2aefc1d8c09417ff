// Package setup runs the low-risk bootstrap steps around the swap engine:
// base packages, timezone, kernel network tuning and journald limits. Each
// step is a thin sequence of system commands and honors dry-run.
package setup

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vpskit/vpsinit/internal/cmdrun"
	"github.com/vpskit/vpsinit/internal/config"
)

// Steps executes the bootstrap steps against the host.
type Steps struct {
	Log    *logrus.Entry
	Run    cmdrun.Runner
	Cfg    *config.SetupConfig
	DryRun bool
}

// NewSteps creates the step runner.
func NewSteps(log *logrus.Entry, run cmdrun.Runner, cfg *config.SetupConfig, dryRun bool) *Steps {
	return &Steps{Log: log, Run: run, Cfg: cfg, DryRun: dryRun}
}

// writeFile writes a config file, or records the write in dry-run mode.
func (s *Steps) writeFile(path, content string, mode os.FileMode) error {
	if s.DryRun {
		s.Run.Note(fmt.Sprintf("write %s", path))
		return nil
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
