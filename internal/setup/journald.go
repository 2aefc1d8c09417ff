package setup

import (
	"fmt"
	"os"
)

// JournaldConfDir holds the vpsinit journald drop-in.
const JournaldConfDir = "/etc/systemd/journald.conf.d"

// LimitJournal caps journald disk usage with a drop-in, restarts the journal
// service and vacuums existing logs down to the configured bounds.
func (s *Steps) LimitJournal() error {
	cfg := s.Cfg.Journald

	s.Log.WithFields(map[string]interface{}{
		"max_use": cfg.MaxUse,
		"max_age": cfg.MaxAge,
	}).Info("limiting journald disk usage")

	if !s.DryRun {
		if err := os.MkdirAll(JournaldConfDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", JournaldConfDir, err)
		}
	}

	content := fmt.Sprintf("[Journal]\nSystemMaxUse=%s\nSystemMaxFileSize=%s\nMaxRetentionSec=%s\n",
		cfg.MaxUse, cfg.MaxFileSize, cfg.MaxAge)
	if err := s.writeFile(JournaldConfDir+"/vpsinit.conf", content, 0644); err != nil {
		return err
	}

	if err := s.Run.Run("systemctl", "restart", "systemd-journald"); err != nil {
		return fmt.Errorf("failed to restart journald: %w", err)
	}

	if err := s.Run.Run("journalctl", "--vacuum-size="+cfg.MaxUse); err != nil {
		return fmt.Errorf("failed to vacuum journal by size: %w", err)
	}
	if err := s.Run.Run("journalctl", "--vacuum-time="+cfg.MaxAge); err != nil {
		return fmt.Errorf("failed to vacuum journal by age: %w", err)
	}
	return nil
}
