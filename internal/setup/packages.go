package setup

import "fmt"

// InstallPackages refreshes the package index and installs the configured
// base package set.
func (s *Steps) InstallPackages() error {
	if len(s.Cfg.Packages) == 0 {
		s.Log.Info("no base packages configured, skipping")
		return nil
	}

	s.Log.WithField("packages", s.Cfg.Packages).Info("installing base packages")

	if err := s.Run.Run("apt-get", "update", "-qq"); err != nil {
		return fmt.Errorf("failed to update package index: %w", err)
	}

	args := append([]string{"install", "-y", "-qq"}, s.Cfg.Packages...)
	if err := s.Run.Run("apt-get", args...); err != nil {
		return fmt.Errorf("failed to install packages: %w", err)
	}
	return nil
}
