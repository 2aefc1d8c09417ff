package setup

import "fmt"

// CurrentTimezone returns the zone the host is configured with.
func (s *Steps) CurrentTimezone() (string, error) {
	out, err := s.Run.Output("timedatectl", "show", "-p", "Timezone", "--value")
	if err != nil {
		return "", fmt.Errorf("failed to read current timezone: %w", err)
	}
	return out, nil
}

// SetTimezone applies the configured timezone through timedatectl.
func (s *Steps) SetTimezone() error {
	zone := s.Cfg.Timezone
	if zone == "" {
		s.Log.Info("no timezone configured, skipping")
		return nil
	}

	current, err := s.CurrentTimezone()
	if err == nil && current == zone {
		s.Log.WithField("timezone", zone).Info("timezone already set")
		return nil
	}

	s.Log.WithField("timezone", zone).Info("setting timezone")
	if err := s.Run.Run("timedatectl", "set-timezone", zone); err != nil {
		return fmt.Errorf("failed to set timezone %s: %w", zone, err)
	}
	return nil
}
