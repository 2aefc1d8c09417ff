package setup

import (
	"fmt"
	"sort"
	"strings"
)

// SysctlConfPath is where the tuning parameters are persisted.
const SysctlConfPath = "/etc/sysctl.d/99-vpsinit.conf"

// TuneNetwork persists the configured kernel parameters (BBR congestion
// control, fq_codel queueing and friends) and reloads them.
func (s *Steps) TuneNetwork() error {
	if len(s.Cfg.Sysctl) == 0 {
		s.Log.Info("no sysctl parameters configured, skipping")
		return nil
	}

	s.Log.WithField("params", len(s.Cfg.Sysctl)).Info("applying kernel network tuning")

	if err := s.writeFile(SysctlConfPath, renderSysctl(s.Cfg.Sysctl), 0644); err != nil {
		return err
	}

	if err := s.Run.Run("sysctl", "--system"); err != nil {
		return fmt.Errorf("failed to reload sysctl settings: %w", err)
	}
	return nil
}

// renderSysctl produces the conf file body with keys in stable order.
func renderSysctl(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Managed by vpsinit\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, params[k])
	}
	return b.String()
}
