package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// Tool info (injected at build time via ldflags)
	Version   = "1.0.0"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Configuration file path
	ConfigFilePath = "/etc/vpsinit/config.yaml"
)

// SwapConfig controls the swap migration engine.
type SwapConfig struct {
	// FilePath is the canonical swap file location referenced by fstab.
	FilePath string `yaml:"file_path"`
	// TempPath is where a replacement file is staged before it becomes canonical.
	TempPath string `yaml:"temp_path"`
	// EmergencyPath is the location of the temporary safety-net swap file.
	EmergencyPath string `yaml:"emergency_path"`
	// MinFreeRAMMB is the free-RAM floor below which swap mutation is blocked
	// while swap is in use.
	MinFreeRAMMB uint64 `yaml:"min_free_ram_mb"`
	// EmergencySizeMB is the size of the safety-net swap file.
	EmergencySizeMB uint64 `yaml:"emergency_size_mb"`
}

// SetupConfig controls the surrounding bootstrap steps.
type SetupConfig struct {
	Packages []string          `yaml:"packages"`
	Timezone string            `yaml:"timezone"`
	Sysctl   map[string]string `yaml:"sysctl"`
	Journald JournaldConfig    `yaml:"journald"`
}

// JournaldConfig bounds journal disk usage.
type JournaldConfig struct {
	MaxUse      string `yaml:"max_use"`
	MaxFileSize string `yaml:"max_file_size"`
	MaxAge      string `yaml:"max_age"`
}

// Config is the full tool configuration.
type Config struct {
	Swap  SwapConfig  `yaml:"swap"`
	Setup SetupConfig `yaml:"setup"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Swap: SwapConfig{
			FilePath:        "/swapfile",
			TempPath:        "/swapfile.new",
			EmergencyPath:   "/swapfile.emergency",
			MinFreeRAMMB:    200,
			EmergencySizeMB: 256,
		},
		Setup: SetupConfig{
			Packages: []string{
				"curl", "wget", "vim", "htop", "net-tools",
				"ca-certificates", "unzip", "cron",
			},
			Timezone: "Asia/Shanghai",
			Sysctl: map[string]string{
				"net.core.default_qdisc":          "fq_codel",
				"net.ipv4.tcp_congestion_control": "bbr",
				"net.ipv4.tcp_fastopen":           "3",
				"net.core.somaxconn":              "4096",
				"net.ipv4.tcp_max_syn_backlog":    "8192",
				"vm.swappiness":                   "10",
				"fs.file-max":                     "1048576",
			},
			Journald: JournaldConfig{
				MaxUse:      "200M",
				MaxFileSize: "50M",
				MaxAge:      "2week",
			},
		},
	}
}

// Load reads the configuration file at path and overlays it on the defaults.
// A missing file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
