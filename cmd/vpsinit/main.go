package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/integrii/flaggy"
	"github.com/sirupsen/logrus"

	"github.com/vpskit/vpsinit/internal/cmdrun"
	"github.com/vpskit/vpsinit/internal/config"
	"github.com/vpskit/vpsinit/internal/menu"
	"github.com/vpskit/vpsinit/internal/setup"
	"github.com/vpskit/vpsinit/internal/swap"
	"github.com/vpskit/vpsinit/internal/sysinfo"
)

var (
	configPath = config.ConfigFilePath
	dryRun     bool

	swapMode   = "auto"
	swapSizeMB int
	swapYes    bool
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("VPSINIT_DEBUG") == "true" || os.Getenv("VPSINIT_DEBUG") == "1" {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("app", "vpsinit")

	flaggy.SetName("vpsinit")
	flaggy.SetDescription("Bootstrap a fresh Debian/Ubuntu VPS: swap, timezone, packages, network tuning, journald limits")
	flaggy.SetVersion(config.Version)
	flaggy.String(&configPath, "c", "config", "Path to the configuration file")
	flaggy.Bool(&dryRun, "n", "dry-run", "Describe every change instead of applying it")

	swapCmd := flaggy.NewSubcommand("swap")
	swapCmd.Description = "Configure the swap file"
	swapCmd.String(&swapMode, "m", "mode", "One of: auto, set, increase, decrease")
	swapCmd.Int(&swapSizeMB, "s", "size", "Size or delta in MB (ignored in auto mode)")
	swapCmd.Bool(&swapYes, "y", "yes", "Apply without asking for confirmation")
	flaggy.AttachSubcommand(swapCmd, 1)

	setupCmd := flaggy.NewSubcommand("setup")
	setupCmd.Description = "Run all bootstrap steps non-interactively"
	flaggy.AttachSubcommand(setupCmd, 1)

	menuCmd := flaggy.NewSubcommand("menu")
	menuCmd.Description = "Open the interactive bootstrap menu"
	flaggy.AttachSubcommand(menuCmd, 1)

	statusCmd := flaggy.NewSubcommand("status")
	statusCmd.Description = "Show current memory and swap state"
	flaggy.AttachSubcommand(statusCmd, 1)

	flaggy.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	switch {
	case swapCmd.Used:
		if err := runSwap(log, cfg); err != nil {
			log.WithError(err).Error("swap migration failed")
			os.Exit(1)
		}
	case setupCmd.Used:
		runSetup(log, cfg)
	case menuCmd.Used:
		runMenu(log, cfg)
	case statusCmd.Used:
		showStatus(log)
	default:
		runMenu(log, cfg)
	}
}

// newRunner builds the command runner, wrapping it for dry-run when asked.
func newRunner(log *logrus.Entry) cmdrun.Runner {
	exec := cmdrun.NewExecRunner(log)
	if dryRun {
		return cmdrun.NewDryRunner(log, exec)
	}
	return exec
}

func requireRoot() {
	if os.Geteuid() != 0 && !dryRun {
		fmt.Println("Error: this command mutates system state and requires root privileges.")
		fmt.Println("Please re-run with sudo, or pass --dry-run to preview changes.")
		os.Exit(1)
	}
}

func runSwap(log *logrus.Entry, cfg *config.Config) error {
	requireRoot()
	ctx := context.Background()

	snap, err := sysinfo.ReadMemory(ctx)
	if err != nil {
		return err
	}

	target, err := swapTarget(snap)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("Swap change: %d MB -> %d MB", snap.TotalSwapMB, target)
	if dryRun {
		fmt.Print("  (dry run)")
	}
	fmt.Println()

	// Auto mode is the unattended default-setup path and skips confirmation;
	// explicit size changes ask first.
	if swapMode != "auto" && !swapYes && !dryRun && target != snap.TotalSwapMB {
		if !menu.Confirm(os.Stdin, os.Stdout, "Proceed") {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	migrator := swap.NewMigrator(log, cfg.Swap, newRunner(log), dryRun)
	result, err := migrateWithCleanup(ctx, log, migrator, target)
	if err != nil {
		return err
	}
	reportSwapResult(result)
	return nil
}

// migrateWithCleanup runs the migration with the emergency swap released on
// normal return, on error, and on SIGINT/SIGTERM.
func migrateWithCleanup(ctx context.Context, log *logrus.Entry, migrator *swap.Migrator, target uint64) (swap.Result, error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		log.WithField("signal", sig).Warn("interrupted, cleaning up")
		migrator.Cleanup()
		os.Exit(130)
	}()

	result, err := migrator.Run(ctx, target)
	signal.Stop(sigChan)
	close(sigChan)
	return result, err
}

func swapTarget(snap sysinfo.MemorySnapshot) (uint64, error) {
	size := uint64(swapSizeMB)
	switch swapMode {
	case "auto":
		return swap.RecommendMB(snap.TotalRAMMB), nil
	case "set":
		return size, nil
	case "increase":
		return snap.TotalSwapMB + size, nil
	case "decrease":
		if size >= snap.TotalSwapMB {
			return 0, nil
		}
		return snap.TotalSwapMB - size, nil
	default:
		return 0, fmt.Errorf("unknown swap mode %q (want auto, set, increase or decrease)", swapMode)
	}
}

func reportSwapResult(result swap.Result) {
	if !result.Changed {
		fmt.Printf("Swap already at %d MB, no change needed.\n", result.FinalSwapMB)
		return
	}
	color.Green("Swap configured: %d MB", result.FinalSwapMB)
	for _, w := range result.Warnings {
		color.Yellow("Warning: %s", w)
	}
}

func runSetup(log *logrus.Entry, cfg *config.Config) {
	requireRoot()
	run := newRunner(log)
	steps := setup.NewSteps(log, run, &cfg.Setup, dryRun)

	for _, step := range []struct {
		name string
		fn   func() error
	}{
		{"base packages", steps.InstallPackages},
		{"timezone", steps.SetTimezone},
		{"network tuning", steps.TuneNetwork},
		{"journald limits", steps.LimitJournal},
	} {
		fmt.Printf("==> %s\n", step.name)
		if err := step.fn(); err != nil {
			log.WithError(err).Errorf("%s failed", step.name)
			os.Exit(1)
		}
	}

	// Default setup also brings swap to the recommended size, unattended.
	fmt.Println("==> swap")
	swapMode = "auto"
	if err := runSwap(log, cfg); err != nil {
		log.WithError(err).Error("swap migration failed")
		os.Exit(1)
	}
}

func runMenu(log *logrus.Entry, cfg *config.Config) {
	run := newRunner(log)
	steps := setup.NewSteps(log, run, &cfg.Setup, dryRun)

	m := &menu.Menu{
		Log:   log,
		In:    os.Stdin,
		Out:   os.Stdout,
		Title: fmt.Sprintf("vpsinit v%s", config.Version),
		Actions: []menu.Action{
			{Label: "Show memory and swap status", Run: func() error { showStatus(log); return nil }},
			{Label: "Configure swap (recommended size)", Run: func() error {
				swapMode = "auto"
				return runSwap(log, cfg)
			}},
			{Label: "Install base packages", Run: steps.InstallPackages},
			{Label: "Set timezone", Run: steps.SetTimezone},
			{Label: "Apply network tuning (BBR + fq_codel)", Run: steps.TuneNetwork},
			{Label: "Limit journald disk usage", Run: steps.LimitJournal},
		},
	}

	if err := m.Loop(); err != nil {
		log.WithError(err).Error("menu failed")
		os.Exit(1)
	}
}

func showStatus(log *logrus.Entry) {
	ctx := context.Background()
	snap, err := sysinfo.ReadMemory(ctx)
	if err != nil {
		log.WithError(err).Error("cannot read memory state")
		os.Exit(1)
	}

	fmt.Printf("RAM:  %d MB total, %d MB available\n", snap.TotalRAMMB, snap.FreeRAMMB)
	fmt.Printf("Swap: %d MB total, %d MB used\n", snap.TotalSwapMB, snap.UsedSwapMB())
	fmt.Printf("Recommended swap: %d MB\n", swap.RecommendMB(snap.TotalRAMMB))
}
