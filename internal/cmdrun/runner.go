package cmdrun

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Runner executes external system commands. Mutating commands go through Run;
// read-only queries go through Output so a dry run can still observe the system.
type Runner interface {
	// Run executes a mutating command, discarding its output.
	Run(name string, args ...string) error

	// Output executes a read-only command and returns its trimmed stdout.
	Output(name string, args ...string) (string, error)

	// Note records a mutating step that is not a command, such as a file
	// write performed directly by the caller.
	Note(action string)
}

// ExecRunner runs commands against the real system.
type ExecRunner struct {
	Log     *logrus.Entry
	command func(string, ...string) *exec.Cmd
}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner(log *logrus.Entry) *ExecRunner {
	return &ExecRunner{
		Log:     log,
		command: exec.Command,
	}
}

// SetCommand sets the command function used by the struct.
// To be used for testing only
func (r *ExecRunner) SetCommand(cmd func(string, ...string) *exec.Cmd) {
	r.command = cmd
}

// Run executes the command and returns an error carrying the combined output
// when it fails.
func (r *ExecRunner) Run(name string, args ...string) error {
	r.Log.WithField("cmd", commandString(name, args)).Debug("running command")

	out, err := r.command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", commandString(name, args), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Output executes the command and returns its trimmed stdout.
func (r *ExecRunner) Output(name string, args ...string) (string, error) {
	r.Log.WithField("cmd", commandString(name, args)).Debug("querying command")

	out, err := r.command(name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", commandString(name, args), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Note logs the step; in a real run the caller performs it directly.
func (r *ExecRunner) Note(action string) {
	r.Log.WithField("action", action).Debug("executing step")
}

// DryRunner records every mutating command instead of executing it.
// Read-only queries are delegated so decisions use real system state.
type DryRunner struct {
	Log   *logrus.Entry
	inner Runner

	mu      sync.Mutex
	actions []string
}

// NewDryRunner wraps inner so that mutating commands become planned actions.
func NewDryRunner(log *logrus.Entry, inner Runner) *DryRunner {
	return &DryRunner{Log: log, inner: inner}
}

// Run records the command as a planned action without executing it.
func (d *DryRunner) Run(name string, args ...string) error {
	d.Note(commandString(name, args))
	return nil
}

// Output delegates to the wrapped runner.
func (d *DryRunner) Output(name string, args ...string) (string, error) {
	return d.inner.Output(name, args...)
}

// Note records a planned action that is not a command, such as a file write.
func (d *DryRunner) Note(action string) {
	d.mu.Lock()
	d.actions = append(d.actions, action)
	d.mu.Unlock()

	d.Log.WithField("action", action).Info("dry-run: would execute")
}

// Actions returns the recorded plan in order.
func (d *DryRunner) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, len(d.actions))
	copy(out, d.actions)
	return out
}

func commandString(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
