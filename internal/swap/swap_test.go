package swap

// Shared test fixtures: a fake command runner that maintains a simulated
// kernel swap table file, and constructors for managers and migrators wired
// to a temp directory.

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vpskit/vpsinit/internal/config"
	"github.com/vpskit/vpsinit/internal/sysinfo"
)

const procSwapsHeader = "Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority"

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("app", "test")
}

// fakeRunner simulates the system commands the swap engine shells out to.
// fallocate and dd create real files in the temp dir, and swapon/swapoff
// edit the simulated swap table at procSwaps.
type fakeRunner struct {
	t         *testing.T
	procSwaps string
	calls     []string
	fail      map[string]error
	notes     []string

	// allocOverride makes fallocate/dd produce a file of this size instead
	// of the requested one, to simulate a truncated allocation.
	allocOverride int64
}

func newFakeRunner(t *testing.T, procSwaps string) *fakeRunner {
	return &fakeRunner{t: t, procSwaps: procSwaps, fail: map[string]error{}}
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if err := f.fail[name]; err != nil {
		return err
	}

	switch name {
	case "fallocate":
		size, err := strconv.ParseInt(args[1], 10, 64)
		require.NoError(f.t, err)
		if f.allocOverride != 0 {
			size = f.allocOverride
		}
		return truncateFile(args[2], size)
	case "dd":
		var path string
		var count int64
		for _, a := range args {
			if strings.HasPrefix(a, "of=") {
				path = strings.TrimPrefix(a, "of=")
			}
			if strings.HasPrefix(a, "count=") {
				count, _ = strconv.ParseInt(strings.TrimPrefix(a, "count="), 10, 64)
			}
		}
		size := count * 1024 * 1024
		if f.allocOverride != 0 {
			size = f.allocOverride
		}
		return truncateFile(path, size)
	case "swapon":
		return f.addSwapLine(args[0])
	case "swapoff":
		return f.removeSwapLine(args[0])
	}
	return nil
}

func (f *fakeRunner) Output(name string, args ...string) (string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return "", nil
}

func (f *fakeRunner) Note(action string) {
	f.notes = append(f.notes, action)
}

func (f *fakeRunner) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeRunner) callIndex(prefix string) int {
	for i, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (f *fakeRunner) addSwapLine(path string) error {
	data, err := os.ReadFile(f.procSwaps)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s file\t1048572\t0\t-2\n", path)
	return os.WriteFile(f.procSwaps, append(data, []byte(line)...), 0644)
}

func (f *fakeRunner) removeSwapLine(path string) error {
	data, err := os.ReadFile(f.procSwaps)
	if err != nil {
		return err
	}
	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == path {
			continue
		}
		kept = append(kept, line)
	}
	return os.WriteFile(f.procSwaps, []byte(strings.Join(kept, "\n")), 0644)
}

func truncateFile(path string, size int64) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fh.Truncate(size); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// testEnv wires a migrator against a temp directory standing in for the host.
type testEnv struct {
	dir       string
	fstab     string
	procSwaps string
	cfg       config.SwapConfig
	runner    *fakeRunner
	migrator  *Migrator
}

func newTestEnv(t *testing.T, snap sysinfo.MemorySnapshot) *testEnv {
	dir := t.TempDir()
	env := &testEnv{
		dir:       dir,
		fstab:     filepath.Join(dir, "fstab"),
		procSwaps: filepath.Join(dir, "swaps"),
	}
	env.cfg = config.SwapConfig{
		FilePath:        filepath.Join(dir, "swapfile"),
		TempPath:        filepath.Join(dir, "swapfile.new"),
		EmergencyPath:   filepath.Join(dir, "swapfile.emergency"),
		MinFreeRAMMB:    200,
		EmergencySizeMB: 1,
	}

	require.NoError(t, os.WriteFile(env.fstab, nil, 0644))
	env.writeProcSwaps(t)

	env.runner = newFakeRunner(t, env.procSwaps)
	env.migrator = NewMigrator(testLog(), env.cfg, env.runner, false)
	env.migrator.Manager().SetPaths(env.fstab, env.procSwaps)
	env.migrator.Manager().SetFreeDiskMB(func(context.Context, string) (uint64, error) {
		return 1 << 20, nil
	})
	env.migrator.SetMemoryReader(func(context.Context) (sysinfo.MemorySnapshot, error) {
		return snap, nil
	})
	return env
}

// writeProcSwaps resets the simulated swap table to the given file paths.
func (e *testEnv) writeProcSwaps(t *testing.T, files ...string) {
	var b strings.Builder
	b.WriteString(procSwapsHeader + "\n")
	for _, f := range files {
		fmt.Fprintf(&b, "%s file\t2097148\t0\t-2\n", f)
	}
	require.NoError(t, os.WriteFile(e.procSwaps, []byte(b.String()), 0644))
}

func (e *testEnv) fstabContent(t *testing.T) string {
	data, err := os.ReadFile(e.fstab)
	require.NoError(t, err)
	return string(data)
}
