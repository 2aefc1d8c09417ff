package swap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *fakeRunner, string) {
	dir := t.TempDir()
	procSwaps := filepath.Join(dir, "swaps")
	require.NoError(t, os.WriteFile(procSwaps, []byte(procSwapsHeader+"\n"), 0644))

	runner := newFakeRunner(t, procSwaps)
	mgr := NewManager(testLog(), runner, false)
	mgr.SetPaths(filepath.Join(dir, "fstab"), procSwaps)
	mgr.SetFreeDiskMB(func(context.Context, string) (uint64, error) { return 1 << 20, nil })
	return mgr, runner, dir
}

func TestCreateFile(t *testing.T) {
	mgr, runner, dir := newTestManager(t)
	path := filepath.Join(dir, "swapfile.new")

	handle, err := mgr.CreateFile(context.Background(), path, 2)
	require.NoError(t, err)
	assert.Equal(t, StateFormatted, handle.State)
	assert.Equal(t, uint64(2), handle.SizeMB)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), info.Size())
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.True(t, runner.called("fallocate"))
	assert.True(t, runner.called("mkswap "+path))
}

func TestCreateFileFallsBackToDD(t *testing.T) {
	mgr, runner, dir := newTestManager(t)
	runner.fail["fallocate"] = errors.New("fallocate: operation not supported")
	path := filepath.Join(dir, "swapfile.new")

	handle, err := mgr.CreateFile(context.Background(), path, 2)
	require.NoError(t, err)
	assert.Equal(t, StateFormatted, handle.State)

	assert.True(t, runner.called("fallocate"), "preferred allocator tried first")
	assert.True(t, runner.called("dd "))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), info.Size())
}

func TestCreateFileInsufficientDiskSpace(t *testing.T) {
	mgr, runner, dir := newTestManager(t)
	mgr.SetFreeDiskMB(func(context.Context, string) (uint64, error) { return 10, nil })
	path := filepath.Join(dir, "swapfile.new")

	_, err := mgr.CreateFile(context.Background(), path, 2048)
	require.ErrorIs(t, err, ErrInsufficientDiskSpace)
	assert.Empty(t, runner.calls, "nothing written before the space check")
	assert.NoFileExists(t, path)
}

func TestCreateFileSizeMismatch(t *testing.T) {
	mgr, runner, dir := newTestManager(t)
	runner.allocOverride = 1024
	path := filepath.Join(dir, "swapfile.new")

	_, err := mgr.CreateFile(context.Background(), path, 2)
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.NoFileExists(t, path, "truncated file must be deleted")
	assert.False(t, runner.called("mkswap"), "bad file never formatted")
}

func TestCreateFileReplacesStaleFile(t *testing.T) {
	mgr, _, dir := newTestManager(t)
	path := filepath.Join(dir, "swapfile.new")
	require.NoError(t, os.WriteFile(path, []byte("leftover"), 0644))

	handle, err := mgr.CreateFile(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, StateFormatted, handle.State)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024), info.Size())
}

func TestActivateRequiresFormatted(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	err := mgr.Activate(&FileHandle{Path: "/x", State: StateCreated})
	require.Error(t, err)

	err = mgr.Activate(&FileHandle{Path: "/x", State: StateActive})
	require.Error(t, err)
}

func TestActivateFailure(t *testing.T) {
	mgr, runner, _ := newTestManager(t)
	runner.fail["swapon"] = errors.New("swapon: invalid argument")

	handle := &FileHandle{Path: "/x", State: StateFormatted}
	err := mgr.Activate(handle)
	require.ErrorIs(t, err, ErrActivationFailed)
	assert.Equal(t, StateFormatted, handle.State, "handle must not be left Active")
}

func TestRetireAlreadyInactive(t *testing.T) {
	mgr, runner, dir := newTestManager(t)

	handle := &FileHandle{Path: filepath.Join(dir, "swapfile"), State: StateActive}
	require.NoError(t, mgr.Retire(handle))
	assert.Equal(t, StateRetired, handle.State)
	assert.False(t, runner.called("swapoff"), "inactive area needs no swapoff")
}

func TestRetireActiveArea(t *testing.T) {
	mgr, runner, dir := newTestManager(t)
	path := filepath.Join(dir, "swapfile")
	require.NoError(t, runner.addSwapLine(path))

	handle := &FileHandle{Path: path, State: StateActive}
	require.NoError(t, mgr.Retire(handle))
	assert.Equal(t, StateRetired, handle.State)
	assert.True(t, runner.called("swapoff "+path))
}

func TestRetireFailure(t *testing.T) {
	mgr, runner, dir := newTestManager(t)
	path := filepath.Join(dir, "swapfile")
	require.NoError(t, runner.addSwapLine(path))
	runner.fail["swapoff"] = errors.New("swapoff: device busy")

	handle := &FileHandle{Path: path, State: StateActive}
	err := mgr.Retire(handle)
	require.ErrorIs(t, err, ErrRetireFailed)
	assert.Equal(t, StateActive, handle.State)
}

func TestRemoveTolerantOfMissingFile(t *testing.T) {
	mgr, _, dir := newTestManager(t)

	handle := &FileHandle{Path: filepath.Join(dir, "gone"), State: StateRetired}
	require.NoError(t, mgr.Remove(handle))
	assert.Equal(t, StateRemoved, handle.State)
}

func TestPersistRewritesExactlyOneEntry(t *testing.T) {
	mgr, _, dir := newTestManager(t)
	fstab := filepath.Join(dir, "fstab")
	existing := strings.Join([]string{
		"UUID=abcd / ext4 errors=remount-ro 0 1",
		"/swapfile none swap sw 0 0",
		"/swapfile none swap sw 0 0",
		"tmpfs /tmp tmpfs defaults 0 0",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(fstab, []byte(existing), 0644))
	mgr.SetPaths(fstab, mgr.procSwaps)

	require.NoError(t, mgr.Persist("/swapfile"))

	data, err := os.ReadFile(fstab)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 1, strings.Count(content, "/swapfile none swap sw 0 0"))
	assert.Contains(t, content, "UUID=abcd / ext4 errors=remount-ro 0 1")
	assert.Contains(t, content, "tmpfs /tmp tmpfs defaults 0 0")
	assert.NoFileExists(t, fstab+".vpsinit.tmp")
}

func TestPersistCreatesMissingFstab(t *testing.T) {
	mgr, _, dir := newTestManager(t)
	fstab := filepath.Join(dir, "fstab")
	mgr.SetPaths(fstab, mgr.procSwaps)

	require.NoError(t, mgr.Persist("/swapfile"))

	data, err := os.ReadFile(fstab)
	require.NoError(t, err)
	assert.Equal(t, "/swapfile none swap sw 0 0\n", string(data))
}

func TestUnpersistRemovesEntry(t *testing.T) {
	mgr, _, dir := newTestManager(t)
	fstab := filepath.Join(dir, "fstab")
	existing := "UUID=abcd / ext4 defaults 0 1\n/swapfile none swap sw 0 0\n"
	require.NoError(t, os.WriteFile(fstab, []byte(existing), 0644))
	mgr.SetPaths(fstab, mgr.procSwaps)

	require.NoError(t, mgr.Unpersist("/swapfile"))

	data, err := os.ReadFile(fstab)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "/swapfile")
	assert.Contains(t, string(data), "UUID=abcd / ext4 defaults 0 1")
}
