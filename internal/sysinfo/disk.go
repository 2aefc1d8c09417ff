package sysinfo

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// FreeDiskMB returns the free space, in megabytes, on the filesystem that
// would hold path. The path itself does not have to exist yet.
func FreeDiskMB(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, filepath.Dir(path))
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return usage.Free / 1024 / 1024, nil
}
